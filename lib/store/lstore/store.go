package lstore

import (
	"sync/atomic"

	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/store"
)

type storeImpl struct {
	db    db.KVDB
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// The write index is a local counter that continues from the index of the database.
func NewLocalStore(factory store.DBFactory) (store.IStore, error) {
	database, err := factory()
	if err != nil {
		return nil, err
	}
	s := &storeImpl{db: database}
	s.index.Store(database.WriteIdx())
	return s, nil
}

// Close closes the underlying database.
func (s *storeImpl) Close() error {
	return s.db.Close()
}

// incAndGetIndex increments the index and returns the new value.
// It is used to ensure that each write operation has a unique index.
//
// Thread-safety: This method is thread-safe since it uses atomic operations.
func (s *storeImpl) incAndGetIndex() uint64 {
	return s.index.Add(1)
}

// wrap converts engine errors to store errors
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return store.NewError(store.RetCInternalError, err.Error())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return store.NewError(store.RetCUnsupportedOperation, "Set operation is not supported")
	}
	return wrap(s.db.Set(key, value, s.incAndGetIndex()))
}

func (s *storeImpl) Delete(key string) error {
	if !s.db.SupportsFeature(db.FeatureDelete) {
		return store.NewError(store.RetCUnsupportedOperation, "Delete operation is not supported")
	}
	return wrap(s.db.Delete(key, s.incAndGetIndex()))
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok, err := s.db.Get(key)
	return val, ok, wrap(err)
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	ok, err := s.db.Has(key)
	return ok, wrap(err)
}

func (s *storeImpl) Scan(prefix string, fn func(key string, value []byte) bool) error {
	if !s.db.SupportsFeature(db.FeatureRange) {
		return store.NewError(store.RetCUnsupportedOperation, "Scan operation is not supported")
	}
	return wrap(s.db.Range(prefix, fn))
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
