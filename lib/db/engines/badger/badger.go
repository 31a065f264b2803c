package badger

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/dgraph-io/badger/v4"
	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum      = "TSBADGER" // Snapshot format identifier
	badgerVersion = 1          // Snapshot version
	indexLen      = 8          // Every stored value is prefixed with its write index
	loadPending   = 256        // Max pending writes during Load
	gcDiscard     = 0.5        // Value log GC discard ratio
	conflictRetry = 10         // Retries for conflicting read-modify-write transactions
)

var log = logger.GetLogger("badger")

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// badgerImpl implements db.KVDB on top of BadgerDB
type badgerImpl struct {
	bdb       *badger.DB
	currIndex atomic.Uint64
}

// DBOptions configures the badger engine
type DBOptions struct {
	Dir      string // Directory for the LSM tree and value log (ignored if InMemory)
	InMemory bool   // Keep all data in memory
}

// NewBadgerDB opens a BadgerDB instance with the given options.
// A nil options value opens an in-memory database.
func NewBadgerDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = &DBOptions{InMemory: true}
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(log)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(log)
	}

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	impl := &badgerImpl{bdb: bdb}
	if err := impl.recoverWriteIdx(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return impl, nil
}

// --------------------------------------------------------------------------
// Value encoding
// --------------------------------------------------------------------------

func encodeValue(value []byte, writeIndex uint64) []byte {
	buf := make([]byte, indexLen+len(value))
	binary.BigEndian.PutUint64(buf[:indexLen], writeIndex)
	copy(buf[indexLen:], value)
	return buf
}

func decodeValue(raw []byte) (value []byte, writeIndex uint64, err error) {
	if len(raw) < indexLen {
		return nil, 0, fmt.Errorf("corrupt value: %d bytes", len(raw))
	}
	return raw[indexLen:], binary.BigEndian.Uint64(raw[:indexLen]), nil
}

// storedIndex returns the write index of an existing key, or false if the key does not exist
func storedIndex(txn *badger.Txn, key []byte) (uint64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var idx uint64
	err = item.Value(func(raw []byte) error {
		var derr error
		_, idx, derr = decodeValue(raw)
		return derr
	})
	return idx, true, err
}

// update runs fn in a read-write transaction and retries on conflicts
func (b *badgerImpl) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetry; i++ {
		err = b.bdb.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry. Writes with a lower write index than the stored one are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *badgerImpl) Set(key string, value []byte, writeIndex uint64) error {
	b.SetWriteIdx(writeIndex)
	k := []byte(key)

	return b.update(func(txn *badger.Txn) error {
		idx, ok, err := storedIndex(txn, k)
		if err != nil {
			return err
		}
		if ok && writeIndex < idx {
			return nil
		}
		return txn.Set(k, encodeValue(value, writeIndex))
	})
}

// Delete removes an entry. Deletes with a lower write index than the stored one are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *badgerImpl) Delete(key string, writeIndex uint64) error {
	b.SetWriteIdx(writeIndex)
	k := []byte(key)

	return b.update(func(txn *badger.Txn) error {
		idx, ok, err := storedIndex(txn, k)
		if err != nil || !ok || writeIndex < idx {
			return err
		}
		return txn.Delete(k)
	})
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get retrieves a copy of the value for a key
func (b *badgerImpl) Get(key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := b.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value, _, err = decodeValue(raw)
		found = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Has checks whether a key exists
func (b *badgerImpl) Has(key string) (bool, error) {
	var found bool
	err := b.bdb.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	return found, err
}

// Range iterates all keys with the given prefix in ascending order
func (b *badgerImpl) Range(prefix string, fn func(key string, value []byte) bool) error {
	p := []byte(prefix)
	return b.bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			value, _, err := decodeValue(raw)
			if err != nil {
				return err
			}
			if !fn(string(item.KeyCopy(nil)), value) {
				break
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a header followed by a full badger backup stream
func (b *badgerImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024)

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(badgerVersion)); err != nil {
		return err
	}
	if _, err := b.bdb.Backup(bw, 0); err != nil {
		return fmt.Errorf("badger backup: %w", err)
	}
	return bw.Flush()
}

// Load replaces all data with the content of a snapshot created by Save
func (b *badgerImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != badgerVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, badgerVersion)
	}

	if err := b.bdb.DropAll(); err != nil {
		return fmt.Errorf("badger drop: %w", err)
	}
	if err := b.bdb.Load(br, loadPending); err != nil {
		return fmt.Errorf("badger load: %w", err)
	}

	b.currIndex.Store(0)
	return b.recoverWriteIdx()
}

// recoverWriteIdx restores the write index from the highest index stored with any value
func (b *badgerImpl) recoverWriteIdx() error {
	var maxIndex uint64
	err := b.bdb.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				_, idx, err := decodeValue(raw)
				if idx > maxIndex {
					maxIndex = idx
				}
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	b.SetWriteIdx(maxIndex)
	return err
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (b *badgerImpl) GetInfo() db.DatabaseInfo {
	keys := 0
	_ = b.bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys++
		}
		return nil
	})

	lsm, vlog := b.bdb.Size()
	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		LSMSizeBytes      int64  `json:"lsm_size_bytes"`
		VLogSizeBytes     int64  `json:"vlog_size_bytes"`
		InMemory          bool   `json:"in_memory"`
	}{
		CurrentWriteIndex: b.currIndex.Load(),
		LSMSizeBytes:      lsm,
		VLogSizeBytes:     vlog,
		InMemory:          b.bdb.Opts().InMemory,
	}

	return db.DatabaseInfo{
		SizeBytes: int(lsm + vlog),
		Keys:      keys,
		DbType:    db.ImplBadger,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureRange, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (b *badgerImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureRange |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close runs a value log GC pass (on disk only) and closes the database
func (b *badgerImpl) Close() error {
	if !b.bdb.Opts().InMemory {
		if err := b.bdb.RunValueLogGC(gcDiscard); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			log.Warningf("value log gc failed: %v", err)
		}
	}
	return b.bdb.Close()
}

// --------------------------------------------------------------------------
// Index Management
// --------------------------------------------------------------------------

// SetWriteIdx only updates the index if the new index is greater than the current one
func (b *badgerImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := b.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if b.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (b *badgerImpl) WriteIdx() uint64 {
	return b.currIndex.Load()
}
