package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/tsbatch/lib/db/util"
)

// Collection is a named set of documents keyed by an int64 id on top of an IStore.
// It is the durable home of persisted batches: Upsert replaces the document with the
// given id, FindOne returns it.
//
// Thread-safety: A Collection is as thread-safe as the underlying store.
type Collection struct {
	store  IStore
	name   string
	prefix string
}

// NewCollection creates a collection named name in the given store.
// Names must be non-empty and must not contain '/'.
func NewCollection(s IStore, name string) (*Collection, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, NewError(RetCInvalidOperation, fmt.Sprintf("invalid collection name %q", name))
	}
	return &Collection{
		store:  s,
		name:   name,
		prefix: name + "/",
	}, nil
}

// Name returns the name of the collection
func (c *Collection) Name() string {
	return c.name
}

// key returns the storage key of a document
func (c *Collection) key(id int64) string {
	return c.prefix + fmt.Sprintf("%016x", util.OrderedUint64(id))
}

// parseKey is the inverse of key
func (c *Collection) parseKey(key string) (int64, error) {
	u, err := strconv.ParseUint(strings.TrimPrefix(key, c.prefix), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q in collection %s: %w", key, c.name, err)
	}
	return util.FromOrderedUint64(u), nil
}

// Upsert inserts or replaces the document with the given id
func (c *Collection) Upsert(id int64, doc []byte) error {
	return c.store.Set(c.key(id), doc)
}

// FindOne returns the document with the given id.
// A missing document is reported with found=false, not with an error.
func (c *Collection) FindOne(id int64) (doc []byte, found bool, err error) {
	return c.store.Get(c.key(id))
}

// Delete removes the document with the given id
func (c *Collection) Delete(id int64) error {
	return c.store.Delete(c.key(id))
}

// ForEach calls fn for every document of the collection in ascending id order until fn returns false
func (c *Collection) ForEach(fn func(id int64, doc []byte) bool) error {
	var parseErr error
	err := c.store.Scan(c.prefix, func(key string, value []byte) bool {
		id, err := c.parseKey(key)
		if err != nil {
			parseErr = err
			return false
		}
		return fn(id, value)
	})
	if err != nil {
		return err
	}
	return parseErr
}

// Count returns the number of documents in the collection
func (c *Collection) Count() (int, error) {
	n := 0
	err := c.ForEach(func(int64, []byte) bool {
		n++
		return true
	})
	return n, err
}
