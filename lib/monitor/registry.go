package monitor

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Flusher is a cache the monitor can sweep
type Flusher interface {
	Name() string
	// FlushIdle flushes the batches that were idle since the previous call
	FlushIdle() error
	// FlushAll flushes all batches
	FlushAll() error
}

// Registry is the set of live caches, keyed by name.
// It is owned by whoever creates the caches and passed to the Monitor explicitly.
//
// Thread-safety: Registry is thread-safe.
type Registry struct {
	caches *xsync.MapOf[string, Flusher]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{caches: xsync.NewMapOf[string, Flusher]()}
}

// Register adds a cache. A cache with the same name is replaced.
func (r *Registry) Register(f Flusher) {
	r.caches.Store(f.Name(), f)
}

// Unregister removes the cache with the given name
func (r *Registry) Unregister(name string) {
	r.caches.Delete(name)
}

// Get returns the cache with the given name
func (r *Registry) Get(name string) (Flusher, bool) {
	return r.caches.Load(name)
}

// Range calls fn for every registered cache until fn returns false
func (r *Registry) Range(fn func(f Flusher) bool) {
	r.caches.Range(func(_ string, f Flusher) bool {
		return fn(f)
	})
}

// Len returns the number of registered caches
func (r *Registry) Len() int {
	return r.caches.Size()
}
