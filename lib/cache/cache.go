package cache

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/batch"
	"github.com/ValentinKolb/tsbatch/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/multierr"
)

var log = logger.GetLogger("cache")

// Cache keeps a bounded number of batches in memory in front of a backing collection.
//
// Every operation computes the batch id of its timestamp and makes the batch resident first:
// a batch that is not resident is loaded from the collection or created empty. Admitting a
// new batch into a full cache evicts the least recently used batch, which is flushed to the
// collection before it is dropped.
//
// Thread-safety: Cache is thread-safe. One mutex serializes all operations, including the
// calls into the backing collection they trigger.
type Cache struct {
	name string
	opts Options
	cfg  batch.Config
	coll batch.Collection

	mu sync.Mutex
	// resident maps batch ids to batches, the priority is the recency counter at the last access
	resident *util.MapHeap[batch.ID, *batch.Batch]
	clock    uint64
	closed   bool
	failure  error // sticky internal consistency violation

	metrics *cacheMetrics
}

// New creates a cache named name over the collection coll
func New(name string, coll batch.Collection, opts Options) (*Cache, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.BackingName == "" {
		opts.BackingName = opts.Backing(name)
	}
	return &Cache{
		name:     name,
		opts:     opts,
		cfg:      opts.batchConfig(),
		coll:     coll,
		resident: util.NewMapHeap[batch.ID, *batch.Batch](),
		metrics:  newCacheMetrics(name),
	}, nil
}

// --------------------------------------------------------------------------
// Residency (all methods require c.mu)
// --------------------------------------------------------------------------

// usable returns the error every operation has to fail with, if any
func (c *Cache) usable() error {
	if c.failure != nil {
		return c.failure
	}
	if c.closed {
		return ErrClosed
	}
	return nil
}

// acquire returns the resident batch for id and marks it as most recently used.
// A batch that is not resident is loaded or created, evicting the least recently used batch if the cache is full.
func (c *Cache) acquire(id batch.ID) (*batch.Batch, error) {
	c.clock++
	if item, ok := c.resident.GetByKey(id); ok {
		c.resident.SetPriority(id, c.clock)
		return item.Value, nil
	}

	b, err := c.load(id)
	if err != nil {
		return nil, err
	}

	for c.resident.Len() >= c.opts.CacheSize {
		if err := c.evict(); err != nil {
			return nil, err
		}
	}

	c.resident.AddItem(id, b, c.clock)
	c.metrics.resident.Store(int64(c.resident.Len()))
	return b, nil
}

// load reads a batch from the collection or creates an empty one
func (c *Cache) load(id batch.ID) (*batch.Batch, error) {
	data, found, err := c.coll.FindOne(int64(id))
	if err != nil {
		return nil, &StoreError{Op: "load", ID: id, Err: err}
	}

	if !found {
		c.metrics.creates.Inc()
		log.Debugf("%s: created batch %d", c.name, id)
		return batch.New(id, c.cfg), nil
	}

	doc, err := batch.DecodeDocument(data)
	if err == nil {
		var b *batch.Batch
		if b, err = batch.FromDocument(doc, c.cfg); err == nil {
			c.metrics.loads.Inc()
			log.Debugf("%s: loaded batch %d with %d docs", c.name, id, b.Len())
			return b, nil
		}
	}
	return nil, &StoreError{Op: "load", ID: id, Err: err}
}

// evict flushes and drops the least recently used batch.
// The batch stays resident if the flush fails.
func (c *Cache) evict() error {
	victim, ok := c.resident.Peek()
	if !ok {
		c.failure = fmt.Errorf("%w: cache %s is at capacity %d but has no resident batch", ErrInternalConsistency, c.name, c.opts.CacheSize)
		log.Errorf("%v", c.failure)
		return c.failure
	}

	if err := c.flush(victim.Value, "evict"); err != nil {
		return err
	}

	c.resident.RemoveByKey(victim.Key)
	c.metrics.resident.Store(int64(c.resident.Len()))
	c.metrics.evictions.Inc()
	log.Debugf("%s: evicted batch %d", c.name, victim.Key)
	return nil
}

// flush writes a dirty batch to the collection. Clean batches are skipped.
func (c *Cache) flush(b *batch.Batch, op string) error {
	if !b.IsDirty() {
		return nil
	}

	n, err := b.Flush(c.coll)
	if err != nil {
		c.metrics.flushErrors.Inc()
		log.Warningf("%s: %s of batch %d failed: %v", c.name, op, b.ID(), err)
		return &StoreError{Op: op, ID: b.ID(), Err: err}
	}

	c.metrics.flushes.Inc()
	c.metrics.flushSize.Update(float64(n))
	return nil
}

// withBatch runs fn on the resident batch of t
func (c *Cache) withBatch(t time.Time, fn func(b *batch.Batch) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}
	b, err := c.acquire(batch.IDFor(t, c.opts.MillisInBatch))
	if err != nil {
		return err
	}
	return fn(b)
}

// --------------------------------------------------------------------------
// Document Operations
// --------------------------------------------------------------------------

// Insert stores a document in the batch of its time field.
// It returns batch.ErrDuplicateKey for an existing timestamp (uncompressed caches) and
// batch.ErrCompressorFull when a compressed batch reached its capacity. The document is
// stored in the latter case; call Flush to write the full batch. A flushed compressed batch keeps
// its samples, so it stays full and grows with every further insert until it leaves the cache.
func (c *Cache) Insert(doc bson.Raw) error {
	t, err := batch.TimeOf(doc, c.opts.TimeField)
	if err != nil {
		return err
	}
	return c.withBatch(t, func(b *batch.Batch) error {
		return b.Insert(doc)
	})
}

// Update replaces the document with the same timestamp
func (c *Cache) Update(doc bson.Raw) error {
	t, err := batch.TimeOf(doc, c.opts.TimeField)
	if err != nil {
		return err
	}
	return c.withBatch(t, func(b *batch.Batch) error {
		return b.Update(doc)
	})
}

// Remove deletes the document stored for t
func (c *Cache) Remove(t time.Time) error {
	return c.withBatch(t, func(b *batch.Batch) error {
		return b.Remove(t)
	})
}

// Retrieve returns the document stored for t. Compressed caches return batch.ErrNotSupported.
func (c *Cache) Retrieve(t time.Time) (bson.Raw, error) {
	var doc bson.Raw
	err := c.withBatch(t, func(b *batch.Batch) (err error) {
		doc, err = b.Retrieve(t)
		return err
	})
	return doc, err
}

// RetrieveBatch returns the persistable form of the batch containing t
func (c *Cache) RetrieveBatch(t time.Time) (batch.Document, error) {
	var doc batch.Document
	err := c.withBatch(t, func(b *batch.Batch) (err error) {
		if doc, err = b.Export(); err != nil {
			return err
		}
		return b.Reload(doc)
	})
	return doc, err
}

// --------------------------------------------------------------------------
// Flushing
// --------------------------------------------------------------------------

// Flush writes the batch containing t to the collection if it is resident and dirty.
// The batch stays resident.
func (c *Cache) Flush(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}
	item, ok := c.resident.GetByKey(batch.IDFor(t, c.opts.MillisInBatch))
	if !ok {
		return nil
	}
	return c.flush(item.Value, "flush")
}

// FlushIdle writes every batch that was not mutated since the previous call and drops it from the cache.
// Batches whose flush fails stay resident and are retried by the next call. The errors of all
// failed flushes are combined.
func (c *Cache) FlushIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}

	var idle []*batch.Batch
	c.resident.Range(func(item *util.Item[batch.ID, *batch.Batch]) bool {
		if item.Value.CheckAndResetIdle() {
			idle = append(idle, item.Value)
		}
		return true
	})

	var errs error
	for _, b := range idle {
		dirty := b.IsDirty()
		if err := c.flush(b, "idle-flush"); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if dirty {
			c.metrics.idleFlushes.Inc()
		}
		c.resident.RemoveByKey(b.ID())
		log.Debugf("%s: dropped idle batch %d", c.name, b.ID())
	}
	c.metrics.resident.Store(int64(c.resident.Len()))
	return errs
}

// FlushAll writes every dirty batch to the collection. All batches stay resident.
func (c *Cache) FlushAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}
	return c.flushAll()
}

func (c *Cache) flushAll() error {
	var errs error
	for _, id := range c.resident.Keys() {
		item, _ := c.resident.GetByKey(id)
		errs = multierr.Append(errs, c.flush(item.Value, "flush"))
	}
	return errs
}

// Close flushes all batches and closes the cache. The cache stays open if a flush fails,
// so Close can be retried. Closing a closed cache is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failure != nil {
		return c.failure
	}
	if c.closed {
		return nil
	}
	if err := c.flushAll(); err != nil {
		return err
	}

	c.closed = true
	for c.resident.Len() > 0 {
		c.resident.PopMin()
	}
	c.metrics.resident.Store(0)
	return nil
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Name returns the name of the cache
func (c *Cache) Name() string {
	return c.name
}

// Options returns the options of the cache
func (c *Cache) Options() Options {
	return c.opts
}

// Resident returns the ids of all resident batches, least recently used first
func (c *Cache) Resident() []batch.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resident.Keys()
}

// Stats returns a snapshot of the counters of the cache
func (c *Cache) Stats() Stats {
	return c.metrics.stats()
}

// WritePrometheus writes the metrics of the cache in Prometheus text format
func (c *Cache) WritePrometheus(w io.Writer) {
	c.metrics.set.WritePrometheus(w)
}

func (c *Cache) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Cache %s (backing=%s, %d/%d resident): %v",
		c.name, c.opts.BackingName, c.resident.Len(), c.opts.CacheSize, c.resident.Keys())
}
