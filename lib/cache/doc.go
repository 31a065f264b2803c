// Package cache implements a bounded LRU cache of time window batches in front of a
// backing collection.
//
// A Cache absorbs high-rate writes of time-stamped documents. Documents are routed to the
// batch of their time window (see package batch). Only Options.CacheSize batches are kept in
// memory; admitting another batch evicts the least recently used one, which is flushed to the
// backing collection first.
//
// Batch Lifecycle:
//
//	Absent --first access--> Resident(clean) --mutation--> Resident(dirty)
//	Resident(dirty) --Flush / FlushAll--> Resident(clean)
//	Resident --eviction / idle flush (after a successful flush)--> Absent
//
// On first access the batch is looked up in the backing collection by its id. A stored
// batch is reconstructed from its document, otherwise an empty batch is created.
//
// Eviction:
//
// Eviction only happens when a new batch must be admitted into a full cache. The victim is
// always the least recently used batch (never the batch being admitted). A dirty victim is
// flushed first and removed only if the flush succeeded; otherwise the triggering operation
// fails with a *StoreError and the victim stays resident.
//
// The residency set is a util.MapHeap keyed by batch id with a recency counter as priority.
// Map and LRU order are one structure and cannot disagree.
//
// Idle Flushing:
//
// FlushIdle is meant to be called periodically (see package monitor). It flushes and drops
// every batch that was not mutated since the previous call, so batches that stopped receiving
// writes are written back without eviction pressure.
//
// Errors:
//
//   - batch.ErrDuplicateKey, batch.ErrNoSuchKey, batch.ErrNotSupported, batch.ErrInvalidTimeField:
//     returned by the document operations, nothing changed
//   - batch.ErrCompressorFull: the document was stored, the caller should call Flush
//   - *StoreError (errors.Is(err, ErrBackingStore)): loading or flushing a batch failed
//   - ErrInternalConsistency: the bookkeeping is broken, the cache rejects all further calls
//   - ErrClosed: the cache was closed
//
// Metrics:
//
// Every cache exports VictoriaMetrics counters labeled with its name:
//
//	tsbatch_cache_loads_total{cache="sensors"}
//	tsbatch_cache_creates_total{cache="sensors"}
//	tsbatch_cache_evictions_total{cache="sensors"}
//	tsbatch_cache_flushes_total{cache="sensors"}
//	tsbatch_cache_flush_errors_total{cache="sensors"}
//	tsbatch_cache_idle_flushes_total{cache="sensors"}
//	tsbatch_cache_resident_batches{cache="sensors"}
//	tsbatch_cache_flush_size_bytes{cache="sensors"}
//
// Usage:
//
//	coll, _ := store.NewCollection(s, opts.Backing("sensors"))
//	c, err := cache.New("sensors", coll, opts)
//	if err != nil { ... }
//	defer c.Close()
//
//	err = c.Insert(doc)
//	if errors.Is(err, batch.ErrCompressorFull) {
//	    err = c.Flush(ts)
//	}
package cache
