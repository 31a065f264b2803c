// Package db provides the storage engine abstraction underneath the backing
// collections that persisted batches are flushed to.
//
// Key Components:
//
//   - KVDB Interface: The interface all engines satisfy. It offers point
//     operations (Set, Get, Has, Delete), ordered prefix iteration (Range),
//     and snapshot persistence (Save, Load).
//
//   - Feature Flags: Engines advertise their capabilities through
//     SupportsFeature so that stores can reject unsupported operations with a
//     coded error instead of failing deep inside an engine.
//
//   - Database Information: DatabaseInfo reports key count, size, engine type
//     and engine-specific metadata.
//
// Note on Write Indexes:
//   - Every write carries a write-index that serves as a logical timestamp.
//     Replicated stores pass the raft log index, local stores a counter.
//   - A write whose index is lower than the index stored with the entry is
//     ignored. This keeps replays of an older log prefix from overwriting
//     newer data.
//
// Related Packages:
//
// The engines/maple package provides a sharded in-memory engine with a
// compact binary snapshot format. The engines/badger package provides a
// durable engine on top of BadgerDB. The testing package holds the
// conformance suite both engines run (RunKVDBTests, RunKVDBBenchmarks), and
// util holds hashing helpers and the MapHeap used by the batch cache.
package db
