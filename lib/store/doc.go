// Package store provides the backing-store layer of tsbatch: a key-value
// interface over the storage engines plus the Collection adapter that batch
// caches flush to and load from.
//
// Key Components:
//
//   - IStore Interface: Point operations (Set, Get, Has, Delete), ordered
//     prefix scans (Scan) and metadata (GetDBInfo). Implementations report
//     failures as *Error values carrying a RetCode.
//
//   - DBFactory: Creates the db.KVDB an implementation runs on, so the same
//     store can run on the in-memory maple engine or on badger.
//
//   - Collection: A named set of persisted batch documents addressed by their
//     int64 batch id. Keys have the form "<name>/<16 hex digits>" where the
//     digits encode the id order-preserving, so a prefix scan returns the
//     documents of a collection in ascending id order.
//
// Implementations:
//
//   - Local Store (lstore): Runs a db.KVDB in-process and manages the write
//     index with an atomic counter.
//
//   - Distributed Store (dstore): Replicates writes through the Dragonboat
//     RAFT library and uses the raft log index as write index.
package store
