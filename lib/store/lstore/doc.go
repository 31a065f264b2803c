// Package lstore implements a single-node store.IStore on top of any db.KVDB.
//
// Implementation Details:
//
//   - Write Index Management: The store keeps an atomic counter that is
//     incremented for every write and passed to the engine as write index.
//     The counter starts at the engine's current write index, so a store
//     reopened on a durable engine keeps producing increasing indexes.
//
//   - Feature Detection: Before executing an operation the store checks
//     SupportsFeature and returns RetCUnsupportedOperation instead of calling
//     into the engine.
//
//   - Durability: Whether data survives a restart depends on the engine. The
//     maple engine is memory-only, the badger engine writes to disk.
//
// Usage Example:
//
//	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
//		return maple.NewMapleDB(nil), nil
//	})
//	coll, err := store.NewCollection(s, "sensors_timeseries")
package lstore
