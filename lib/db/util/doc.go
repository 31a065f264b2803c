// Package util provides small building blocks shared by the storage engines
// and the batch cache.
//
// The package contains:
//   - functions: seeded FNV-1a hashing and an order-preserving int64 encoding used for storage keys
//   - mapheap: a generic priority queue with key-based access, used as the LRU residency set of the cache
//   - statistics: distribution statistics reported by sharded engines
package util
