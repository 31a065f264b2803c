// Package maple implements a sharded in-memory key-value engine (KVDB). It is
// the default engine behind local and replicated backing stores and the one
// used by tests.
//
// Key Components:
//
//   - mapleImpl: The database structure implementing db.KVDB. It manages the
//     shards and a monotonically increasing write index. The write index is
//     supplied by the caller (a counter for local stores, the raft log index
//     for replicated stores).
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are
//     hashed with a per-database seed (FNV-1a) and the hash is right-shifted
//     by 7 bits before picking a shard to use higher-quality bits.
//
//   - Entry: Stores the original key, the value and the write index of the
//     last update. Keeping the original key allows prefix iteration and
//     detects hash collisions on reads.
//
// Internal Mechanisms:
//
//   - Stale Write Prevention: A write is only applied if its write index is
//     greater than or equal to the stored index of the entry.
//
//   - Range: Shards are hash partitioned, so Range collects matching entries
//     from all shards and sorts them by key before calling back.
//
//   - Persistence Format:
//     1. Magic number "MAPLEDB\x00"
//     2. Version number (currently 4)
//     3. Database seed value for hash function consistency
//     4. Number of entries
//     5. For each entry: index, key length, key, value length, value
//     Save does not block writers and produces a fuzzy snapshot. Load reads
//     into fresh shards and only swaps them in after the whole snapshot was read.
package maple
