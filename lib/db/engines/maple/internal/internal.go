package internal

import (
	"fmt"

	"github.com/ValentinKolb/tsbatch/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a key-value pair with metadata.
// The original key is kept next to the value so that prefix iteration
// and hash collision checks do not depend on the hashed key.
type Entry struct {
	Key   string // Original key
	Value []byte // Stored data
	Index uint64 // Write index when this entry was created/updated
}

func (e Entry) String() string {
	return fmt.Sprintf("Entry{Key: %s, Index: %d, Size: %d}", e.Key, e.Index, len(e.Value))
}

// SizeBytes estimates the memory used by the entry
func (e Entry) SizeBytes() int {
	return len(e.Key) + len(e.Value) + 8
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
// Each shard has its own independent map
type Shard struct {
	Data *xsync.MapOf[util.UintKey, Entry] // Map of active key-value entries
}

// NewShard creates a new shard with the provided hash function
func NewShard(hasher func(util.UintKey, uint64) uint64) *Shard {
	return &Shard{
		Data: xsync.NewMapOfWithHasher[util.UintKey, Entry](hasher),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
