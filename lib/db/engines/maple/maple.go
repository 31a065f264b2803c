package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/tsbatch/lib/db"
	"github.com/ValentinKolb/tsbatch/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/tsbatch/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLEDB\x00" // File format identifier
	mapleVersion = 4             // Database version
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(),
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	return &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(opts.NumShards),
	}
}

// newShards creates n empty shards
func newShards(n int) []*internal.Shard {
	hasher := createIdentityHasher()
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard(hasher)
	}
	return shards
}

// --------------------------------------------------------------------------
// Hash Helper Functions
// --------------------------------------------------------------------------

// StringToUint64 converts a string to a util.UintKey with hashing
// and applies the mapleImpl seed to ensure uniqueness between mapleImpl instances
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) StringToUint64(s string) util.UintKey {
	return util.HashString(s, maple.seed)
}

// createIdentityHasher creates a hash function that combines a key with a seed
func createIdentityHasher() func(util.UintKey, uint64) uint64 {
	return func(key util.UintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates an entry with the given key and value.
// Writes with a write index lower than the stored one are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIndex uint64) error {
	maple.SetWriteIdx(writeIndex)

	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	shard.Data.Compute(intKey, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIndex < old.Index {
			return old, false // stale write
		}
		return internal.Entry{
			Key:   key,
			Value: valueCopy,
			Index: writeIndex,
		}, false
	})
	return nil
}

// Delete removes an entry with the specified key. This change is immediate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key string, writeIndex uint64) error {
	maple.SetWriteIdx(writeIndex)

	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	shard.Data.Compute(intKey, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return old, true // set delete to true because else the value will be created
		}
		if writeIndex < old.Index || old.Key != key {
			return old, false
		}
		return old, true
	})
	return nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool, error) {
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	e, ok := shard.Data.Load(intKey)
	if !ok || e.Key != key {
		return nil, false, nil
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true, nil
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) (bool, error) {
	intKey := maple.StringToUint64(key)
	shard := internal.GetShard(intKey, maple.shards)

	e, ok := shard.Data.Load(intKey)
	return ok && e.Key == key, nil
}

// Range calls fn for all entries with the given key prefix in ascending key order.
// Since the shards are hash partitioned, matching entries are collected first and
// sorted afterwards. The callback therefore sees a fuzzy snapshot of the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Range(prefix string, fn func(key string, value []byte) bool) error {
	var matches []internal.Entry
	for _, shard := range maple.shards {
		shard.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
			if strings.HasPrefix(entry.Key, prefix) {
				matches = append(matches, entry)
			}
			return true
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Key < matches[j].Key
	})

	for _, entry := range matches {
		value := make([]byte, len(entry.Value))
		copy(value, entry.Value)
		if !fn(entry.Key, value) {
			break
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer
// Concurrent reading and writing is allowed during Save operation
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load. It takes snapshots of the data without blocking modifications.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	var entries []internal.Entry
	for _, shard := range maple.shards {
		shard.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
			entries = append(entries, entry)
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	// Write entries: index, key length, key, value length, value
	for _, entry := range entries {
		if err := binary.Write(bw, binary.LittleEndian, entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(entry.Key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(entry.Key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(entry.Value); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load restores a database from the reader
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// Read into fresh shards so a broken snapshot leaves the current state untouched
	shards := newShards(maple.numShards)
	var maxIndex uint64

	for i := uint64(0); i < count; i++ {
		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}

		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		if index > maxIndex {
			maxIndex = index
		}

		intKey := util.HashString(string(key), seed)
		internal.GetShard(intKey, shards).Data.Store(intKey, internal.Entry{
			Key:   string(key),
			Value: value,
			Index: index,
		})
	}

	maple.shards = shards
	maple.seed = seed
	maple.currIndex.Store(0)
	maple.SetWriteIdx(maxIndex)

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	var (
		sizeBytes  int
		keys       int
		shardSizes = make([]float64, len(maple.shards))
	)

	for i, shard := range maple.shards {
		shard.Data.Range(func(_ util.UintKey, entry internal.Entry) bool {
			sizeBytes += entry.SizeBytes()
			keys++
			return true
		})
		shardSizes[i] = float64(shard.Data.Size())
	}

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Keys:      keys,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureGet, db.FeatureDelete, db.FeatureHas,
			db.FeatureRange, db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureGet |
		db.FeatureDelete |
		db.FeatureHas |
		db.FeatureRange |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, maple holds no external resources
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
