package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/cache"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the dstore backend)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the Config to a Dragonboat shard config
func (c *Config) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *Config) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Backend selects the store that holds the backing collections
type Backend string

const (
	BackendMaple  Backend = "maple"  // in-memory, persisted as snapshot file in the data dir
	BackendBadger Backend = "badger" // durable badger database in the data dir
	BackendDStore Backend = "dstore" // RAFT replicated store
)

// ParseBackend validates a backend name
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(s)); b {
	case BackendMaple, BackendBadger, BackendDStore:
		return b, nil
	default:
		return "", fmt.Errorf("invalid store backend: %s. must be one of maple, badger, dstore", s)
	}
}

// Config holds all parameters needed to run caches on top of a store.
type Config struct {
	// Store settings
	Backend Backend
	DataDir string

	// Dragonboat parameters (only used by the dstore backend)
	ShardID            uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64

	// Cache settings
	Cache          cache.Options
	SweepInterval  time.Duration
	SkipFinalFlush bool

	// Logging configuration
	LogLevel string
}

// DefaultConfig returns a config for a local maple store with default cache options
func DefaultConfig() Config {
	return Config{
		Backend:            BackendMaple,
		DataDir:            "./data",
		ShardID:            100,
		RTTMillisecond:     100,
		SnapshotEntries:    10000,
		CompactionOverhead: 5000,
		ReplicaID:          1,
		ClusterMembers:     map[uint64]string{},
		TimeoutSecond:      5,
		Cache:              cache.DefaultOptions(),
		SweepInterval:      time.Second,
		LogLevel:           "info",
	}
}

// Timeout returns the timeout of the dstore backend
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks the config for consistency
func (c *Config) Validate() error {
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Backend == BackendDStore {
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("replica id %d is not a cluster member", c.ReplicaID)
		}
		if c.TimeoutSecond <= 0 {
			return fmt.Errorf("timeout must be positive, got %d", c.TimeoutSecond)
		}
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Store
	addSection("Store")
	addField("Backend", string(c.Backend))
	addField("Data Directory", c.DataDir)

	// Cache
	addSection("Cache")
	addField("Compressed", strconv.FormatBool(c.Cache.Compressed))
	addField("Cache Size", fmt.Sprintf("%d batches", c.Cache.CacheSize))
	addField("Millis In Batch", fmt.Sprintf("%d ms", c.Cache.MillisInBatch))
	addField("Time Field", c.Cache.TimeField)
	addField("Backing Name", c.Cache.BackingName)
	addField("Compressor Capacity", strconv.Itoa(c.Cache.CompressorCapacity))
	addField("Sweep Interval", c.SweepInterval.String())
	addField("Final Flush", strconv.FormatBool(!c.SkipFinalFlush))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Backend == BackendDStore {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Cluster
		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}
