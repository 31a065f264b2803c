package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/tsbatch/lib/common"
	"github.com/ValentinKolb/tsbatch/lib/db/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and enables TSBATCH_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("tsbatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Shared flags
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags selecting and configuring the backing store
func SetupStoreFlags(cmd *cobra.Command) {
	defaults := common.DefaultConfig()

	key := "store"
	cmd.PersistentFlags().String(key, string(defaults.Backend), WrapString("The store holding the persisted batches (maple, badger, dstore). maple keeps the data in memory and saves a snapshot to the data dir on exit"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, defaults.DataDir, WrapString("Directory of the snapshot (maple), the database (badger) or the raft log (dstore)"))

	key = "shard"
	cmd.PersistentFlags().Uint64(key, defaults.ShardID, WrapString("(dstore) ID of the raft shard holding the collections"))

	key = "rtt-millisecond"
	cmd.PersistentFlags().Uint64(key, defaults.RTTMillisecond, WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	cmd.PersistentFlags().Uint64(key, defaults.SnapshotEntries, WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically, in applied Raft log entries. 0 disables automatic snapshots"))

	key = "compaction-overhead"
	cmd.PersistentFlags().Uint64(key, defaults.CompactionOverhead, WrapString("(dstore) CompactionOverhead defines the number of log entries kept after a snapshot"))

	key = "replica-id"
	cmd.PersistentFlags().String(key, "", WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	cmd.PersistentFlags().String(key, "", WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	cmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, WrapString("(dstore) Timeout in seconds for raft operations and the leader election"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// SetupCacheFlags adds the cache and monitor flags
func SetupCacheFlags(cmd *cobra.Command) {
	defaults := common.DefaultConfig()

	key := "compressed"
	cmd.PersistentFlags().Bool(key, defaults.Cache.Compressed, WrapString("Store batches in compressed form. Compressed batches only support inserts"))

	key = "cache-size"
	cmd.PersistentFlags().Int(key, defaults.Cache.CacheSize, WrapString("Maximum number of batches kept in memory"))

	key = "millis-in-batch"
	cmd.PersistentFlags().Int64(key, defaults.Cache.MillisInBatch, WrapString("Width of the time window of a batch in milliseconds"))

	key = "time-field"
	cmd.PersistentFlags().String(key, defaults.Cache.TimeField, WrapString("Document field holding the timestamp (date or integer milliseconds, dotted paths are allowed)"))

	key = "backing-name"
	cmd.PersistentFlags().String(key, "", WrapString("Name of the backing collection (default <cache>_timeseries)"))

	key = "compressor-capacity"
	cmd.PersistentFlags().Int(key, defaults.Cache.CompressorCapacity, WrapString("Number of samples after which a compressed batch is flushed"))

	key = "sweep-interval"
	cmd.PersistentFlags().Duration(key, defaults.SweepInterval, WrapString("Interval of the idle flush sweep"))

	key = "skip-final-flush"
	cmd.PersistentFlags().Bool(key, false, WrapString("Do not flush the caches on exit. Unflushed writes are lost!"))
}

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// GetConfig reads the configuration from viper. The cache settings are only read if withCache is set,
// commands that did not register the cache flags keep the defaults.
func GetConfig(withCache bool) (*common.Config, error) {
	cfg := common.DefaultConfig()

	backend, err := common.ParseBackend(viper.GetString("store"))
	if err != nil {
		return nil, err
	}
	cfg.Backend = backend
	cfg.DataDir = viper.GetString("data-dir")
	cfg.ShardID = viper.GetUint64("shard")
	cfg.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	cfg.SnapshotEntries = viper.GetUint64("snapshot-entries")
	cfg.CompactionOverhead = viper.GetUint64("compaction-overhead")
	cfg.TimeoutSecond = viper.GetInt64("timeout")
	cfg.LogLevel = viper.GetString("log-level")

	if withCache {
		cfg.Cache.Compressed = viper.GetBool("compressed")
		cfg.Cache.CacheSize = viper.GetInt("cache-size")
		cfg.Cache.MillisInBatch = viper.GetInt64("millis-in-batch")
		cfg.Cache.TimeField = viper.GetString("time-field")
		cfg.Cache.BackingName = viper.GetString("backing-name")
		cfg.Cache.CompressorCapacity = viper.GetInt("compressor-capacity")
		cfg.SweepInterval = viper.GetDuration("sweep-interval")
		cfg.SkipFinalFlush = viper.GetBool("skip-final-flush")
	}

	if members := viper.GetString("cluster-members"); members != "" {
		if cfg.ClusterMembers, err = ParseClusterMembers(members); err != nil {
			return nil, err
		}
	}
	if id := viper.GetString("replica-id"); id != "" {
		cfg.ReplicaID = uint64(util.HashString(id, 0))
	} else if cfg.Backend == common.BackendDStore {
		return nil, fmt.Errorf("replica-id is required for the dstore backend")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseClusterMembers parses the 'node-1=host:port,node-2=host:port' format.
// The node names are hashed to replica ids.
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(member), "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[uint64(util.HashString(parts[0], 0))] = parts[1]
	}
	return members, nil
}
