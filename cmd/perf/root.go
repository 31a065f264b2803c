package perf

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/tsbatch/cmd/util"
	"github.com/ValentinKolb/tsbatch/lib/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	perfConfig *common.Config

	// PerfCmd benchmarks the cache on top of the configured store
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for tsbatch caches",
		Long: `Runs insert and retrieve benchmarks against a cache on top of the configured store.
The benchmarks write to temporary collections which are deleted afterward.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfNumThreads = 10
	perfDocSize    = 64
	perfSkip       = make([]string, 0)
)

func init() {
	util.SetupCacheFlags(PerfCmd)

	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert-compressed,retrieve)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "doc-size"
	PerfCmd.Flags().Int(key, 64, util.WrapString("Size of the payload of every document (in bytes)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if perfConfig, err = util.GetConfig(true); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfDocSize = viper.GetInt("doc-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfNumThreads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", perfNumThreads)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	cfg := perfConfig
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return err
	}

	fmt.Println("Performance testing tool for tsbatch caches")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Document size: %d bytes\n", perfDocSize)
	fmt.Println()

	backing, err := common.OpenStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backing.Close(); err != nil {
			log.Errorf("closing store failed: %v", err)
		}
	}()

	fmt.Println("starting tests...")
	results := runBenchmarks(backing, cfg)

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, cfg); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}
