package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/tsbatch/cmd/util"
	"github.com/ValentinKolb/tsbatch/lib/cache"
	"github.com/ValentinKolb/tsbatch/lib/common"
	"github.com/ValentinKolb/tsbatch/lib/monitor"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	ingestConfig *common.Config

	// IngestCmd reads documents and inserts them into a cache
	IngestCmd = &cobra.Command{
		Use:   "ingest <cache> [file]",
		Short: "Insert extended JSON documents into a time series cache",
		Long: `Reads one extended JSON document per line from the file (or stdin) and inserts it into the cache.
The batches are written to the backing collection by the idle flush sweep, by eviction and on exit.
The configuration can be set via command line flags or environment variables. The format of the environment
variables is TSBATCH_<flag> (e.g. TSBATCH_CACHE_SIZE=16)`,
		Args:    cobra.RangeArgs(1, 2),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	util.SetupCacheFlags(IngestCmd)

	key := "strict"
	IngestCmd.Flags().Bool(key, false, util.WrapString("Abort on the first document that is rejected (duplicate timestamp, invalid time field, invalid JSON) instead of skipping it"))

	key = "metrics"
	IngestCmd.Flags().Bool(key, false, util.WrapString("Print the cache metrics in Prometheus text format after the ingest"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	ingestConfig, err = util.GetConfig(true)
	return err
}

func run(_ *cobra.Command, args []string) error {
	cfg := ingestConfig
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return err
	}
	log.Infof("configuration:%s", cfg.String())

	// stop reading on SIGINT/SIGTERM, the caches are still flushed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// open the input
	var in io.Reader = os.Stdin
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	// open the store and the cache
	backing, err := common.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backing.Close(); err != nil {
			log.Errorf("closing store failed: %v", err)
		}
	}()

	name := args[0]
	coll, err := backing.Collection(cfg.Cache.Backing(name))
	if err != nil {
		return err
	}
	c, err := cache.New(name, coll, cfg.Cache)
	if err != nil {
		return err
	}

	// run the idle sweep during the ingest
	registry := monitor.NewRegistry()
	registry.Register(c)
	m := monitor.New(registry, cfg.SweepInterval)
	m.SkipFinalFlush = cfg.SkipFinalFlush

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitorDone := make(chan error, 1)
	go func() { monitorDone <- m.Run(monitorCtx) }()

	res, ingestErr := Ingest(ctx, c, in, viper.GetBool("strict"))

	// the monitor performs the final flush
	stopMonitor()
	flushErr := <-monitorDone
	if !cfg.SkipFinalFlush && flushErr == nil {
		flushErr = c.Close()
	}

	fmt.Printf("inserted %d documents, rejected %d, forced %d flushes\n", res.Inserted, res.Rejected, res.Flushed)
	fmt.Println(c.Stats().String())
	if viper.GetBool("metrics") {
		c.WritePrometheus(os.Stdout)
	}

	if errors.Is(ingestErr, context.Canceled) {
		log.Warningf("ingest interrupted after %d lines", res.Lines)
		ingestErr = nil
	}
	if ingestErr != nil {
		return ingestErr
	}
	if flushErr != nil {
		return fmt.Errorf("final flush failed: %w", flushErr)
	}
	return nil
}
