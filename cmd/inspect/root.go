package inspect

import (
	"context"
	"os"

	"github.com/ValentinKolb/tsbatch/cmd/util"
	"github.com/ValentinKolb/tsbatch/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	inspectConfig *common.Config

	// InspectCmd lists the batches of a backing collection
	InspectCmd = &cobra.Command{
		Use:   "inspect <collection>",
		Short: "List the persisted batches of a collection",
		Long: `Lists the batches stored in a backing collection with their time window, form, size and document count.
With --docs the documents of every batch are printed as extended JSON, one per line, so the output can be fed back into ingest.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "millis-in-batch"
	InspectCmd.Flags().Int64(key, common.DefaultConfig().Cache.MillisInBatch, util.WrapString("Width of the time window of a batch in milliseconds, used to print the windows"))

	key = "docs"
	InspectCmd.Flags().Bool(key, false, util.WrapString("Print the documents of every batch as extended JSON instead of the batch list"))

	key = "canonical"
	InspectCmd.Flags().Bool(key, false, util.WrapString("Use canonical instead of relaxed extended JSON for --docs"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	inspectConfig, err = util.GetConfig(false)
	return err
}

func run(_ *cobra.Command, args []string) error {
	cfg := inspectConfig
	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return err
	}

	backing, err := common.OpenStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer backing.Close()

	coll, err := backing.Collection(args[0])
	if err != nil {
		return err
	}

	if viper.GetBool("docs") {
		return PrintDocuments(os.Stdout, coll, viper.GetBool("canonical"))
	}
	return PrintBatches(os.Stdout, coll, viper.GetInt64("millis-in-batch"))
}
