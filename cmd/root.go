package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/tsbatch/cmd/ingest"
	"github.com/ValentinKolb/tsbatch/cmd/inspect"
	"github.com/ValentinKolb/tsbatch/cmd/perf"
	"github.com/ValentinKolb/tsbatch/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "tsbatch",
		Short: "time series batch cache",
		Long: fmt.Sprintf(`tsbatch (v%s)

A bounded in-memory cache that groups time-stamped documents into fixed
time windows and writes them back to a durable collection.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tsbatch",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tsbatch v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(ingest.IngestCmd)
	RootCmd.AddCommand(inspect.InspectCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
