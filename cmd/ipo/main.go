// Command ipo benchmarks an internet connection and suggests tuning.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		envFiles []string
		verbose  bool
	)

	root := &cobra.Command{
		Use:           "ipo",
		Short:         "Internet performance optimizer",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			return a.setup(envFiles, verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil,
		"Environment files to load (default ~/.ipo/ipo.env and ./.env)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")

	root.AddCommand(
		newCmdBench(a),
		newCmdRecommend(a),
		newCmdHistory(a),
		newCmdPrune(a),
		newCmdServe(a),
		newCmdMigrate(a),
		newCmdInfo(a),
		newCmdToken(a),
		newCmdVersion(a),
	)
	return root
}

const rootLong = `
Measure latency distribution, throughput, jitter, bufferbloat and DNS
resolver performance, then turn the results into ranked recommendations.

Results are stored under ~/.ipo/benchmarks unless IPO_STORAGE=postgres.`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
