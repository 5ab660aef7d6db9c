package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/store"
)

func newCmdPrune(a *app) *cobra.Command {
	var (
		retentionDays int
		dryRun        bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored benchmarks older than the retention period",
		Example: `  ipo prune --retention-days 30 --dry-run
  IPO_STORAGE=postgres ipo prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if retentionDays <= 0 {
				return fmt.Errorf("--retention-days must be positive")
			}
			ctx := cmd.Context()
			st, _, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			pruner, ok := st.(store.Pruner)
			if !ok {
				return fmt.Errorf("storage backend %q cannot prune", a.cfg.Storage.Backend)
			}
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			n, err := pruner.Prune(ctx, cutoff, dryRun)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(a.out, "Would delete %d benchmark(s) taken before %s\n", n, cutoff.Format("2006-01-02 15:04"))
				return nil
			}
			fmt.Fprintf(a.out, "Deleted %d benchmark(s) taken before %s\n", n, cutoff.Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().IntVar(&retentionDays, "retention-days", 90, "Keep benchmarks taken within this many days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only count what would be deleted")
	return cmd
}
