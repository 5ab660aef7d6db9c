package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/report"
	"github.com/internet-performance-optimizer/internal/store"
)

func newCmdRecommend(a *app) *cobra.Command {
	var (
		jsonOnly bool
		format   string
	)
	cmd := &cobra.Command{
		Use:   "recommend FILE|ID",
		Short: "Generate recommendations from a benchmark result",
		Example: `  ipo recommend bench_20240216_143000.json
  ipo recommend 3f1c2a9e-0d4b-4a57-9a43-1d2b6c8e7f10 --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if jsonOnly {
				f = report.FormatJSON
			}

			result, err := loadResult(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), a.logger.WithField("run_id", result.RunID()))
			recs := a.engine().Generate(ctx, result)
			if recs == nil {
				recs = []models.Recommendation{}
			}

			if f != report.FormatText {
				return report.Encode(a.out, recs, f)
			}
			report.PrintRecommendations(a.out, recs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOnly, "json-only", false, "Print only the JSON recommendations")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml")
	return cmd
}

// loadResult reads ref as a result file, falling back to an id in the
// configured store.
func loadResult(ctx context.Context, a *app, ref string) (*models.BenchmarkResult, error) {
	if _, err := os.Stat(ref); err == nil {
		return store.Load(ref)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	st, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	result, err := st.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no benchmark file or stored run named %q", ref)
	}
	return result, err
}
