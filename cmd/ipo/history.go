package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/report"
	"github.com/internet-performance-optimizer/internal/store"
)

func newCmdHistory(a *app) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "List stored benchmarks or show one of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				result, err := loadResult(ctx, a, args[0])
				if err != nil {
					return err
				}
				if f != report.FormatText {
					return report.Encode(a.out, result, f)
				}
				report.PrintSummary(a.out, result)
				return nil
			}

			st, _, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := st.List(ctx, limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []store.Entry{}
			}
			if f != report.FormatText {
				return report.Encode(a.out, entries, f)
			}
			printHistory(a, entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list (0 lists all)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml")
	return cmd
}

func printHistory(a *app, entries []store.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No stored benchmarks.")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAKEN\tTARGET\tGRADE\tP50 MS\tLOSS %\tDOWN MBPS\tDNS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%.1f\t%.1f\t%s\n",
			e.ID,
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Target,
			e.Grade,
			e.P50Ms,
			e.PacketLoss,
			e.DownloadMbps,
			e.FastestResolver,
		)
	}
	tw.Flush()
}
