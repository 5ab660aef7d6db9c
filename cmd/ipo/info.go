package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/config"
	"github.com/internet-performance-optimizer/internal/probe"
	"github.com/internet-performance-optimizer/internal/report"
)

func newCmdInfo(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show system and network information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			sys := &probe.SystemInfo{ClientID: a.clientID(), Logger: a.logger}
			info, err := sys.Collect(cmd.Context())
			if err != nil {
				return err
			}
			if f != report.FormatText {
				return report.Encode(a.out, info, f)
			}

			fmt.Fprintln(a.out, "System Information:")
			for _, key := range slices.Sorted(maps.Keys(info)) {
				fmt.Fprintf(a.out, "  %-20s %s\n", key+":", formatValue(info[key]))
			}
			fmt.Fprintf(a.out, "\nState directory: %s\n", config.HomeDir())
			engine := a.engine()
			fmt.Fprintf(a.out, "Recommendation rules (%s): %s\n",
				engine.Platform(), strings.Join(engine.Rules(), ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml")
	return cmd
}

func formatValue(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	}
	return fmt.Sprint(v)
}
