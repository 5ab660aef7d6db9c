package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/dnsbench"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/report"
	"github.com/internet-performance-optimizer/internal/runner"
	"github.com/internet-performance-optimizer/internal/store"
)

// BenchFlags are converted to BenchOptions before a run.
type BenchFlags struct {
	Target         string
	Count          int
	Output         string
	SkipThroughput bool
	SkipDNS        bool
	JSONOnly       bool
	Format         string
	Backend        string
	IperfServer    string
	Resolvers      string
}

func (flags *BenchFlags) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flags.Target, "target", "t", "",
		"Host to ping (default from IPO_TARGET)")
	cmd.Flags().IntVarP(&flags.Count, "count", "c", 0,
		"Number of ICMP echo requests (default from IPO_PING_COUNT)")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "",
		"Write the result to this file instead of the configured store")
	cmd.Flags().BoolVar(&flags.SkipThroughput, "skip-throughput", false,
		"Skip the throughput and jitter phases")
	cmd.Flags().BoolVar(&flags.SkipDNS, "skip-dns", false,
		"Skip the DNS resolver benchmark")
	cmd.Flags().BoolVar(&flags.JSONOnly, "json-only", false,
		"Print only the JSON result")
	cmd.Flags().StringVar(&flags.Format, "format", "text",
		"Output format: text, json or yaml")
	cmd.Flags().StringVar(&flags.Backend, "throughput-backend", "",
		"Throughput backend: iperf3 or speedtest")
	cmd.Flags().StringVar(&flags.IperfServer, "iperf-server", "",
		"iperf3 server to measure against")
	cmd.Flags().StringVar(&flags.Resolvers, "resolvers", "",
		"Comma separated resolvers to benchmark, addresses or names such as cloudflare,quad9")
}

// BenchOptions is a validated benchmark invocation.
type BenchOptions struct {
	Run        benchmark.Options
	Format     report.Format
	OutputPath string
}

func (flags *BenchFlags) ToOptions(a *app) (*BenchOptions, error) {
	if flags.Count < 0 {
		return nil, fmt.Errorf("--count must be positive")
	}
	format, err := report.ParseFormat(flags.Format)
	if err != nil {
		return nil, err
	}
	if flags.JSONOnly {
		format = report.FormatJSON
	}

	cfg := a.cfg
	if flags.Backend != "" {
		cfg.Iperf.Backend = flags.Backend
	}
	if flags.IperfServer != "" {
		cfg.Iperf.Server = flags.IperfServer
	}
	if flags.Resolvers != "" {
		cfg.DNS.Resolvers = dnsbench.ParseResolvers(flags.Resolvers)
		if len(cfg.DNS.Resolvers) == 0 {
			return nil, fmt.Errorf("--resolvers lists no resolvers")
		}
	}

	o := &BenchOptions{
		Run: benchmark.Options{
			Target:         cfg.Benchmark.Target,
			PingCount:      cfg.Benchmark.PingCount,
			SkipThroughput: cfg.Benchmark.SkipThroughput || flags.SkipThroughput,
			SkipDNS:        cfg.Benchmark.SkipDNS || flags.SkipDNS,
		},
		Format:     format,
		OutputPath: flags.Output,
	}
	if flags.Target != "" {
		o.Run.Target = flags.Target
	}
	if flags.Count > 0 {
		o.Run.PingCount = flags.Count
	}
	return o, nil
}

func newCmdBench(a *app) *cobra.Command {
	flags := &BenchFlags{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a network benchmark",
		Example: `  ipo bench
  ipo bench --target 1.1.1.1 --count 500
  ipo bench --skip-throughput --json-only > result.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := flags.ToOptions(a)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBench(ctx, a, o)
		},
	}
	flags.AddFlags(cmd)
	return cmd
}

func runBench(ctx context.Context, a *app, o *BenchOptions) error {
	shutdownTracing, err := a.initTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	var observer benchmark.Observer = benchmark.NopObserver{}
	if o.Format == report.FormatText {
		observer = &consoleObserver{w: os.Stderr}
		fmt.Fprintf(os.Stderr, "Starting network benchmark (target: %s, %d ping samples)\n",
			o.Run.Target, o.Run.PingCount)
	}

	orch, err := a.orchestrator(observer)
	if err != nil {
		return err
	}
	r := &runner.Runner{
		Orchestrator: orch,
		Engine:       a.engine(),
		Logger:       a.logger,
	}

	if o.OutputPath == "" {
		st, _, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		r.Store = st
	}

	bus, err := a.publisher(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("NATS unavailable, results will not be published")
	} else if bus != nil {
		defer bus.Close()
		r.Publisher = bus
	}

	out, runErr := r.Execute(ctx, o.Run)
	if out == nil {
		return runErr
	}
	if runErr != nil {
		a.logger.WithError(runErr).Error("Benchmark finished but could not be stored")
	}

	location := out.StoredID
	if o.OutputPath != "" {
		if err := store.WriteFile(o.OutputPath, out.Result); err != nil {
			return err
		}
		location = o.OutputPath
	} else if out.StoredID != "" && (a.cfg.Storage.Backend == "file" || a.cfg.Storage.Backend == "") {
		location = filepath.Join(a.cfg.Storage.Dir, out.StoredID+".json")
	}

	if o.Format != report.FormatText {
		if err := report.Encode(a.out, out.Result, o.Format); err != nil {
			return err
		}
		return runErr
	}

	report.PrintSummary(a.out, out.Result)
	if location != "" {
		fmt.Fprintf(a.out, "\nResults saved to: %s\n", location)
		fmt.Fprintf(a.out, "%d recommendations, view them with: ipo recommend %s\n",
			len(out.Recommendations), location)
	}
	return runErr
}

// consoleObserver prints phase progress for interactive runs.
type consoleObserver struct {
	w io.Writer
}

func (c *consoleObserver) RunStarted(runID, target string) {}

func (c *consoleObserver) PhaseStarted(runID string, phase benchmark.Phase) {
	fmt.Fprintf(c.w, "  %-12s running...\n", phase)
}

func (c *consoleObserver) PhaseCompleted(runID string, phase benchmark.Phase, elapsed time.Duration, err error) {
	if err != nil {
		fmt.Fprintf(c.w, "  %-12s %s (%v)\n", phase, color.YellowString("degraded"), err)
		return
	}
	fmt.Fprintf(c.w, "  %-12s %s in %s\n", phase, color.GreenString("done"), elapsed.Round(10*time.Millisecond))
}

func (c *consoleObserver) PhaseSkipped(runID string, phase benchmark.Phase) {
	fmt.Fprintf(c.w, "  %-12s skipped\n", phase)
}

func (c *consoleObserver) RunCompleted(result *models.BenchmarkResult) {}
