// Package benchmark runs the measurement phases of one benchmark in order
// and assembles their results into a single record.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/internet-performance-optimizer/internal/latency"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/metrics"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/tracing"
)

const DefaultPingCount = 1000

// LatencyProbe samples round trips to a target.
type LatencyProbe interface {
	Sample(ctx context.Context, target string, count int) (samples []float64, failures int, err error)
}

type ThroughputProbe interface {
	Throughput(ctx context.Context) (models.ThroughputResult, error)
}

type JitterProbe interface {
	Jitter(ctx context.Context) (models.JitterResult, error)
}

// BufferbloatMeasurer estimates latency under load for a target.
type BufferbloatMeasurer interface {
	Measure(ctx context.Context, target string) (models.BufferbloatResult, error)
	PolicyName() string
}

// ResolverBenchmark ranks DNS resolvers. It reports per-query failures in
// its results and has no error return of its own.
type ResolverBenchmark interface {
	Run(ctx context.Context) []models.DNSResult
}

type SystemInfoCollector interface {
	Collect(ctx context.Context) (map[string]any, error)
}

// Options selects what a single run measures. RunID is generated when
// empty.
type Options struct {
	RunID          string
	Target         string
	PingCount      int
	SkipThroughput bool
	SkipDNS        bool
}

// ErrNotConfigured is reported for a phase whose collaborator is missing.
var ErrNotConfigured = errors.New("collaborator not configured")

// Orchestrator runs the phases of a benchmark strictly one after another:
// system info, ICMP, throughput, jitter, bufferbloat, DNS. A failing phase
// degrades to a placeholder and never aborts the run.
type Orchestrator struct {
	Latency           LatencyProbe
	Throughput        ThroughputProbe
	Jitter            JitterProbe
	Bufferbloat       BufferbloatMeasurer
	DNS               ResolverBenchmark
	SystemInfo        SystemInfoCollector
	ThroughputBackend string

	logger   logrus.FieldLogger
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
	newRunID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger each run derives its run-scoped entry from.
// Without it runs log nowhere.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunIDs replaces the uuid run identifier generator, for tests.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newRunID = next }
}

// New returns an Orchestrator with no collaborators. Assign the exported
// fields before calling Run.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:   logging.Discard(),
		observer: NopObserver{},
		tracer:   tracing.GetTracer("ipo/benchmark"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	return o
}

type runState struct {
	id       string
	log      logrus.FieldLogger
	degraded []string
}

// Run executes one benchmark. Collaborator failures and malformed
// collaborator output are absorbed into placeholder results at the phase
// boundary; the only error is an assembled result that still fails
// validation.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*models.BenchmarkResult, error) {
	if opts.Target == "" {
		return nil, errors.New("benchmark target is required")
	}
	if opts.PingCount <= 0 {
		opts.PingCount = DefaultPingCount
	}

	if opts.RunID == "" {
		opts.RunID = o.newRunID()
	}
	run := &runState{id: opts.RunID}
	run.log = o.logger.WithFields(logrus.Fields{"run_id": run.id, "target": opts.Target})
	ctx = logging.WithLogger(ctx, run.log)

	ctx, span := o.tracer.Start(ctx, "benchmark.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", run.id),
		attribute.String("target", opts.Target),
		attribute.Int("ping_count", opts.PingCount),
	)

	run.log.WithFields(logrus.Fields{
		"ping_count":      opts.PingCount,
		"skip_throughput": opts.SkipThroughput,
		"skip_dns":        opts.SkipDNS,
	}).Info("Starting benchmark")
	o.observer.RunStarted(run.id, opts.Target)

	result := &models.BenchmarkResult{
		Timestamp:  o.now().UTC(),
		Target:     opts.Target,
		SystemInfo: map[string]any{"os": runtime.GOOS},
		ICMP:       latency.Summarize(nil, opts.PingCount),
		DNS:        []models.DNSResult{},
		Metadata: models.Metadata{
			RunID:             run.id,
			PingCount:         opts.PingCount,
			SkipThroughput:    opts.SkipThroughput,
			SkipDNS:           opts.SkipDNS,
			ThroughputBackend: o.ThroughputBackend,
		},
	}
	if o.Bufferbloat != nil {
		result.Metadata.BufferbloatPolicy = o.Bufferbloat.PolicyName()
		result.Metadata.BufferbloatEstimated = true
	}
	result.Bufferbloat = models.BufferbloatResult{Grade: models.GradeAPlus}

	o.runPhase(ctx, run, PhaseSystemInfo, func(ctx context.Context) error {
		if o.SystemInfo == nil {
			return ErrNotConfigured
		}
		info, err := o.SystemInfo.Collect(ctx)
		if err != nil {
			result.SystemInfo["error"] = err.Error()
			return err
		}
		if info != nil {
			result.SystemInfo = info
		}
		return nil
	})

	o.runPhase(ctx, run, PhaseICMP, func(ctx context.Context) error {
		if o.Latency == nil {
			return ErrNotConfigured
		}
		samples, failures, err := o.Latency.Sample(ctx, opts.Target, opts.PingCount)
		if err != nil {
			return err
		}
		icmp := latency.Summarize(samples, failures)
		if err := icmp.Validate(); err != nil {
			return fmt.Errorf("malformed latency samples: %w", err)
		}
		tracing.AddSpanAttributes(ctx, attribute.Int("samples", icmp.Samples))
		result.ICMP = icmp
		return nil
	})

	if opts.SkipThroughput {
		o.skipPhase(ctx, run, PhaseThroughput)
		o.skipPhase(ctx, run, PhaseJitter)
	} else {
		o.runPhase(ctx, run, PhaseThroughput, func(ctx context.Context) error {
			if o.Throughput == nil {
				return ErrNotConfigured
			}
			tp, err := o.Throughput.Throughput(ctx)
			if err != nil {
				return err
			}
			if err := tp.Validate(); err != nil {
				return fmt.Errorf("malformed throughput result: %w", err)
			}
			result.Throughput = tp
			return nil
		})

		o.runPhase(ctx, run, PhaseJitter, func(ctx context.Context) error {
			if o.Jitter == nil {
				return ErrNotConfigured
			}
			j, err := o.Jitter.Jitter(ctx)
			if err != nil {
				return err
			}
			if err := j.Validate(); err != nil {
				return fmt.Errorf("malformed jitter result: %w", err)
			}
			result.Jitter = j
			return nil
		})
	}

	o.runPhase(ctx, run, PhaseBufferbloat, func(ctx context.Context) error {
		if o.Bufferbloat == nil {
			return ErrNotConfigured
		}
		bb, err := o.Bufferbloat.Measure(ctx, opts.Target)
		if err != nil {
			return err
		}
		if err := bb.Validate(); err != nil {
			return fmt.Errorf("malformed bufferbloat result: %w", err)
		}
		result.Bufferbloat = bb
		return nil
	})

	if opts.SkipDNS {
		o.skipPhase(ctx, run, PhaseDNS)
	} else {
		o.runPhase(ctx, run, PhaseDNS, func(ctx context.Context) error {
			if o.DNS == nil {
				return ErrNotConfigured
			}
			dns := o.DNS.Run(ctx)
			for i, d := range dns {
				if err := d.Validate(); err != nil {
					return fmt.Errorf("malformed dns result %d: %w", i, err)
				}
			}
			if dns != nil {
				result.DNS = dns
			}
			tracing.AddSpanAttributes(ctx, attribute.Int("resolvers", len(result.DNS)))
			return nil
		})
	}

	if len(run.degraded) > 0 {
		result.Metadata.DegradedPhases = run.degraded
	}

	if err := result.Validate(); err != nil {
		metrics.BenchmarkRunsTotal.WithLabelValues("invalid").Inc()
		tracing.RecordError(ctx, err)
		run.log.WithError(err).Error("Benchmark result failed validation")
		return nil, fmt.Errorf("benchmark %s produced an invalid result: %w", run.id, err)
	}

	status := "ok"
	if len(run.degraded) > 0 {
		status = "degraded"
	}
	metrics.BenchmarkRunsTotal.WithLabelValues(status).Inc()
	targetLabel := metrics.TargetLabel(opts.Target)
	metrics.LatencyP50.WithLabelValues(targetLabel).Set(result.ICMP.P50)
	metrics.BufferbloatIncrease.WithLabelValues(targetLabel).Set(result.Bufferbloat.LatencyIncreaseMs)

	run.log.WithFields(logrus.Fields{
		"p50_ms":          result.ICMP.P50,
		"packet_loss":     result.ICMP.PacketLoss,
		"grade":           result.Bufferbloat.Grade,
		"degraded_phases": len(run.degraded),
	}).Info("Benchmark complete")
	o.observer.RunCompleted(result)

	return result, nil
}
