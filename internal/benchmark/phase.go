package benchmark

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"

	"github.com/internet-performance-optimizer/internal/metrics"
	"github.com/internet-performance-optimizer/internal/tracing"
)

// Phase names a step of a benchmark run.
type Phase string

const (
	PhaseSystemInfo  Phase = "system-info"
	PhaseICMP        Phase = "icmp"
	PhaseThroughput  Phase = "throughput"
	PhaseJitter      Phase = "jitter"
	PhaseBufferbloat Phase = "bufferbloat"
	PhaseDNS         Phase = "dns"
)

// Phases lists every phase in execution order.
var Phases = []Phase{PhaseSystemInfo, PhaseICMP, PhaseThroughput, PhaseJitter, PhaseBufferbloat, PhaseDNS}

// PanicError is returned for a phase that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// safeCall runs fn, converting a panic into a *PanicError.
func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// runPhase is the isolation boundary of a phase: it traces and times fn,
// recovers panics and records a failure once. The caller has already put
// the placeholder in place, so a failed phase leaves it untouched.
func (o *Orchestrator) runPhase(ctx context.Context, run *runState, phase Phase, fn func(ctx context.Context) error) {
	ctx, span := o.tracer.Start(ctx, "benchmark."+string(phase))
	defer span.End()
	span.SetAttributes(attribute.String("run_id", run.id), attribute.String("phase", string(phase)))

	log := run.log.WithField("phase", phase)
	log.Info("Phase started")
	o.observer.PhaseStarted(run.id, phase)

	start := o.now()
	err := safeCall(ctx, fn)
	elapsed := o.now().Sub(start)

	status := "ok"
	if err != nil {
		status = "failed"
		run.degraded = append(run.degraded, string(phase))
		metrics.PhaseFailuresTotal.WithLabelValues(string(phase)).Inc()
		tracing.RecordError(ctx, err)
		entry := log.WithError(err).WithField("duration", elapsed)
		if perr, ok := err.(*PanicError); ok {
			entry = entry.WithField("stack", string(perr.Stack))
		}
		entry.Warn("Phase failed, continuing with placeholder result")
		tracing.AddSpanEvent(ctx, "phase.degraded", attribute.String("phase", string(phase)))
	} else {
		log.WithField("duration", elapsed).Info("Phase completed")
	}

	metrics.PhaseDuration.WithLabelValues(string(phase), status).Observe(elapsed.Seconds())
	o.observer.PhaseCompleted(run.id, phase, elapsed, err)
}

// skipPhase records a phase that was configured off as an event on the run
// span.
func (o *Orchestrator) skipPhase(ctx context.Context, run *runState, phase Phase) {
	run.log.WithField("phase", phase).Info("Phase skipped")
	tracing.AddSpanEvent(ctx, "phase.skipped", attribute.String("phase", string(phase)))
	o.observer.PhaseSkipped(run.id, phase)
}
