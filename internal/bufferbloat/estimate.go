package bufferbloat

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/latency"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
)

// EstimationPolicy derives a loaded latency from an idle one. Policies that
// do not actually load the link must say so through their name, which is
// recorded on every run.
type EstimationPolicy interface {
	Name() string
	Loaded(idleMs float64) float64
}

// FixedFactor approximates loaded latency as idle * Factor. Build one with
// NewFixedFactor so the factor is checked.
type FixedFactor struct {
	Factor float64
}

// NewFixedFactor returns a FixedFactor policy. The factor must be a finite
// number of at least 1: a loaded link is never faster than an idle one.
func NewFixedFactor(factor float64) (FixedFactor, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < 1 {
		return FixedFactor{}, fmt.Errorf("bufferbloat factor must be a finite number >= 1, got %v", factor)
	}
	return FixedFactor{Factor: factor}, nil
}

// DefaultPolicy is the fixed 1.5x approximation.
var DefaultPolicy = FixedFactor{Factor: 1.5}

func (f FixedFactor) Name() string {
	return fmt.Sprintf("fixed-factor-x%g", f.Factor)
}

func (f FixedFactor) Loaded(idleMs float64) float64 {
	return idleMs * f.Factor
}

// Evaluate builds a bufferbloat result from an idle latency and a policy.
// Inputs are taken as given; a negative or NaN idle latency shows up when
// the result is validated.
func Evaluate(idleMs float64, policy EstimationPolicy) models.BufferbloatResult {
	loaded := policy.Loaded(idleMs)
	increase := loaded - idleMs

	var pct float64
	if idleMs > 0 {
		pct = increase / idleMs * 100
	}

	return models.BufferbloatResult{
		IdleLatencyMs:      idleMs,
		LoadedLatencyMs:    loaded,
		LatencyIncreaseMs:  increase,
		LatencyIncreasePct: pct,
		Grade:              Grade(increase),
	}
}

// LatencyProbe samples round-trip times to a target. samples are the
// successful RTTs in milliseconds, failures the attempts without a reply.
type LatencyProbe interface {
	Sample(ctx context.Context, target string, count int) (samples []float64, failures int, err error)
}

// Measurer takes an idle baseline and evaluates it with a policy.
type Measurer struct {
	Probe       LatencyProbe
	Policy      EstimationPolicy
	IdleSamples int
	Logger      logrus.FieldLogger
}

// NewMeasurer returns a Measurer using the default policy and 50 idle samples.
func NewMeasurer(probe LatencyProbe, logger logrus.FieldLogger) *Measurer {
	return &Measurer{
		Probe:       probe,
		Policy:      DefaultPolicy,
		IdleSamples: 50,
		Logger:      logger,
	}
}

// Measure samples idle latency to target and returns the evaluated result.
// A baseline without any reply is an error; the caller decides on a
// placeholder.
func (m *Measurer) Measure(ctx context.Context, target string) (models.BufferbloatResult, error) {
	count := m.IdleSamples
	if count <= 0 {
		count = 50
	}
	samples, failures, err := m.Probe.Sample(ctx, target, count)
	if err != nil {
		return models.BufferbloatResult{}, fmt.Errorf("idle baseline: %w", err)
	}
	if len(samples) == 0 {
		return models.BufferbloatResult{}, fmt.Errorf("idle baseline: no replies from %s (%d lost)", target, failures)
	}

	idle := latency.Summarize(samples, failures).P50
	result := Evaluate(idle, m.Policy)

	logging.FromContext(ctx, m.Logger).WithFields(logrus.Fields{
		"idle_ms":   result.IdleLatencyMs,
		"loaded_ms": result.LoadedLatencyMs,
		"grade":     result.Grade,
		"policy":    m.Policy.Name(),
	}).Info("Bufferbloat estimated")
	return result, nil
}

// PolicyName reports the estimation policy recorded on run metadata.
func (m *Measurer) PolicyName() string {
	return m.Policy.Name()
}
