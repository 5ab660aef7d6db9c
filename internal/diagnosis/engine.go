// Package diagnosis turns a benchmark result into an ordered list of
// tuning recommendations.
package diagnosis

import (
	"context"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/metrics"
	"github.com/internet-performance-optimizer/internal/models"
)

// Rule evaluates one diagnostic against a result and yields at most one
// recommendation.
type Rule struct {
	ID       string
	Evaluate func(result *models.BenchmarkResult) (models.Recommendation, bool)
}

// Engine evaluates a fixed, ordered set of independent rules. It keeps no
// state between calls.
type Engine struct {
	platform string
	logger   logrus.FieldLogger
	rules    []Rule
}

// Option configures an Engine.
type Option func(*Engine)

// WithPlatform overrides the operating system used by platform-specific
// rules. Defaults to runtime.GOOS.
func WithPlatform(goos string) Option {
	return func(e *Engine) {
		e.platform = goos
	}
}

// WithLogger sets the fallback logger for calls whose context carries none.
// Without it those calls log nowhere.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine builds an engine with the rules in declaration order:
// SQM, packet loss, DNS, jitter, NIC RSS.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		platform: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}

	e.rules = []Rule{
		{ID: IDSQM, Evaluate: RecommendSQM},
		{ID: IDPacketLoss, Evaluate: RecommendPacketLossInvestigation},
		{ID: IDDNS, Evaluate: RecommendDNS},
		{ID: IDJitter, Evaluate: RecommendJitterReduction},
		{ID: IDNICRSS, Evaluate: func(*models.BenchmarkResult) (models.Recommendation, bool) {
			return RecommendNICRSS(e.platform)
		}},
	}
	return e
}

// Platform returns the operating system the engine evaluates for.
func (e *Engine) Platform() string {
	return e.platform
}

// Rules returns the rule identifiers in evaluation order.
func (e *Engine) Rules() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	return ids
}

// Generate evaluates every rule against result and returns the fired
// recommendations in rule order. A nil result yields no recommendations.
// It logs through the run logger attached to ctx, if any.
func (e *Engine) Generate(ctx context.Context, result *models.BenchmarkResult) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(e.rules))
	if result == nil {
		return recs
	}
	log := logging.FromContext(ctx, e.logger)

	for _, rule := range e.rules {
		rec, ok := rule.Evaluate(result)
		if !ok {
			continue
		}
		recs = append(recs, rec)
		metrics.RecommendationsTotal.WithLabelValues(rec.ID, string(rec.Confidence)).Inc()
		log.WithFields(logrus.Fields{
			"id":         rec.ID,
			"confidence": rec.Confidence,
		}).Info("Added recommendation")
	}

	log.WithField("count", len(recs)).Info("Generated recommendations")
	return recs
}
