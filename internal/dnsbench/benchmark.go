// Package dnsbench measures and ranks DNS resolvers by querying a fixed
// panel of domains through each of them.
package dnsbench

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/metrics"
	"github.com/internet-performance-optimizer/internal/models"
)

const (
	DefaultWorkers = 10
	DefaultTimeout = 2 * time.Second
)

// Querier resolves one domain through one resolver. A nil error means the
// query succeeded and took the returned duration; any error is a failed
// query.
type Querier interface {
	Query(ctx context.Context, domain, resolver string) (time.Duration, error)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc func(ctx context.Context, domain, resolver string) (time.Duration, error)

func (f QuerierFunc) Query(ctx context.Context, domain, resolver string) (time.Duration, error) {
	return f(ctx, domain, resolver)
}

// Benchmark runs the domain panel against each resolver with at most
// Workers queries in flight. A Benchmark holds no per-run state and may be
// reused.
type Benchmark struct {
	Querier   Querier
	Resolvers []string
	Domains   []string
	Workers   int
	Timeout   time.Duration
	Logger    logrus.FieldLogger
}

// New returns a Benchmark with default width, timeout and panel.
func New(q Querier, resolvers []string, logger logrus.FieldLogger) *Benchmark {
	if len(resolvers) == 0 {
		resolvers = DefaultResolvers
	}
	return &Benchmark{
		Querier:   q,
		Resolvers: resolvers,
		Domains:   Domains(DefaultDomainCount),
		Workers:   DefaultWorkers,
		Timeout:   DefaultTimeout,
		Logger:    logger,
	}
}

type queryOutcome struct {
	domain string
	rtt    time.Duration
	err    error
}

// Run benchmarks every resolver in turn and returns the results ranked
// fastest first.
func (b *Benchmark) Run(ctx context.Context) []models.DNSResult {
	results := make([]models.DNSResult, 0, len(b.Resolvers))
	for _, resolver := range b.Resolvers {
		results = append(results, b.Resolver(ctx, resolver))
	}
	Rank(results)
	return results
}

// Resolver queries every panel domain through resolver and aggregates the
// outcomes. Failed queries count as attempts without a latency sample.
func (b *Benchmark) Resolver(ctx context.Context, resolver string) models.DNSResult {
	domains := b.Domains
	if len(domains) == 0 {
		domains = Domains(DefaultDomainCount)
	}
	workers := b.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := logging.FromContext(ctx, b.Logger).WithField("resolver", resolver)
	log.Info("Benchmarking DNS resolver")

	outcomes := make(chan queryOutcome, len(domains))
	var g errgroup.Group
	g.SetLimit(workers)
	for _, domain := range domains {
		domain := domain
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			rtt, err := b.Querier.Query(qctx, domain, resolver)
			outcomes <- queryOutcome{domain: domain, rtt: rtt, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)

	label := metrics.ResolverLabel(resolver)
	samples := make([]float64, 0, len(domains))
	for o := range outcomes {
		if o.err != nil || o.rtt <= 0 {
			metrics.DNSQueriesTotal.WithLabelValues(label, "failure").Inc()
			log.WithField("domain", o.domain).WithError(o.err).Debug("DNS query failed")
			continue
		}
		metrics.DNSQueriesTotal.WithLabelValues(label, "success").Inc()
		metrics.DNSQueryDuration.WithLabelValues(label).Observe(o.rtt.Seconds())
		samples = append(samples, float64(o.rtt)/float64(time.Millisecond))
	}

	result := aggregate(resolver, samples, len(domains))
	if len(samples) == 0 {
		log.Error("All DNS queries failed")
	} else {
		log.WithFields(logrus.Fields{
			"median_ms":    result.MedianMs,
			"p95_ms":       result.P95Ms,
			"success_rate": result.SuccessRate,
		}).Info("DNS resolver benchmarked")
	}
	return result
}

func aggregate(resolver string, samples []float64, attempts int) models.DNSResult {
	result := models.DNSResult{Resolver: resolver, Samples: attempts}
	if len(samples) == 0 || attempts == 0 {
		return result
	}

	result.MedianMs, result.P95Ms = models.CalculatePercentiles(samples)
	result.SuccessRate = float64(len(samples)) / float64(attempts) * 100
	return result
}

// Rank orders results by ascending median. Resolvers that never answered
// (median 0) sort last; ties keep their input order.
func Rank(results []models.DNSResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return rankKey(results[i]) < rankKey(results[j])
	})
}

func rankKey(r models.DNSResult) float64 {
	if r.MedianMs <= 0 {
		return math.Inf(1)
	}
	return r.MedianMs
}
