// Package metrics exposes Prometheus instruments for benchmark runs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipo_phase_duration_seconds",
			Help:    "Duration of each benchmark phase",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase", "status"},
	)

	PhaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipo_phase_failures_total",
			Help: "Benchmark phases that degraded to a placeholder result",
		},
		[]string{"phase"},
	)

	BenchmarkRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipo_benchmark_runs_total",
			Help: "Completed benchmark runs by outcome",
		},
		[]string{"status"},
	)

	DNSQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipo_dns_queries_total",
			Help: "DNS benchmark queries by resolver and result",
		},
		[]string{"resolver", "result"},
	)

	DNSQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipo_dns_query_duration_seconds",
			Help:    "Latency of successful DNS benchmark queries",
			Buckets: []float64{0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"resolver"},
	)

	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipo_recommendations_total",
			Help: "Recommendations generated by rule and confidence",
		},
		[]string{"id", "confidence"},
	)

	LatencyP50 = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipo_icmp_latency_p50_ms",
			Help: "Median ICMP latency of the last run per target",
		},
		[]string{"target"},
	)

	BufferbloatIncrease = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipo_bufferbloat_increase_ms",
			Help: "Latency increase under load of the last run per target",
		},
		[]string{"target"},
	)

	PublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipo_results_published_total",
			Help: "Benchmark results published to the message queue",
		},
		[]string{"status"},
	)

	registerOnce sync.Once
)

func init() {
	registerOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(
			PhaseDuration,
			PhaseFailuresTotal,
			BenchmarkRunsTotal,
			DNSQueriesTotal,
			DNSQueryDuration,
			RecommendationsTotal,
			LatencyP50,
			BufferbloatIncrease,
			PublishedTotal,
		)
	})
}
