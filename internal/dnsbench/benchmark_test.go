package dnsbench

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/internet-performance-optimizer/internal/models"
)

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// tableQuerier answers from a per-domain latency table; missing domains fail.
type tableQuerier struct {
	latencies map[string]time.Duration
}

func (q tableQuerier) Query(ctx context.Context, domain, resolver string) (time.Duration, error) {
	if d, ok := q.latencies[domain]; ok {
		return d, nil
	}
	return 0, errors.New("timeout")
}

func TestResolverAggregation(t *testing.T) {
	tests := []struct {
		name        string
		domains     []string
		latencies   map[string]time.Duration
		wantMedian  float64
		wantP95     float64
		wantSuccess float64
	}{
		{
			name:    "two of three succeed",
			domains: []string{"a.test", "b.test", "c.test"},
			latencies: map[string]time.Duration{
				"a.test": 10 * time.Millisecond,
				"b.test": 30 * time.Millisecond,
			},
			wantMedian:  20,
			wantP95:     29,
			wantSuccess: 66.6667,
		},
		{
			name:    "single success",
			domains: []string{"a.test", "b.test"},
			latencies: map[string]time.Duration{
				"b.test": 12 * time.Millisecond,
			},
			wantMedian:  12,
			wantP95:     12,
			wantSuccess: 50,
		},
		{
			name:        "all fail",
			domains:     []string{"a.test", "b.test", "c.test", "d.test"},
			latencies:   map[string]time.Duration{},
			wantMedian:  0,
			wantP95:     0,
			wantSuccess: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tableQuerier{latencies: tt.latencies}, []string{"9.9.9.9"}, quietLogger())
			b.Domains = tt.domains

			got := b.Resolver(context.Background(), "9.9.9.9")

			if got.Resolver != "9.9.9.9" {
				t.Errorf("resolver: expected 9.9.9.9, got %q", got.Resolver)
			}
			if got.Samples != len(tt.domains) {
				t.Errorf("samples: expected %d, got %d", len(tt.domains), got.Samples)
			}
			if math.Abs(got.MedianMs-tt.wantMedian) > 0.001 {
				t.Errorf("median: expected %v, got %v", tt.wantMedian, got.MedianMs)
			}
			if math.Abs(got.P95Ms-tt.wantP95) > 0.001 {
				t.Errorf("p95: expected %v, got %v", tt.wantP95, got.P95Ms)
			}
			if math.Abs(got.SuccessRate-tt.wantSuccess) > 0.001 {
				t.Errorf("success rate: expected %v, got %v", tt.wantSuccess, got.SuccessRate)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("result should validate: %v", err)
			}
		})
	}
}

func TestResolverBoundedConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	q := QuerierFunc(func(ctx context.Context, domain, resolver string) (time.Duration, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return 5 * time.Millisecond, nil
	})

	b := New(q, nil, quietLogger())
	b.Domains = Domains(30)
	b.Workers = 4

	got := b.Resolver(context.Background(), "1.1.1.1")

	if maxInFlight > 4 {
		t.Errorf("expected at most 4 queries in flight, saw %d", maxInFlight)
	}
	if got.SuccessRate != 100 {
		t.Errorf("success rate: expected 100, got %v", got.SuccessRate)
	}
}

func TestResolverPerQueryTimeout(t *testing.T) {
	q := QuerierFunc(func(ctx context.Context, domain, resolver string) (time.Duration, error) {
		if domain == "slow.test" {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 3 * time.Millisecond, nil
	})

	b := New(q, nil, quietLogger())
	b.Domains = []string{"fast.test", "slow.test"}
	b.Timeout = 20 * time.Millisecond

	start := time.Now()
	got := b.Resolver(context.Background(), "8.8.8.8")

	if time.Since(start) > time.Second {
		t.Error("slow query should have been cut off by the per-query timeout")
	}
	if got.SuccessRate != 50 {
		t.Errorf("success rate: expected 50, got %v", got.SuccessRate)
	}
}

func TestResolverConcurrentCallsDoNotShareState(t *testing.T) {
	b := New(tableQuerier{latencies: map[string]time.Duration{
		"a.test": 4 * time.Millisecond,
		"b.test": 8 * time.Millisecond,
	}}, nil, quietLogger())
	b.Domains = []string{"a.test", "b.test"}

	var wg sync.WaitGroup
	results := make([]models.DNSResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.Resolver(context.Background(), "1.1.1.1")
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r.Samples != 2 || r.MedianMs != 6 {
			t.Errorf("result %d: unexpected %+v", i, r)
		}
	}
}

func TestRunRanksResolvers(t *testing.T) {
	q := QuerierFunc(func(ctx context.Context, domain, resolver string) (time.Duration, error) {
		switch resolver {
		case "8.8.8.8":
			return 25 * time.Millisecond, nil
		case "1.1.1.1":
			return 9 * time.Millisecond, nil
		}
		return 0, errors.New("refused")
	})

	b := New(q, []string{"203.0.113.1", "8.8.8.8", "1.1.1.1"}, quietLogger())
	b.Domains = []string{"a.test", "b.test"}

	got := b.Run(context.Background())

	want := []string{"1.1.1.1", "8.8.8.8", "203.0.113.1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i, resolver := range want {
		if got[i].Resolver != resolver {
			t.Errorf("position %d: expected %s, got %s", i, resolver, got[i].Resolver)
		}
	}
	if got[2].MedianMs != 0 {
		t.Errorf("failed resolver must keep median 0, got %v", got[2].MedianMs)
	}
}

func TestRankStable(t *testing.T) {
	results := []models.DNSResult{
		{Resolver: "dead-1", MedianMs: 0, Samples: 1},
		{Resolver: "tie-a", MedianMs: 15, Samples: 1},
		{Resolver: "dead-2", MedianMs: 0, Samples: 1},
		{Resolver: "fast", MedianMs: 3, Samples: 1},
		{Resolver: "tie-b", MedianMs: 15, Samples: 1},
	}

	Rank(results)

	want := []string{"fast", "tie-a", "tie-b", "dead-1", "dead-2"}
	for i, resolver := range want {
		if results[i].Resolver != resolver {
			t.Errorf("position %d: expected %s, got %s", i, resolver, results[i].Resolver)
		}
	}
}

func TestParseResolvers(t *testing.T) {
	got := ParseResolvers("cloudflare, 9.9.9.9,,Google ,10.0.0.1")
	want := []string{"1.1.1.1", "9.9.9.9", "8.8.8.8", "10.0.0.1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDomainsSelection(t *testing.T) {
	if got := Domains(0); len(got) != DefaultDomainCount {
		t.Errorf("default panel: expected %d, got %d", DefaultDomainCount, len(got))
	}
	if got := Domains(5); len(got) != 5 || got[0] != "google.com" {
		t.Errorf("unexpected panel %v", got)
	}
	if got := Domains(500); len(got) != len(TestDomains) {
		t.Errorf("oversized panel should be capped at %d, got %d", len(TestDomains), len(got))
	}
	if got := Domains(-1); len(got) != DefaultDomainCount {
		t.Errorf("negative count: expected %d, got %d", DefaultDomainCount, len(got))
	}
}
