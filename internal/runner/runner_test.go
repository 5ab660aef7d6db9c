package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/store"
)

type fakeOrchestrator struct {
	err     error
	block   chan struct{}
	mu      sync.Mutex
	gotOpts []benchmark.Options
}

func (f *fakeOrchestrator) Run(ctx context.Context, opts benchmark.Options) (*models.BenchmarkResult, error) {
	f.mu.Lock()
	f.gotOpts = append(f.gotOpts, opts)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	runID := opts.RunID
	if runID == "" {
		runID = "generated"
	}
	return &models.BenchmarkResult{
		Timestamp:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Target:      opts.Target,
		ICMP:        models.ICMPResult{Samples: 1, PacketLoss: 100, RawSamples: []float64{}},
		Bufferbloat: models.BufferbloatResult{Grade: models.GradeAPlus},
		DNS:         []models.DNSResult{},
		Metadata:    models.Metadata{RunID: runID},
	}, nil
}

type fakeEngine struct{}

func (fakeEngine) Generate(context.Context, *models.BenchmarkResult) []models.Recommendation {
	return []models.Recommendation{{ID: "packet-loss-investigation"}}
}

type memStore struct {
	err      error
	saved    []*models.BenchmarkResult
	recorded map[string][]models.Recommendation
}

func (m *memStore) Save(_ context.Context, r *models.BenchmarkResult) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, r)
	return "id-" + r.RunID(), nil
}

func (m *memStore) Get(context.Context, string) (*models.BenchmarkResult, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) List(context.Context, int) ([]store.Entry, error) { return nil, nil }

func (m *memStore) RecordRecommendations(_ context.Context, runID string, recs []models.Recommendation) error {
	if m.recorded == nil {
		m.recorded = map[string][]models.Recommendation{}
	}
	m.recorded[runID] = recs
	return nil
}

type fakePublisher struct {
	err       error
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, r *models.BenchmarkResult) error {
	p.published = append(p.published, r.RunID())
	return p.err
}

func TestExecute(t *testing.T) {
	st := &memStore{}
	pub := &fakePublisher{err: errors.New("nats down")}
	r := &Runner{
		Orchestrator: &fakeOrchestrator{},
		Store:        st,
		Engine:       fakeEngine{},
		Publisher:    pub,
		Logger:       logging.Discard(),
	}

	out, err := r.Execute(context.Background(), benchmark.Options{RunID: "r1", Target: "8.8.8.8"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.StoredID != "id-r1" {
		t.Errorf("StoredID = %q", out.StoredID)
	}
	if len(out.Recommendations) != 1 {
		t.Errorf("Recommendations = %v", out.Recommendations)
	}
	if len(st.recorded["r1"]) != 1 {
		t.Errorf("recommendations not recorded: %v", st.recorded)
	}
	if len(pub.published) != 1 {
		t.Errorf("publish failures must not fail the run, published = %v", pub.published)
	}
	if r.Running() {
		t.Error("Running() should be false after Execute")
	}
}

func TestExecuteStoreFailureKeepsResult(t *testing.T) {
	r := &Runner{
		Orchestrator: &fakeOrchestrator{},
		Store:        &memStore{err: errors.New("disk full")},
		Logger:       logging.Discard(),
	}
	out, err := r.Execute(context.Background(), benchmark.Options{Target: "1.1.1.1"})
	if err == nil {
		t.Fatal("expected store error")
	}
	if out == nil || out.Result == nil {
		t.Fatal("outcome should carry the result")
	}
}

func TestExecuteOrchestratorFailure(t *testing.T) {
	var failedRun string
	r := &Runner{
		Orchestrator: &fakeOrchestrator{err: errors.New("invalid result")},
		Logger:       logging.Discard(),
		OnFailure:    func(runID string, err error) { failedRun = runID },
	}
	out, err := r.Execute(context.Background(), benchmark.Options{RunID: "bad", Target: "1.1.1.1"})
	if err == nil || out != nil {
		t.Fatalf("Execute() = %v, %v", out, err)
	}
	if failedRun != "bad" {
		t.Errorf("OnFailure run id = %q", failedRun)
	}
}

func TestStartIsSingleFlight(t *testing.T) {
	orch := &fakeOrchestrator{block: make(chan struct{})}
	st := &memStore{}
	r := &Runner{Orchestrator: orch, Store: st, Logger: logging.Discard()}

	runID, err := r.Start(context.Background(), benchmark.Options{Target: "8.8.8.8"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if runID == "" {
		t.Error("Start() should assign a run id")
	}
	if !r.Running() {
		t.Error("Running() should be true while a run is active")
	}

	if _, err := r.Start(context.Background(), benchmark.Options{Target: "8.8.8.8"}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Start() error = %v, want ErrRunInProgress", err)
	}
	if _, err := r.Execute(context.Background(), benchmark.Options{Target: "8.8.8.8"}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Execute() during run error = %v, want ErrRunInProgress", err)
	}

	close(orch.block)
	r.Wait()

	if r.Running() {
		t.Error("Running() should be false after the run")
	}
	if len(st.saved) != 1 || st.saved[0].RunID() != runID {
		t.Errorf("saved = %v", st.saved)
	}
}
