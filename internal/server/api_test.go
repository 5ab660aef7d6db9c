package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/internet-performance-optimizer/internal/auth"
	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/runner"
	"github.com/internet-performance-optimizer/internal/store"
)

func sampleResult(runID string) *models.BenchmarkResult {
	return &models.BenchmarkResult{
		Timestamp:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Target:      "8.8.8.8",
		ICMP:        models.ICMPResult{Samples: 10, P50: 12, RawSamples: []float64{}},
		Bufferbloat: models.BufferbloatResult{Grade: models.GradeA},
		DNS:         []models.DNSResult{},
		Metadata:    models.Metadata{RunID: runID},
	}
}

type memStore struct {
	results map[string]*models.BenchmarkResult
	listErr error
}

func (m *memStore) Save(_ context.Context, r *models.BenchmarkResult) (string, error) {
	if m.results == nil {
		m.results = map[string]*models.BenchmarkResult{}
	}
	m.results[r.RunID()] = r
	return r.RunID(), nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.BenchmarkResult, error) {
	r, ok := m.results[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (m *memStore) List(_ context.Context, limit int) ([]store.Entry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []store.Entry
	for id, r := range m.results {
		if len(out) == limit {
			break
		}
		out = append(out, store.EntryFor(id, r))
	}
	return out, nil
}

type staticEngine struct{}

func (staticEngine) Generate(context.Context, *models.BenchmarkResult) []models.Recommendation {
	return []models.Recommendation{{ID: "sqm", Title: "Enable SQM"}}
}

type blockingOrchestrator struct {
	release chan struct{}
}

func (b *blockingOrchestrator) Run(ctx context.Context, opts benchmark.Options) (*models.BenchmarkResult, error) {
	<-b.release
	return sampleResult(opts.RunID), nil
}

func newTestAPI(st *memStore) *API {
	return &API{
		Store:  st,
		Engine: staticEngine{},
		Logger: logging.Discard(),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBenchmarkEndpoints(t *testing.T) {
	st := &memStore{results: map[string]*models.BenchmarkResult{"run-1": sampleResult("run-1")}}
	h := newTestAPI(st).Handler()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"list", "/api/v1/benchmarks", http.StatusOK, `"count":1`},
		{"list with limit", "/api/v1/benchmarks?limit=5", http.StatusOK, `"run_id":"run-1"`},
		{"bad limit", "/api/v1/benchmarks?limit=abc", http.StatusBadRequest, "limit"},
		{"zero limit", "/api/v1/benchmarks?limit=0", http.StatusBadRequest, "limit"},
		{"get", "/api/v1/benchmarks/run-1", http.StatusOK, `"target":"8.8.8.8"`},
		{"get missing", "/api/v1/benchmarks/nope", http.StatusNotFound, "not found"},
		{"recommendations", "/api/v1/benchmarks/run-1/recommendations", http.StatusOK, `"id":"sqm"`},
		{"recommendations missing", "/api/v1/benchmarks/nope/recommendations", http.StatusNotFound, "not found"},
		{"health", "/health", http.StatusOK, "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "GET", tt.path, "", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestListFailure(t *testing.T) {
	h := newTestAPI(&memStore{listErr: errors.New("db down")}).Handler()
	rec := do(t, h, "GET", "/api/v1/benchmarks", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthReportsDependencyFailure(t *testing.T) {
	a := newTestAPI(&memStore{})
	a.Health = func(context.Context) error { return errors.New("connection refused") }
	rec := do(t, a.Handler(), "GET", "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unhealthy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	st := &memStore{results: map[string]*models.BenchmarkResult{"run-1": sampleResult("run-1")}}
	a := newTestAPI(st)
	a.Auth = auth.NewTokenManager("static-token", "secret")
	h := a.Handler()

	jwtToken, _, err := a.Auth.Issue("dashboard", "read", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"not bearer", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"static token", map[string]string{"Authorization": "Bearer static-token"}, http.StatusOK},
		{"jwt", map[string]string{"Authorization": "Bearer " + jwtToken}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "GET", "/api/v1/benchmarks/run-1", "", tt.header)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	if rec := do(t, h, "GET", "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health should not require auth, status = %d", rec.Code)
	}
}

func TestStartBenchmark(t *testing.T) {
	st := &memStore{}
	orch := &blockingOrchestrator{release: make(chan struct{})}
	r := &runner.Runner{Orchestrator: orch, Store: st, Logger: logging.Discard()}
	a := newTestAPI(st)
	a.Runner = r
	a.Defaults = benchmark.Options{Target: "1.1.1.1", PingCount: 50}
	h := a.Handler()

	rec := do(t, h, "POST", "/api/v1/benchmarks", `{"target":"9.9.9.9","skip_dns":true}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["run_id"] == "" || resp["channel"] != "benchmark:"+resp["run_id"] {
		t.Errorf("response = %v", resp)
	}

	rec = do(t, h, "POST", "/api/v1/benchmarks", "", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	close(orch.release)
	r.Wait()

	saved, ok := st.results[resp["run_id"]]
	if !ok {
		t.Fatalf("run %s was not stored", resp["run_id"])
	}
	if saved.RunID() != resp["run_id"] {
		t.Errorf("stored run id = %s", saved.RunID())
	}
}

func TestStartBenchmarkValidation(t *testing.T) {
	a := newTestAPI(&memStore{})
	a.Runner = &runner.Runner{Orchestrator: &blockingOrchestrator{}, Logger: logging.Discard()}
	h := a.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"target":`},
		{"negative ping count", `{"target":"1.1.1.1","ping_count":-1}`},
		{"no target and no default", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/v1/benchmarks", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if a.Runner.Running() {
		t.Error("rejected requests must not start a run")
	}
}

func TestStartWithoutRunner(t *testing.T) {
	rec := do(t, newTestAPI(&memStore{}).Handler(), "POST", "/api/v1/benchmarks", "", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", rec.Code)
	}
}
