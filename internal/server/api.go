// Package server exposes stored benchmarks, recommendations and live run
// progress over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/internet-performance-optimizer/internal/auth"
	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/runner"
	"github.com/internet-performance-optimizer/internal/store"
	"github.com/internet-performance-optimizer/internal/websocket"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// API serves the report endpoints. Runner, Auth, WebSocket and Health are
// optional.
type API struct {
	Store     store.Store
	Engine    runner.Recommender
	Runner    *runner.Runner
	Auth      *auth.TokenManager
	WebSocket http.Handler
	Health    func(ctx context.Context) error

	// Defaults fill in fields a POST body leaves out.
	Defaults benchmark.Options
	// RunContext bounds benchmarks started over HTTP. It outlives requests.
	RunContext  context.Context
	CORSOrigins []string
	Logger      logrus.FieldLogger
}

func (a *API) logger() logrus.FieldLogger {
	if a.Logger == nil {
		return logrus.StandardLogger()
	}
	return a.Logger
}

// Handler builds the routed, CORS and trace wrapped handler.
func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	if a.WebSocket != nil {
		router.Handle("/api/v1/ws", a.WebSocket)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(a.authMiddleware)
	api.HandleFunc("/benchmarks", a.listBenchmarks).Methods("GET")
	api.HandleFunc("/benchmarks", a.startBenchmark).Methods("POST")
	api.HandleFunc("/benchmarks/{id}", a.getBenchmark).Methods("GET")
	api.HandleFunc("/benchmarks/{id}/recommendations", a.getRecommendations).Methods("GET")

	origins := a.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	})

	return otelhttp.NewHandler(corsHandler.Handler(router), "ipo.api")
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Auth == nil || !a.Auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		subject, err := a.Auth.Authenticate(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		a.logger().WithFields(logrus.Fields{
			"subject": subject,
			"path":    r.URL.Path,
		}).Debug("Authenticated request")
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	if a.Runner != nil {
		status["benchmark_running"] = a.Runner.Running()
	}
	if a.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := a.Health(ctx); err != nil {
			status["status"] = "unhealthy"
			status["error"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

func (a *API) listBenchmarks(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	entries, err := a.Store.List(r.Context(), limit)
	if err != nil {
		a.logger().WithError(err).Error("Failed to list benchmarks")
		respondError(w, http.StatusInternalServerError, "Failed to list benchmarks")
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"benchmarks": entries,
		"count":      len(entries),
	})
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) (*models.BenchmarkResult, bool) {
	id := mux.Vars(r)["id"]
	result, err := a.Store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Benchmark not found")
		return nil, false
	case err != nil:
		a.logger().WithError(err).WithField("id", id).Error("Failed to load benchmark")
		respondError(w, http.StatusInternalServerError, "Failed to load benchmark")
		return nil, false
	}
	return result, true
}

func (a *API) getBenchmark(w http.ResponseWriter, r *http.Request) {
	result, ok := a.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) getRecommendations(w http.ResponseWriter, r *http.Request) {
	if a.Engine == nil {
		respondError(w, http.StatusNotImplemented, "Recommendations are not enabled")
		return
	}
	result, ok := a.lookup(w, r)
	if !ok {
		return
	}
	ctx := logging.WithLogger(r.Context(), a.logger().WithField("run_id", result.RunID()))
	recs := a.Engine.Generate(ctx, result)
	if recs == nil {
		recs = []models.Recommendation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"run_id":          result.RunID(),
		"recommendations": recs,
	})
}

// StartRequest is the optional body of POST /api/v1/benchmarks.
type StartRequest struct {
	Target         string `json:"target"`
	PingCount      int    `json:"ping_count"`
	SkipThroughput *bool  `json:"skip_throughput"`
	SkipDNS        *bool  `json:"skip_dns"`
}

func (a *API) startBenchmark(w http.ResponseWriter, r *http.Request) {
	if a.Runner == nil {
		respondError(w, http.StatusNotImplemented, "Benchmarks cannot be started on this server")
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PingCount < 0 {
		respondError(w, http.StatusBadRequest, "ping_count must not be negative")
		return
	}

	opts := a.Defaults
	opts.RunID = ""
	if req.Target != "" {
		opts.Target = req.Target
	}
	if req.PingCount > 0 {
		opts.PingCount = req.PingCount
	}
	if req.SkipThroughput != nil {
		opts.SkipThroughput = *req.SkipThroughput
	}
	if req.SkipDNS != nil {
		opts.SkipDNS = *req.SkipDNS
	}
	if opts.Target == "" {
		respondError(w, http.StatusBadRequest, "target is required")
		return
	}

	ctx := a.RunContext
	if ctx == nil {
		ctx = context.Background()
	}
	runID, err := a.Runner.Start(ctx, opts)
	if errors.Is(err, runner.ErrRunInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to start benchmark")
		return
	}

	a.logger().WithFields(logrus.Fields{
		"run_id": runID,
		"target": opts.Target,
	}).Info("Benchmark started")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id":  runID,
		"channel": websocket.RunChannel(runID),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
