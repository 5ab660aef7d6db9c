package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/internet-performance-optimizer/internal/auth"
	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/queue"
	"github.com/internet-performance-optimizer/internal/runner"
	"github.com/internet-performance-optimizer/internal/server"
	"github.com/internet-performance-optimizer/internal/store"
	"github.com/internet-performance-optimizer/internal/websocket"
)

func newCmdServe(a *app) *cobra.Command {
	var (
		addr    string
		consume bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored benchmarks, recommendations and live progress over HTTP",
		Long: `
Start the report server. Benchmarks can be started with POST /api/v1/benchmarks
and followed live over the websocket at /api/v1/ws.

With --consume and NATS_ENABLED the server also stores results published by
other ipo instances.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a, consume)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from HTTP_ADDR)")
	cmd.Flags().BoolVar(&consume, "consume", false, "Store benchmarks received over NATS")
	return cmd
}

func runServe(ctx context.Context, a *app, consume bool) error {
	log := a.logger
	shutdownTracing, err := a.initTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	st, health, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	progress := websocket.NewProgressBroadcaster(hub)

	orch, err := a.orchestrator(progress)
	if err != nil {
		return err
	}
	engine := a.engine()
	r := &runner.Runner{
		Orchestrator: orch,
		Store:        st,
		Engine:       engine,
		Logger:       log,
		OnFailure:    progress.RunFailed,
	}

	bus, err := a.publisher(ctx)
	if err != nil {
		log.WithError(err).Warn("NATS unavailable, results will not be published")
	} else if bus != nil {
		defer bus.Close()
		r.Publisher = bus
		go reportQueueMetrics(ctx, bus, log)
		if consume {
			go func() {
				if err := bus.Consume(ctx, storeReceived(st, log)); err != nil {
					log.WithError(err).Error("NATS consumer stopped")
				}
			}()
		}
	}

	tokens := auth.NewTokenManager(a.cfg.HTTP.APIToken, a.cfg.HTTP.JWTSecret)
	var wsAuth websocket.Authenticator
	if tokens.Enabled() {
		wsAuth = tokens
	} else {
		log.Warn("No IPO_API_TOKEN or IPO_JWT_SECRET set, the API is unauthenticated")
	}

	api := &server.API{
		Store:     st,
		Engine:    engine,
		Runner:    r,
		Auth:      tokens,
		WebSocket: websocket.NewHandler(hub, wsAuth, originChecker(a.cfg.HTTP.CORSOrigins)),
		Health:    health,
		Defaults: benchmark.Options{
			Target:         a.cfg.Benchmark.Target,
			PingCount:      a.cfg.Benchmark.PingCount,
			SkipThroughput: a.cfg.Benchmark.SkipThroughput,
			SkipDNS:        a.cfg.Benchmark.SkipDNS,
		},
		RunContext:  ctx,
		CORSOrigins: a.cfg.HTTP.CORSOrigins,
		Logger:      log,
	}
	srv := server.NewServer(a.cfg.HTTP, api.Handler(), log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	r.Wait()
	return nil
}

// storeReceived saves benchmarks from the queue, skipping runs the store
// already holds so redeliveries and this server's own runs are not stored
// twice.
func storeReceived(st store.Store, log logrus.FieldLogger) queue.Handler {
	return func(ctx context.Context, result *models.BenchmarkResult) error {
		if _, err := st.Get(ctx, result.RunID()); err == nil {
			log.WithField("run_id", result.RunID()).Debug("Benchmark already stored")
			return nil
		}
		_, err := st.Save(ctx, result)
		return err
	}
}

func reportQueueMetrics(ctx context.Context, bus *queue.NATSBus, log logrus.FieldLogger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bus.UpdateQueueMetrics(ctx); err != nil {
				log.WithError(err).Debug("Failed to update queue metrics")
			}
		}
	}
}

// originChecker accepts websocket upgrades from the CORS origins. A wildcard
// or an empty list accepts any origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
