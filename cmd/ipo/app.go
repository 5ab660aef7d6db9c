package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/config"
	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/bufferbloat"
	"github.com/internet-performance-optimizer/internal/database"
	"github.com/internet-performance-optimizer/internal/diagnosis"
	"github.com/internet-performance-optimizer/internal/dnsbench"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/probe"
	"github.com/internet-performance-optimizer/internal/queue"
	"github.com/internet-performance-optimizer/internal/store"
	"github.com/internet-performance-optimizer/internal/tracing"
)

// app carries what every command needs once the root command has loaded
// configuration.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	closeLog func() error
	out      io.Writer
}

func (a *app) setup(envFiles []string, verbose bool) error {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return err
	}
	a.cfg = config.Load()
	if verbose {
		a.cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := logging.New(logging.Config{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

func (a *app) initTracing() (func(context.Context) error, error) {
	tc := tracing.DefaultConfig(a.cfg.Tracing.ServiceName)
	tc.Enabled = a.cfg.Tracing.Enabled
	tc.OTLPEndpoint = a.cfg.Tracing.Endpoint
	tc.ServiceVersion = version
	return tracing.InitTracer(tc, a.logger)
}

func (a *app) engine() *diagnosis.Engine {
	return diagnosis.NewEngine(
		diagnosis.WithPlatform(runtime.GOOS),
		diagnosis.WithLogger(a.logger),
	)
}

func (a *app) clientID() string {
	id, err := probe.GetOrCreateClientID(config.HomeDir())
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load client id")
	}
	return id
}

// orchestrator wires the probes selected by configuration.
func (a *app) orchestrator(observer benchmark.Observer) (*benchmark.Orchestrator, error) {
	cfg := a.cfg
	log := a.logger

	ping := probe.NewPingProbe(log)
	ping.Interval = cfg.Benchmark.PingInterval
	ping.Timeout = cfg.Benchmark.PingTimeout
	ping.Privileged = ping.Privileged || cfg.Benchmark.Privileged

	policy, err := bufferbloat.NewFixedFactor(cfg.Benchmark.BufferbloatFactor)
	if err != nil {
		return nil, fmt.Errorf("IPO_BUFFERBLOAT_FACTOR: %w", err)
	}
	measurer := bufferbloat.NewMeasurer(ping, log)
	measurer.Policy = policy
	if cfg.Benchmark.IdleSamples > 0 {
		measurer.IdleSamples = cfg.Benchmark.IdleSamples
	}

	resolvers := dnsbench.ParseResolvers(strings.Join(cfg.DNS.Resolvers, ","))
	dns := dnsbench.New(dnsbench.NewMiekgQuerier(cfg.DNS.Timeout), resolvers, log)
	dns.Domains = dnsbench.Domains(cfg.DNS.DomainCount)
	if cfg.DNS.Workers > 0 {
		dns.Workers = cfg.DNS.Workers
	}
	if cfg.DNS.Timeout > 0 {
		dns.Timeout = cfg.DNS.Timeout
	}

	iperf := probe.NewIperf3Probe(cfg.Iperf.Server, cfg.Iperf.Port, log)
	if cfg.Iperf.Duration > 0 {
		iperf.Duration = cfg.Iperf.Duration
	}
	if cfg.Iperf.UDPBandwidth != "" {
		iperf.UDPBandwidth = cfg.Iperf.UDPBandwidth
	}

	o := benchmark.New(
		benchmark.WithLogger(log),
		benchmark.WithObserver(observer),
		benchmark.WithTracer(tracing.GetTracer("ipo/benchmark")),
	)
	o.Latency = ping
	o.Jitter = iperf
	o.Bufferbloat = measurer
	o.DNS = dns
	o.SystemInfo = &probe.SystemInfo{ClientID: a.clientID(), Logger: log}

	switch cfg.Iperf.Backend {
	case "iperf3", "":
		o.Throughput = iperf
		o.ThroughputBackend = "iperf3"
	case "speedtest":
		o.Throughput = probe.NewSpeedtestProbe(log)
		o.ThroughputBackend = "speedtest"
	default:
		return nil, fmt.Errorf("unknown throughput backend %q", cfg.Iperf.Backend)
	}
	return o, nil
}

// openStore returns the configured result store, a health check and a close
// function.
func (a *app) openStore(ctx context.Context) (store.Store, func(context.Context) error, func(), error) {
	switch a.cfg.Storage.Backend {
	case "file", "":
		fs := store.NewFileStore(a.cfg.Storage.Dir, a.logger)
		return fs, nil, func() {}, nil
	case "postgres":
		conn, err := database.NewConnection(ctx, database.ConnectionConfigFrom(a.cfg.Database))
		if err != nil {
			return nil, nil, nil, err
		}
		repo := database.NewBenchmarkRepository(conn, a.logger)
		health := database.NewRepository(conn).HealthCheck
		return repo, health, func() { conn.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
}

// publisher connects to NATS when enabled. A nil publisher is returned when
// it is not.
func (a *app) publisher(ctx context.Context) (*queue.NATSBus, error) {
	if !a.cfg.NATS.Enabled {
		return nil, nil
	}
	return queue.NewNATSBus(ctx, queue.ConfigFrom(a.cfg.NATS), a.logger)
}
