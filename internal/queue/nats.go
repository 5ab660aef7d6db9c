// Package queue fans completed benchmark results out over NATS JetStream
// and ingests results published by other agents.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/config"
	"github.com/internet-performance-optimizer/internal/metrics"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/store"
)

const (
	StreamName   = "IPO_BENCHMARKS"
	Subject      = "ipo.benchmarks"
	ConsumerName = "ipo-store"

	DefaultMaxDeliver      = 5
	DefaultAckWait         = 30 * time.Second
	DefaultMaxAckPending   = 100
	DefaultStreamRetention = 30 * 24 * time.Hour
	DefaultPublishTimeout  = 5 * time.Second
)

// NATSConfig holds configuration for the JetStream connection
type NATSConfig struct {
	URL             string
	Stream          string
	Subject         string
	StreamRetention time.Duration
	MaxDeliver      int
	AckWait         time.Duration
	MaxAckPending   int
	PublishTimeout  time.Duration
	ReconnectWait   time.Duration
	MaxReconnects   int
}

func DefaultNATSConfig() *NATSConfig {
	return &NATSConfig{
		URL:             nats.DefaultURL,
		Stream:          StreamName,
		Subject:         Subject,
		StreamRetention: DefaultStreamRetention,
		MaxDeliver:      DefaultMaxDeliver,
		AckWait:         DefaultAckWait,
		MaxAckPending:   DefaultMaxAckPending,
		PublishTimeout:  DefaultPublishTimeout,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1,
	}
}

// ConfigFrom applies the application settings over the defaults.
func ConfigFrom(cfg config.NATSConfig) *NATSConfig {
	c := DefaultNATSConfig()
	if cfg.URL != "" {
		c.URL = cfg.URL
	}
	if cfg.Stream != "" {
		c.Stream = cfg.Stream
	}
	if cfg.Subject != "" {
		c.Subject = cfg.Subject
	}
	return c
}

// Publisher hands a completed benchmark to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, result *models.BenchmarkResult) error
}

// Handler processes one ingested benchmark. A returned error requests
// redelivery.
type Handler func(ctx context.Context, result *models.BenchmarkResult) error

// NATSBus publishes and consumes benchmark results on a JetStream stream.
type NATSBus struct {
	config *NATSConfig
	logger logrus.FieldLogger
	nc     *nats.Conn
	js     jetstream.JetStream

	mu       sync.Mutex
	consumer jetstream.Consumer
	consume  jetstream.ConsumeContext
}

// NewNATSBus connects and makes sure the benchmark stream exists.
func NewNATSBus(ctx context.Context, cfg *NATSConfig, logger logrus.FieldLogger) (*NATSBus, error) {
	if cfg == nil {
		cfg = DefaultNATSConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := &NATSBus{config: cfg, logger: logger.WithField("component", "nats")}

	if err := b.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if err := b.createStream(ctx); err != nil {
		b.nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return b, nil
}

func (b *NATSBus) connect() error {
	opts := []nats.Option{
		nats.Name("ipo"),
		nats.ReconnectWait(b.config.ReconnectWait),
		nats.MaxReconnects(b.config.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				b.logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			natsReconnectsTotal.Inc()
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			b.logger.Debug("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(b.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", b.config.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	b.nc = nc
	b.js = js
	return nil
}

func (b *NATSBus) createStream(ctx context.Context) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        b.config.Stream,
		Subjects:    []string{b.config.Subject},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.config.StreamRetention,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
		Duplicates:  10 * time.Minute,
		Description: "Completed network benchmark results",
	})
	return err
}

// Publish sends result as JSON. The run id is the JetStream message id, so
// a retried publish of the same run is deduplicated by the server.
func (b *NATSBus) Publish(ctx context.Context, result *models.BenchmarkResult) error {
	data, err := encodeResult(result)
	if err != nil {
		metrics.PublishedTotal.WithLabelValues("invalid").Inc()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
	defer cancel()

	ack, err := b.js.Publish(ctx, b.config.Subject, data, jetstream.WithMsgID(result.RunID()))
	if err != nil {
		metrics.PublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish benchmark: %w", err)
	}
	metrics.PublishedTotal.WithLabelValues("ok").Inc()
	b.logger.WithFields(logrus.Fields{
		"run_id":    result.RunID(),
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("Benchmark published")
	return nil
}

// Consume starts a durable consumer that feeds every published benchmark
// to handler until ctx is done or Close is called.
func (b *NATSBus) Consume(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consume != nil {
		return errors.New("consumer already running")
	}

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.config.Stream, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    b.config.MaxDeliver,
		AckWait:       b.config.AckWait,
		MaxAckPending: b.config.MaxAckPending,
		FilterSubject: b.config.Subject,
		Description:   "Stores published benchmark results",
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		handleMessage(ctx, msg, handler, b.config.MaxDeliver, b.logger)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	b.consumer = consumer
	b.consume = cc

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}

// handleMessage acks a stored benchmark, naks a failed one for redelivery
// and terminates messages that can never succeed.
func handleMessage(ctx context.Context, msg jetstream.Msg, handler Handler, maxDeliver int, logger logrus.FieldLogger) {
	result, err := store.Decode(msg.Data())
	if err != nil {
		logger.WithError(err).Warn("Dropping undecodable benchmark message")
		terminatedMessagesTotal.WithLabelValues("decode").Inc()
		msg.TermWithReason("undecodable benchmark")
		return
	}

	log := logger.WithField("run_id", result.RunID())
	if err := handler(ctx, result); err != nil {
		meta, _ := msg.Metadata()
		if meta != nil && maxDeliver > 0 && meta.NumDelivered >= uint64(maxDeliver) {
			log.WithError(err).Error("Benchmark exceeded max deliveries, dropping")
			terminatedMessagesTotal.WithLabelValues("max_deliver").Inc()
			msg.TermWithReason("max deliveries exceeded")
			return
		}
		log.WithError(err).Warn("Failed to handle benchmark, requesting redelivery")
		msg.Nak()
		return
	}
	msg.Ack()
}

// UpdateQueueMetrics refreshes the lag gauges from the consumer state.
func (b *NATSBus) UpdateQueueMetrics(ctx context.Context) error {
	b.mu.Lock()
	consumer := b.consumer
	b.mu.Unlock()
	if consumer == nil {
		return errors.New("consumer not initialized")
	}

	info, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	queueLagMessages.Set(float64(info.NumPending))
	queueAckPendingMessages.Set(float64(info.NumAckPending))
	return nil
}

// Close stops consuming and drains the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.consume != nil {
		b.consume.Stop()
		b.consume = nil
	}
	b.mu.Unlock()

	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}

func encodeResult(result *models.BenchmarkResult) ([]byte, error) {
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid benchmark: %w", err)
	}
	if result.RunID() == "" {
		return nil, errors.New("invalid benchmark: missing run id")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal benchmark: %w", err)
	}
	return data, nil
}
