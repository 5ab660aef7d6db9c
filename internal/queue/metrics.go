package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueLagMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipo_queue_lag_messages",
			Help: "Benchmark messages pending in the stream (not yet delivered to the store consumer)",
		},
	)

	queueAckPendingMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipo_queue_ack_pending_messages",
			Help: "Benchmark messages delivered to the store consumer but not yet acknowledged",
		},
	)

	terminatedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipo_queue_terminated_messages_total",
			Help: "Benchmark messages given up on, by reason",
		},
		[]string{"reason"},
	)

	natsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ipo_nats_reconnects_total",
			Help: "Total number of NATS reconnection events",
		},
	)

	metricsOnce sync.Once
)

func init() {
	metricsOnce.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(queueLagMessages)
		prometheus.DefaultRegisterer.MustRegister(queueAckPendingMessages)
		prometheus.DefaultRegisterer.MustRegister(terminatedMessagesTotal)
		prometheus.DefaultRegisterer.MustRegister(natsReconnectsTotal)
	})
}
