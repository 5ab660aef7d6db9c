package probe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/logging"
)

// PingProbe samples ICMP echo round trips with pro-bing.
type PingProbe struct {
	Interval   time.Duration
	Timeout    time.Duration // wait for the last reply
	Size       int
	Privileged bool
	Logger     logrus.FieldLogger
}

// NewPingProbe returns a probe with a 200ms interval, 2s reply timeout and
// 32 byte payload. Windows requires privileged mode.
func NewPingProbe(logger logrus.FieldLogger) *PingProbe {
	return &PingProbe{
		Interval:   200 * time.Millisecond,
		Timeout:    2 * time.Second,
		Size:       32,
		Privileged: runtime.GOOS == "windows",
		Logger:     logger,
	}
}

// Sample sends count echo requests to target and returns the successful
// round trips in milliseconds plus the number of requests without a reply.
func (p *PingProbe) Sample(ctx context.Context, target string, count int) ([]float64, int, error) {
	if count <= 0 {
		return nil, 0, stageError(StageICMP, "count must be positive", nil)
	}

	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, count, stageError(StageICMP, fmt.Sprintf("resolve %s", target), err)
	}

	pinger.Count = count
	pinger.Interval = p.Interval
	pinger.Size = p.Size
	pinger.Timeout = time.Duration(count)*p.Interval + p.Timeout
	pinger.SetPrivileged(p.Privileged)

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		pinger.Stop()
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		return nil, count, stageError(StageICMP, fmt.Sprintf("ping %s", target), err)
	}

	stats := pinger.Statistics()
	samples, failures := samplesFromStats(stats.Rtts, count)

	logging.FromContext(ctx, p.Logger).WithFields(logrus.Fields{
		"target":   target,
		"sent":     stats.PacketsSent,
		"received": stats.PacketsRecv,
	}).Debug("ICMP sampling finished")
	return samples, failures, nil
}

// samplesFromStats converts round trips to milliseconds. Replies beyond
// the requested count are ignored and every unanswered request is a failure.
func samplesFromStats(rtts []time.Duration, requested int) ([]float64, int) {
	if len(rtts) > requested {
		rtts = rtts[:requested]
	}
	samples := make([]float64, 0, len(rtts))
	for _, rtt := range rtts {
		samples = append(samples, float64(rtt)/float64(time.Millisecond))
	}
	return samples, requested - len(samples)
}
