package probe

import (
	"context"
	"errors"

	"github.com/showwin/speedtest-go/speedtest"
	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
)

// SpeedtestProbe measures throughput against the nearest Ookla server. It
// has no retransmit counter, so Retransmits is always 0.
type SpeedtestProbe struct {
	ServerIDs []int
	Logger    logrus.FieldLogger
	client    *speedtest.Speedtest
}

func NewSpeedtestProbe(logger logrus.FieldLogger) *SpeedtestProbe {
	return &SpeedtestProbe{
		client: speedtest.New(),
		Logger: logger,
	}
}

func (p *SpeedtestProbe) Throughput(ctx context.Context) (models.ThroughputResult, error) {
	servers, err := p.client.FetchServerListContext(ctx)
	if err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "fetch speedtest servers", err)
	}
	targets, err := servers.FindServer(p.ServerIDs)
	if err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "select speedtest server", err)
	}
	if len(targets) == 0 {
		return models.ThroughputResult{}, stageError(StageThroughput, "select speedtest server", errors.New("unable to reach Ookla"))
	}

	server := targets[0]
	defer server.Context.Reset()

	if err := server.PingTestContext(ctx, nil); err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "ping "+server.Host, err)
	}
	if err := server.DownloadTestContext(ctx); err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "download from "+server.Host, err)
	}
	if err := server.UploadTestContext(ctx); err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "upload to "+server.Host, err)
	}

	result := models.ThroughputResult{
		DownloadMbps: nonNegative(server.DLSpeed.Mbps()),
		UploadMbps:   nonNegative(server.ULSpeed.Mbps()),
	}
	logging.FromContext(ctx, p.Logger).WithFields(logrus.Fields{
		"server":        server.Name,
		"host":          server.Host,
		"download_mbps": result.DownloadMbps,
		"upload_mbps":   result.UploadMbps,
	}).Info("Speedtest finished")
	return result, nil
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
