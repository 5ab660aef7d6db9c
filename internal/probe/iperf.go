package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
)

// PublicIperfServers are community iperf3 endpoints.
var PublicIperfServers = []string{
	"iperf.he.net",
	"ping.online.net",
	"iperf.scottlinux.com",
	"speedtest.uztelecom.uz",
	"bouygues.iperf.fr",
}

const (
	DefaultIperfPort     = 5201
	DefaultIperfDuration = 10 * time.Second
	DefaultUDPBandwidth  = "10M"
	iperfExecutable      = "iperf3"
	iperfProcessSlack    = 20 * time.Second
)

// CommandRunner executes a command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. iperf3 reports failures as JSON on
// stdout, so stdout is returned even when the process exits non-zero.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s is not installed: %w", name, err)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Iperf3Probe measures TCP throughput and UDP jitter against an iperf3
// server by running the iperf3 client in JSON mode.
type Iperf3Probe struct {
	Server       string
	Port         int
	Duration     time.Duration
	UDPBandwidth string
	Run          CommandRunner
	Logger       logrus.FieldLogger
}

// NewIperf3Probe returns a probe for server, falling back to the first
// public server when server is empty.
func NewIperf3Probe(server string, port int, logger logrus.FieldLogger) *Iperf3Probe {
	if server == "" {
		server = PublicIperfServers[0]
	}
	if port <= 0 {
		port = DefaultIperfPort
	}
	return &Iperf3Probe{
		Server:       server,
		Port:         port,
		Duration:     DefaultIperfDuration,
		UDPBandwidth: DefaultUDPBandwidth,
		Run:          ExecRunner,
		Logger:       logger,
	}
}

type iperfReport struct {
	End struct {
		SumSent struct {
			BitsPerSecond float64 `json:"bits_per_second"`
			Retransmits   int     `json:"retransmits"`
		} `json:"sum_sent"`
		SumReceived struct {
			BitsPerSecond float64 `json:"bits_per_second"`
		} `json:"sum_received"`
		Sum struct {
			JitterMs    float64 `json:"jitter_ms"`
			LostPercent float64 `json:"lost_percent"`
			OutOfOrder  int     `json:"out_of_order"`
		} `json:"sum"`
	} `json:"end"`
	Error string `json:"error"`
}

func parseIperfReport(out []byte) (*iperfReport, error) {
	var report iperfReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("invalid iperf3 output: %w", err)
	}
	if report.Error != "" {
		return nil, errors.New(report.Error)
	}
	return &report, nil
}

// ParseIperfTCP extracts the received rate in Mbps and the sender's
// retransmit count from one iperf3 TCP report.
func ParseIperfTCP(out []byte) (mbps float64, retransmits int, err error) {
	report, err := parseIperfReport(out)
	if err != nil {
		return 0, 0, err
	}
	return report.End.SumReceived.BitsPerSecond / 1e6, report.End.SumSent.Retransmits, nil
}

// ParseIperfJitter extracts UDP jitter, loss and reordering from one iperf3
// UDP report. iperf3 reports only a mean jitter, which is used as max too.
func ParseIperfJitter(out []byte) (models.JitterResult, error) {
	report, err := parseIperfReport(out)
	if err != nil {
		return models.JitterResult{}, err
	}
	sum := report.End.Sum
	return models.JitterResult{
		MeanJitterMs: sum.JitterMs,
		MaxJitterMs:  sum.JitterMs,
		PacketLoss:   sum.LostPercent,
		OutOfOrder:   sum.OutOfOrder,
	}, nil
}

func (p *Iperf3Probe) args(extra ...string) []string {
	seconds := int(p.Duration / time.Second)
	if seconds <= 0 {
		seconds = int(DefaultIperfDuration / time.Second)
	}
	args := []string{"-c", p.Server, "-p", strconv.Itoa(p.Port), "-t", strconv.Itoa(seconds), "-J"}
	return append(args, extra...)
}

func (p *Iperf3Probe) run(ctx context.Context, extra ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Duration+iperfProcessSlack)
	defer cancel()

	args := p.args(extra...)
	logging.FromContext(ctx, p.Logger).WithField("args", args).Debug("Running iperf3")
	out, err := p.Run(ctx, iperfExecutable, args...)
	if err != nil && len(out) > 0 {
		// Prefer iperf3's own JSON error message when present.
		if _, perr := parseIperfReport(out); perr != nil {
			return nil, perr
		}
	}
	return out, err
}

// Throughput runs an upload test (client sends) followed by a reverse
// download test (server sends). Retransmits of both runs are summed.
func (p *Iperf3Probe) Throughput(ctx context.Context) (models.ThroughputResult, error) {
	out, err := p.run(ctx)
	if err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "upload test against "+p.Server, err)
	}
	upload, upRetrans, err := ParseIperfTCP(out)
	if err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "upload report", err)
	}

	out, err = p.run(ctx, "-R")
	if err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "download test against "+p.Server, err)
	}
	download, downRetrans, err := ParseIperfTCP(out)
	if err != nil {
		return models.ThroughputResult{}, stageError(StageThroughput, "download report", err)
	}

	result := models.ThroughputResult{
		DownloadMbps: download,
		UploadMbps:   upload,
		Retransmits:  upRetrans + downRetrans,
	}
	logging.FromContext(ctx, p.Logger).WithFields(logrus.Fields{
		"download_mbps": result.DownloadMbps,
		"upload_mbps":   result.UploadMbps,
		"retransmits":   result.Retransmits,
	}).Info("Throughput measured")
	return result, nil
}

// Jitter runs a UDP test at the configured bandwidth.
func (p *Iperf3Probe) Jitter(ctx context.Context) (models.JitterResult, error) {
	out, err := p.run(ctx, "-u", "-b", p.UDPBandwidth)
	if err != nil {
		return models.JitterResult{}, stageError(StageJitter, "udp test against "+p.Server, err)
	}
	result, err := ParseIperfJitter(out)
	if err != nil {
		return models.JitterResult{}, stageError(StageJitter, "udp report", err)
	}
	logging.FromContext(ctx, p.Logger).WithFields(logrus.Fields{
		"jitter_ms":   result.MeanJitterMs,
		"packet_loss": result.PacketLoss,
	}).Info("Jitter measured")
	return result, nil
}
