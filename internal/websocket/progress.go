package websocket

import (
	"time"

	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/models"
)

// ChannelAll receives lifecycle events of every run.
const ChannelAll = "benchmarks"

// RunChannel is the channel carrying the phase events of one run.
func RunChannel(runID string) string {
	return "benchmark:" + runID
}

// ProgressBroadcaster publishes orchestrator progress to the hub.
type ProgressBroadcaster struct {
	hub *Hub
}

var _ benchmark.Observer = (*ProgressBroadcaster)(nil)

func NewProgressBroadcaster(hub *Hub) *ProgressBroadcaster {
	return &ProgressBroadcaster{hub: hub}
}

func (p *ProgressBroadcaster) RunStarted(runID, target string) {
	data := map[string]any{"run_id": runID, "target": target}
	p.hub.Publish(ChannelAll, "run_started", data)
	p.hub.Publish(RunChannel(runID), "run_started", data)
}

func (p *ProgressBroadcaster) PhaseStarted(runID string, phase benchmark.Phase) {
	p.hub.Publish(RunChannel(runID), "phase_started", map[string]any{
		"run_id": runID,
		"phase":  string(phase),
	})
}

func (p *ProgressBroadcaster) PhaseCompleted(runID string, phase benchmark.Phase, elapsed time.Duration, err error) {
	data := map[string]any{
		"run_id":      runID,
		"phase":       string(phase),
		"duration_ms": elapsed.Milliseconds(),
	}
	msgType := "phase_completed"
	if err != nil {
		msgType = "phase_failed"
		data["error"] = err.Error()
	}
	p.hub.Publish(RunChannel(runID), msgType, data)
}

func (p *ProgressBroadcaster) PhaseSkipped(runID string, phase benchmark.Phase) {
	p.hub.Publish(RunChannel(runID), "phase_skipped", map[string]any{
		"run_id": runID,
		"phase":  string(phase),
	})
}

func (p *ProgressBroadcaster) RunCompleted(result *models.BenchmarkResult) {
	summary := result.Summarize()
	data := map[string]any{
		"run_id":          summary.RunID,
		"target":          summary.Target,
		"grade":           string(summary.Grade),
		"p50_ms":          summary.P50Ms,
		"packet_loss":     summary.PacketLoss,
		"degraded_phases": summary.DegradedPhases,
	}
	p.hub.Publish(ChannelAll, "run_completed", data)
	p.hub.Publish(RunChannel(result.RunID()), "run_completed", data)
}

// RunFailed reports a run that produced no result.
func (p *ProgressBroadcaster) RunFailed(runID string, err error) {
	data := map[string]any{"run_id": runID, "error": err.Error()}
	p.hub.Publish(ChannelAll, "run_failed", data)
	if runID != "" {
		p.hub.Publish(RunChannel(runID), "run_failed", data)
	}
}
