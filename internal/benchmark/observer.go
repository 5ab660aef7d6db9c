package benchmark

import (
	"time"

	"github.com/internet-performance-optimizer/internal/models"
)

// Observer receives progress notifications while a run executes.
// Implementations must not block.
type Observer interface {
	RunStarted(runID, target string)
	PhaseStarted(runID string, phase Phase)
	PhaseCompleted(runID string, phase Phase, elapsed time.Duration, err error)
	PhaseSkipped(runID string, phase Phase)
	RunCompleted(result *models.BenchmarkResult)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RunStarted(string, string)                          {}
func (NopObserver) PhaseStarted(string, Phase)                         {}
func (NopObserver) PhaseCompleted(string, Phase, time.Duration, error) {}
func (NopObserver) PhaseSkipped(string, Phase)                         {}
func (NopObserver) RunCompleted(*models.BenchmarkResult)               {}
