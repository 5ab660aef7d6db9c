// Package runner executes one benchmark end to end: measure, persist,
// diagnose and publish. Only one benchmark may run at a time because
// concurrent runs would load the same link and skew each other.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/benchmark"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/queue"
	"github.com/internet-performance-optimizer/internal/store"
)

// ErrRunInProgress is returned when a benchmark is already running.
var ErrRunInProgress = errors.New("a benchmark is already running")

type Orchestrator interface {
	Run(ctx context.Context, opts benchmark.Options) (*models.BenchmarkResult, error)
}

type Recommender interface {
	Generate(ctx context.Context, result *models.BenchmarkResult) []models.Recommendation
}

// RecommendationRecorder is implemented by stores that keep the ids of the
// recommendations generated for a run.
type RecommendationRecorder interface {
	RecordRecommendations(ctx context.Context, runID string, recs []models.Recommendation) error
}

// Outcome is everything a finished run produced.
type Outcome struct {
	Result          *models.BenchmarkResult
	Recommendations []models.Recommendation
	StoredID        string
}

// Runner wires the orchestrator to its consumers. Store, Engine and
// Publisher are optional.
type Runner struct {
	Orchestrator Orchestrator
	Store        store.Store
	Engine       Recommender
	Publisher    queue.Publisher
	Logger       logrus.FieldLogger

	// OnFailure is told about runs that produced no result.
	OnFailure func(runID string, err error)

	running atomic.Bool
	wg      sync.WaitGroup
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// Running reports whether a benchmark is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Execute runs a benchmark synchronously. A persistence failure is returned
// together with the outcome, which still carries the result.
func (r *Runner) Execute(ctx context.Context, opts benchmark.Options) (*Outcome, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.execute(ctx, opts)
}

// Start launches a benchmark in the background and returns its run id. The
// run is bound to ctx, not to the caller's request.
func (r *Runner) Start(ctx context.Context, opts benchmark.Options) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		if _, err := r.execute(ctx, opts); err != nil {
			r.logger().WithError(err).WithField("run_id", opts.RunID).Error("Background benchmark failed")
		}
	}()
	return opts.RunID, nil
}

// Wait blocks until background runs have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, opts benchmark.Options) (*Outcome, error) {
	if r.Orchestrator == nil {
		return nil, errors.New("runner has no orchestrator")
	}

	result, err := r.Orchestrator.Run(ctx, opts)
	if err != nil {
		if r.OnFailure != nil {
			r.OnFailure(opts.RunID, err)
		}
		return nil, err
	}

	log := r.logger().WithField("run_id", result.RunID())
	ctx = logging.WithLogger(ctx, log)
	out := &Outcome{Result: result}
	if r.Engine != nil {
		out.Recommendations = r.Engine.Generate(ctx, result)
	}

	var saveErr error
	if r.Store != nil {
		id, err := r.Store.Save(ctx, result)
		if err != nil {
			saveErr = fmt.Errorf("failed to store benchmark: %w", err)
		} else {
			out.StoredID = id
			if rec, ok := r.Store.(RecommendationRecorder); ok && r.Engine != nil {
				if err := rec.RecordRecommendations(ctx, result.RunID(), out.Recommendations); err != nil {
					log.WithError(err).Warn("Failed to record recommendations")
				}
			}
		}
	}

	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to publish benchmark")
		}
	}

	return out, saveErr
}
