// Package store persists benchmark results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/internet-performance-optimizer/internal/models"
)

// ErrNotFound is returned when no stored benchmark matches an id.
var ErrNotFound = errors.New("benchmark not found")

// Entry is the listing view of a stored benchmark.
type Entry struct {
	ID string `json:"id"`
	models.BenchmarkSummary
}

// EntryFor builds the listing view of a result stored under id.
func EntryFor(id string, r *models.BenchmarkResult) Entry {
	return Entry{ID: id, BenchmarkSummary: r.Summarize()}
}

// Store saves and retrieves benchmark results. List returns the newest
// entries first; a limit of zero or less means no limit.
type Store interface {
	Save(ctx context.Context, result *models.BenchmarkResult) (string, error)
	Get(ctx context.Context, id string) (*models.BenchmarkResult, error)
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Pruner is implemented by stores that can drop results taken before a
// cutoff. With dryRun set it only counts them.
type Pruner interface {
	Prune(ctx context.Context, before time.Time, dryRun bool) (int, error)
}
