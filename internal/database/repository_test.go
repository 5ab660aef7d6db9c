package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/internet-performance-optimizer/config"
	"github.com/internet-performance-optimizer/internal/logging"
	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/store"
)

func TestRetryableOperation(t *testing.T) {
	t.Run("success stops retrying", func(t *testing.T) {
		calls := 0
		err := RetryableOperation(context.Background(), 3, func() error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("permanent error returns immediately", func(t *testing.T) {
		calls := 0
		permanent := &pq.Error{Code: "23505"}
		err := RetryableOperation(context.Background(), 3, func() error {
			calls++
			return permanent
		})
		if !errors.Is(err, permanent) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("transient error is retried", func(t *testing.T) {
		calls := 0
		err := RetryableOperation(context.Background(), 2, func() error {
			calls++
			if calls < 2 {
				return &pq.Error{Code: "40001"}
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryableOperation(ctx, 5, func() error {
			return &pq.Error{Code: "40P01"}
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

// TestBenchmarkRepositoryPostgres needs a reachable Postgres configured
// through DB_* variables and IPO_TEST_POSTGRES=1.
func TestBenchmarkRepositoryPostgres(t *testing.T) {
	if testing.Short() || os.Getenv("IPO_TEST_POSTGRES") == "" {
		t.Skip("set IPO_TEST_POSTGRES=1 to run against Postgres")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := NewConnection(ctx, ConnectionConfigFrom(config.Load().Database))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	migrations, err := Migrations()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMigrationManager(conn, logging.Discard()).Up(ctx, migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewBenchmarkRepository(conn, logging.Discard())
	if err := repo.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	runID := uuid.NewString()
	result := &models.BenchmarkResult{
		Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		Target:      "8.8.8.8",
		SystemInfo:  map[string]any{"os": "linux"},
		ICMP:        models.ICMPResult{Samples: 10, PacketLoss: 100, RawSamples: []float64{}},
		Bufferbloat: models.BufferbloatResult{Grade: models.GradeAPlus},
		DNS:         []models.DNSResult{},
		Metadata:    models.Metadata{RunID: runID, PingCount: 10},
	}

	id, err := repo.Save(ctx, result)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id != runID {
		t.Errorf("Save() id = %q, want %q", id, runID)
	}

	// a redelivered result must not create a second row
	if _, err := repo.Save(ctx, result); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	var rows int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM benchmarks WHERE run_id = $1", runID).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("rows for run = %d, want 1", rows)
	}

	got, err := repo.Get(ctx, runID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Target != result.Target || !got.Timestamp.Equal(result.Timestamp) {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}

	entries, err := repo.List(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("List() = %v, %v", entries, err)
	}

	recs := []models.Recommendation{{ID: "sqm"}, {ID: "dns"}}
	if err := repo.RecordRecommendations(ctx, runID, recs); err != nil {
		t.Errorf("RecordRecommendations() error = %v", err)
	}

	n, err := repo.Prune(ctx, result.Timestamp.Add(time.Second), true)
	if err != nil || n < 1 {
		t.Errorf("Prune(dry run) = %d, %v", n, err)
	}
	if _, err := repo.Prune(ctx, result.Timestamp.Add(time.Second), false); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if _, err := repo.Get(ctx, runID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(pruned) error = %v, want ErrNotFound", err)
	}
}
