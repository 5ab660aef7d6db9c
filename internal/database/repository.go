package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/models"
	"github.com/internet-performance-optimizer/internal/store"
)

// Repository provides common database operations
type Repository struct {
	conn *Connection
}

func NewRepository(conn *Connection) *Repository {
	return &Repository{conn: conn}
}

// Connection returns the underlying database connection
func (r *Repository) Connection() *Connection {
	return r.conn
}

// RetryableOperation retries operation with exponential backoff while it
// fails with a transient error.
func RetryableOperation(ctx context.Context, maxRetries int, operation func() error) error {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > 10*time.Second {
					backoff = 10 * time.Second
				}
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !IsRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// HealthCheck performs a basic health check on the database
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := r.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("database query returned unexpected result: %d", result)
	}
	return nil
}

// BenchmarkRepository stores benchmark results in the benchmarks table, the
// full document as JSONB next to a few indexed columns. It implements
// store.Store keyed by run id.
type BenchmarkRepository struct {
	*Repository
	logger     logrus.FieldLogger
	maxRetries int
}

var (
	_ store.Store  = (*BenchmarkRepository)(nil)
	_ store.Pruner = (*BenchmarkRepository)(nil)
)

func NewBenchmarkRepository(conn *Connection, logger logrus.FieldLogger) *BenchmarkRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BenchmarkRepository{
		Repository: NewRepository(conn),
		logger:     logger,
		maxRetries: 3,
	}
}

// Save upserts a validated result and returns its run id.
func (r *BenchmarkRepository) Save(ctx context.Context, result *models.BenchmarkResult) (string, error) {
	if err := result.Validate(); err != nil {
		return "", fmt.Errorf("refusing to save invalid benchmark: %w", err)
	}
	if result.RunID() == "" {
		return "", errors.New("benchmark has no run id")
	}
	doc, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode benchmark: %w", err)
	}

	query := `
		INSERT INTO benchmarks (run_id, target, taken_at, grade, p50_ms, packet_loss, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			target = EXCLUDED.target,
			taken_at = EXCLUDED.taken_at,
			grade = EXCLUDED.grade,
			p50_ms = EXCLUDED.p50_ms,
			packet_loss = EXCLUDED.packet_loss,
			result = EXCLUDED.result`

	err = RetryableOperation(ctx, r.maxRetries, func() error {
		_, err := r.conn.ExecContext(ctx, query,
			result.RunID(), result.Target, result.Timestamp,
			string(result.Bufferbloat.Grade), result.ICMP.P50, result.ICMP.PacketLoss,
			doc,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save benchmark: %w", err)
	}

	r.logger.WithField("run_id", result.RunID()).Info("Benchmark saved to database")
	return result.RunID(), nil
}

func (r *BenchmarkRepository) Get(ctx context.Context, id string) (*models.BenchmarkResult, error) {
	var doc []byte
	err := r.conn.QueryRowContext(ctx, "SELECT result FROM benchmarks WHERE run_id = $1", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmark: %w", err)
	}
	return store.Decode(doc)
}

func (r *BenchmarkRepository) List(ctx context.Context, limit int) ([]store.Entry, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := r.conn.QueryContext(ctx,
		"SELECT run_id, result FROM benchmarks ORDER BY taken_at DESC LIMIT $1", lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	entries := []store.Entry{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark row: %w", err)
		}
		result, err := store.Decode(doc)
		if err != nil {
			r.logger.WithError(err).WithField("run_id", id).Warn("Skipping undecodable benchmark row")
			continue
		}
		entries = append(entries, store.EntryFor(id, result))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating benchmark rows: %w", err)
	}
	return entries, nil
}

// RecordRecommendations stores the ids of the recommendations generated for
// a run.
func (r *BenchmarkRepository) RecordRecommendations(ctx context.Context, runID string, recs []models.Recommendation) error {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}

	res, err := r.conn.ExecContext(ctx,
		"UPDATE benchmarks SET recommendation_ids = $2 WHERE run_id = $1", runID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to record recommendations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Prune deletes benchmarks taken before the cutoff in one transaction.
func (r *BenchmarkRepository) Prune(ctx context.Context, before time.Time, dryRun bool) (int, error) {
	log := r.logger.WithFields(logrus.Fields{
		"before":  before.Format(time.RFC3339),
		"dry_run": dryRun,
	})

	var count int
	if err := r.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM benchmarks WHERE taken_at < $1", before).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count benchmarks: %w", err)
	}
	if count == 0 || dryRun {
		log.WithField("count", count).Info("Pruned benchmarks")
		return count, nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM benchmarks WHERE taken_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete benchmarks: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if _, err := r.conn.ExecContext(ctx, "ANALYZE benchmarks"); err != nil {
		log.WithError(err).Warn("Failed to analyze benchmarks table")
	}
	log.WithField("count", deleted).Info("Pruned benchmarks")
	return int(deleted), nil
}
