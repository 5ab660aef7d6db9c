package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/internet-performance-optimizer/internal/models"
)

const filePrefix = "bench_"

// FileName returns the file name a result taken at ts is saved under.
func FileName(ts time.Time) string {
	return filePrefix + ts.UTC().Format("20060102_150405") + ".json"
}

// FileStore keeps one JSON document per benchmark in a directory.
type FileStore struct {
	Dir    string
	Logger logrus.FieldLogger
}

func NewFileStore(dir string, logger logrus.FieldLogger) *FileStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileStore{Dir: dir, Logger: logger}
}

// Save validates and writes result, returning its id (the file name without
// extension). A second run within the same second gets a run id suffix.
func (s *FileStore) Save(ctx context.Context, result *models.BenchmarkResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := result.Validate(); err != nil {
		return "", fmt.Errorf("refusing to save invalid benchmark: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create benchmark dir: %w", err)
	}

	name := FileName(result.Timestamp)
	path := filepath.Join(s.Dir, name)
	if _, err := os.Stat(path); err == nil {
		suffix := result.RunID()
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		name = strings.TrimSuffix(name, ".json") + "_" + suffix + ".json"
		path = filepath.Join(s.Dir, name)
	}

	if err := WriteFile(path, result); err != nil {
		return "", err
	}
	s.Logger.WithField("path", path).Info("Benchmark saved")
	return strings.TrimSuffix(name, ".json"), nil
}

// Get loads a benchmark by file id or by run id.
func (s *FileStore) Get(ctx context.Context, id string) (*models.BenchmarkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" || filepath.Base(id) != id {
		return nil, ErrNotFound
	}

	result, err := Load(filepath.Join(s.Dir, strings.TrimSuffix(id, ".json")+".json"))
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	stored, err := s.scan()
	if err != nil {
		return nil, err
	}
	for _, st := range stored {
		if st.result.RunID() == id {
			return st.result, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, err := s.scan()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(stored))
	for _, st := range stored {
		entries = append(entries, EntryFor(st.id, st.result))
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Prune removes result files taken before the cutoff.
func (s *FileStore) Prune(ctx context.Context, before time.Time, dryRun bool) (int, error) {
	stored, err := s.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, st := range stored {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !st.result.Timestamp.Before(before) {
			continue
		}
		if !dryRun {
			if err := os.Remove(filepath.Join(s.Dir, st.id+".json")); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", st.id, err)
			}
		}
		removed++
	}
	s.Logger.WithFields(logrus.Fields{
		"before":  before.Format(time.RFC3339),
		"count":   removed,
		"dry_run": dryRun,
	}).Info("Pruned benchmarks")
	return removed, nil
}

type storedResult struct {
	id     string
	result *models.BenchmarkResult
}

// scan reads every benchmark file, newest first. Unreadable files are
// logged and skipped.
func (s *FileStore) scan() ([]storedResult, error) {
	paths, err := filepath.Glob(filepath.Join(s.Dir, filePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmarks: %w", err)
	}

	out := make([]storedResult, 0, len(paths))
	for _, path := range paths {
		result, err := Load(path)
		if err != nil {
			s.Logger.WithError(err).WithField("path", path).Warn("Skipping unreadable benchmark")
			continue
		}
		out = append(out, storedResult{
			id:     strings.TrimSuffix(filepath.Base(path), ".json"),
			result: result,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].result.Timestamp.After(out[j].result.Timestamp)
	})
	return out, nil
}

// WriteFile writes result as indented JSON. The file is written to a
// temporary name first so readers never see a partial document.
func WriteFile(path string, result *models.BenchmarkResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode benchmark: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write benchmark: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write benchmark: %w", err)
	}
	return nil
}

// Load decodes and validates a benchmark JSON file.
func Load(path string) (*models.BenchmarkResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a benchmark JSON document and validates it.
func Decode(data []byte) (*models.BenchmarkResult, error) {
	var result models.BenchmarkResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode benchmark: %w", err)
	}
	if result.DNS == nil {
		result.DNS = []models.DNSResult{}
	}
	if result.ICMP.RawSamples == nil {
		result.ICMP.RawSamples = []float64{}
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid benchmark: %w", err)
	}
	return &result, nil
}
