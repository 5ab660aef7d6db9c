package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/internet-performance-optimizer/config"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()

	if cfg.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Host)
	}
	if cfg.Port != 5432 {
		t.Errorf("Expected port 5432, got %d", cfg.Port)
	}
	if cfg.MaxOpenConns != 10 {
		t.Errorf("Expected MaxOpenConns 10, got %d", cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1h, got %v", cfg.ConnMaxLifetime)
	}
}

func TestConnectionConfigFrom(t *testing.T) {
	cfg := ConnectionConfigFrom(config.DatabaseConfig{
		Host: "db.internal", Port: 6543, User: "bench", Password: "secret", Database: "results", SSLMode: "require",
	})

	if cfg.Host != "db.internal" || cfg.Port != 6543 || cfg.Database != "results" {
		t.Errorf("credentials not copied: %+v", cfg)
	}
	if cfg.MaxIdleConns != 2 {
		t.Errorf("pool defaults should be kept, MaxIdleConns = %d", cfg.MaxIdleConns)
	}
	want := "host=db.internal port=6543 user=bench password=secret dbname=results sslmode=require"
	if got := cfg.dsn(); got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}
}

func TestNewConnectionFailsFast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	cfg := DefaultConnectionConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.ConnectTimeout = time.Second

	conn, err := NewConnection(context.Background(), cfg)
	if err == nil {
		conn.Close()
		t.Fatal("Expected connection to fail, but it succeeded")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"deadline", context.DeadlineExceeded, false},
		{"conn done", sql.ErrConnDone, true},
		{"wrapped conn done", fmt.Errorf("query: %w", sql.ErrConnDone), true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"wrapped connection exception", fmt.Errorf("exec: %w", &pq.Error{Code: "08001"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.expected {
				t.Errorf("IsConnectionError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"canceled", context.Canceled, false},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"connection exception", &pq.Error{Code: "08003"}, true},
		{"syntax error", &pq.Error{Code: "42601"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}
