package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Benchmark BenchmarkConfig
	DNS       DNSConfig
	Iperf     IperfConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	HTTP      HTTPConfig
	Tracing   TracingConfig
	Logging   LoggingConfig
}

// BenchmarkConfig holds the defaults of a benchmark run
type BenchmarkConfig struct {
	Target            string
	PingCount         int
	PingInterval      time.Duration
	PingTimeout       time.Duration
	Privileged        bool
	SkipThroughput    bool
	SkipDNS           bool
	BufferbloatFactor float64
	IdleSamples       int
}

// DNSConfig holds resolver benchmark settings
type DNSConfig struct {
	Resolvers   []string
	DomainCount int
	Workers     int
	Timeout     time.Duration
}

// IperfConfig holds throughput backend settings
type IperfConfig struct {
	Backend      string // iperf3 or speedtest
	Server       string
	Port         int
	Duration     time.Duration
	UDPBandwidth string
}

// StorageConfig selects where benchmark results are kept
type StorageConfig struct {
	Backend string // file or postgres
	Dir     string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	Enabled bool
	URL     string
	Stream  string
	Subject string
}

// HTTPConfig holds report server settings
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	APIToken     string
	JWTSecret    string
	TLSCertFile  string
	TLSKeyFile   string
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// HomeDir returns the ipo state directory, ~/.ipo unless IPO_HOME is set.
func HomeDir() string {
	if dir := os.Getenv("IPO_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ipo"
	}
	return filepath.Join(home, ".ipo")
}

// LoadEnvFiles loads ~/.ipo/ipo.env and ./.env into the process environment.
// Variables already set win; missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{filepath.Join(HomeDir(), "ipo.env"), ".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	home := HomeDir()
	return &Config{
		Benchmark: BenchmarkConfig{
			Target:            getEnv("IPO_TARGET", "8.8.8.8"),
			PingCount:         getEnvInt("IPO_PING_COUNT", 1000),
			PingInterval:      getEnvDuration("IPO_PING_INTERVAL", 200*time.Millisecond),
			PingTimeout:       getEnvDuration("IPO_PING_TIMEOUT", 2*time.Second),
			Privileged:        getEnvBool("IPO_PING_PRIVILEGED", false),
			SkipThroughput:    getEnvBool("IPO_SKIP_THROUGHPUT", false),
			SkipDNS:           getEnvBool("IPO_SKIP_DNS", false),
			BufferbloatFactor: getEnvFloat("IPO_BUFFERBLOAT_FACTOR", 1.5),
			IdleSamples:       getEnvInt("IPO_IDLE_SAMPLES", 50),
		},
		DNS: DNSConfig{
			Resolvers:   getEnvList("IPO_DNS_RESOLVERS", []string{"1.1.1.1", "8.8.8.8"}),
			DomainCount: getEnvInt("IPO_DNS_DOMAINS", 20),
			Workers:     getEnvInt("IPO_DNS_WORKERS", 10),
			Timeout:     getEnvDuration("IPO_DNS_TIMEOUT", 2*time.Second),
		},
		Iperf: IperfConfig{
			Backend:      getEnv("IPO_THROUGHPUT_BACKEND", "iperf3"),
			Server:       getEnv("IPO_IPERF_SERVER", "iperf.he.net"),
			Port:         getEnvInt("IPO_IPERF_PORT", 5201),
			Duration:     getEnvDuration("IPO_IPERF_DURATION", 10*time.Second),
			UDPBandwidth: getEnv("IPO_IPERF_UDP_BANDWIDTH", "10M"),
		},
		Storage: StorageConfig{
			Backend: getEnv("IPO_STORAGE", "file"),
			Dir:     getEnv("IPO_BENCHMARK_DIR", filepath.Join(home, "benchmarks")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ipo"),
			Password: getEnv("DB_PASSWORD", "ipo"),
			Database: getEnv("DB_NAME", "ipo"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:  getEnv("NATS_STREAM", "IPO_BENCHMARKS"),
			Subject: getEnv("NATS_SUBJECT", "ipo.benchmarks"),
		},
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			CORSOrigins:  getEnvList("HTTP_CORS_ORIGINS", []string{"*"}),
			APIToken:     getEnv("IPO_API_TOKEN", ""),
			JWTSecret:    getEnv("IPO_JWT_SECRET", ""),
			TLSCertFile:  getEnv("HTTP_TLS_CERT_FILE", ""),
			TLSKeyFile:   getEnv("HTTP_TLS_KEY_FILE", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("SERVICE_NAME", "ipo"),
			Endpoint:    getEnv("OTLP_ENDPOINT", "localhost:4318"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
	}
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
