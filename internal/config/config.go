// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// ingestion run: sources, worker pool, store, fetch policy, logging, the
// optional ops endpoint and observability.
package config

import (
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DBConfig selects and sizes the relational store.
type DBConfig struct {
	Driver       string // DB_DRIVER: sqlite|postgres
	Path         string // DB_PATH (sqlite)
	URL          string // DATABASE_URL (postgres)
	MaxOpenConns int    // DB_MAX_OPEN_CONNS; 0 derives it from the worker count
}

// FetchConfig controls how source documents are retrieved.
type FetchConfig struct {
	Timeout    time.Duration // FETCH_TIMEOUT per attempt
	Attempts   int           // FETCH_ATTEMPTS (>= 1)
	RetryDelay time.Duration // FETCH_RETRY_DELAY base backoff
	RPS        float64       // FETCH_RPS; 0 disables throttling
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "sql-transformer")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Pipeline
	Sources             []string      // SOURCE_URLS, comma separated
	Workers             int           // consumer pool size
	QueueCapacity       int           // bounded queue size
	PollTimeout         time.Duration // consumer dequeue timeout
	RelinkMissingBodies bool          // repair messages persisted without their body

	DB    DBConfig
	Fetch FetchConfig

	// Ops endpoint; empty disables it.
	OpsAddr      string
	OpsRateRPS   float64 // per-client requests per second (>= 0)
	OpsRateBurst int     // bucket size (>= 1)
	GinMode      string  // debug|release|test

	// Observability
	OTEL OTELConfig
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		Sources:             splitCSV(getenv("SOURCE_URLS", "")),
		Workers:             getint("WORKERS", runtime.NumCPU()),
		QueueCapacity:       getint("QUEUE_CAPACITY", 1000),
		PollTimeout:         getdur("POLL_TIMEOUT", time.Second),
		RelinkMissingBodies: getbool("RELINK_MISSING_BODIES", false),

		DB: DBConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:         getenv("DB_PATH", "messages.db"),
			URL:          getenv("DATABASE_URL", ""),
			MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 0),
		},
		Fetch: FetchConfig{
			Timeout:    getdur("FETCH_TIMEOUT", 30*time.Second),
			Attempts:   getint("FETCH_ATTEMPTS", 3),
			RetryDelay: getdur("FETCH_RETRY_DELAY", 500*time.Millisecond),
			RPS:        getfloat("FETCH_RPS", 0),
		},

		OpsAddr:      strings.TrimSpace(getenv("OPS_ADDR", "")),
		OpsRateRPS:   getfloat("OPS_RATE_RPS", 10),
		OpsRateBurst: getint("OPS_RATE_BURST", 20),
		GinMode:      strings.ToLower(getenv("GIN_MODE", "release")),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "sql-transformer"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	return cfg, cfg.Validate()
}

// Validate checks cfg. It is run by Load and again after command-line
// overrides are applied.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.Workers < 1 {
		return errors.New("WORKERS must be >= 1")
	}
	if cfg.QueueCapacity < 1 {
		return errors.New("QUEUE_CAPACITY must be >= 1")
	}
	if cfg.PollTimeout <= 0 {
		return errors.New("POLL_TIMEOUT must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.DB.MaxOpenConns < 0 {
		return errors.New("DB_MAX_OPEN_CONNS must be >= 0")
	}
	if cfg.Fetch.Timeout <= 0 || cfg.Fetch.RetryDelay < 0 {
		return errors.New("FETCH_TIMEOUT must be positive and FETCH_RETRY_DELAY non-negative")
	}
	if cfg.Fetch.Attempts < 1 {
		return errors.New("FETCH_ATTEMPTS must be >= 1")
	}
	if cfg.Fetch.RPS < 0 {
		return errors.New("FETCH_RPS must be >= 0")
	}
	if cfg.OpsRateRPS < 0 {
		return errors.New("OPS_RATE_RPS must be >= 0")
	}
	if cfg.OpsRateBurst < 1 {
		return errors.New("OPS_RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// PoolSize is the number of store connections to allow: one pinned per
// consumer plus headroom for the producer-side checks and the ops endpoint.
func (cfg Config) PoolSize() int {
	floor := cfg.Workers + 2
	if cfg.DB.MaxOpenConns > floor {
		return cfg.DB.MaxOpenConns
	}
	return floor
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
