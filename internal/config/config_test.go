package config

import (
	"os"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

// --- Load success + normalization + parsing ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Workers != runtime.NumCPU() || cfg.QueueCapacity != 1000 || cfg.PollTimeout != time.Second {
		t.Fatalf("pipeline defaults unexpected: %+v", cfg)
	}
	if cfg.Sources != nil || cfg.RelinkMissingBodies || cfg.OpsAddr != "" {
		t.Fatalf("optional defaults unexpected: %+v", cfg)
	}
	if cfg.OpsRateRPS != 10 || cfg.OpsRateBurst != 20 {
		t.Fatalf("ops rate defaults unexpected: %+v", cfg)
	}
	if cfg.Fetch.Timeout != 30*time.Second || cfg.Fetch.Attempts != 3 ||
		cfg.Fetch.RetryDelay != 500*time.Millisecond || cfg.Fetch.RPS != 0 {
		t.Fatalf("fetch defaults unexpected: %+v", cfg.Fetch)
	}
	if cfg.OTEL.ServiceName != "sql-transformer" || cfg.OTEL.Enabled {
		t.Fatalf("otel defaults unexpected: %+v", cfg.OTEL)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path == "" {
		t.Fatalf("store defaults unexpected: %+v", cfg.DB)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("GIN_MODE", "weird")    // will normalize to "release"
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")

	t.Setenv("SOURCE_URLS", " https://a.example/m.json , , file:///tmp/b.json ")
	t.Setenv("WORKERS", "6")
	t.Setenv("QUEUE_CAPACITY", "50")
	t.Setenv("POLL_TIMEOUT", "250ms")
	t.Setenv("RELINK_MISSING_BODIES", "on")

	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/db")
	t.Setenv("DB_MAX_OPEN_CONNS", "nope") // -> default 0

	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("FETCH_ATTEMPTS", "5")
	t.Setenv("FETCH_RETRY_DELAY", "1s")
	t.Setenv("FETCH_RPS", "2.5")

	t.Setenv("OPS_ADDR", " :9090 ")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.GinMode != "release" {
		t.Fatalf("logging unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Sources, []string{"https://a.example/m.json", "file:///tmp/b.json"}) {
		t.Fatalf("sources unexpected: %#v", cfg.Sources)
	}
	if cfg.Workers != 6 || cfg.QueueCapacity != 50 || cfg.PollTimeout != 250*time.Millisecond || !cfg.RelinkMissingBodies {
		t.Fatalf("pipeline unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.URL == "" || cfg.DB.MaxOpenConns != 0 {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	if cfg.Fetch.Timeout != 5*time.Second || cfg.Fetch.Attempts != 5 || cfg.Fetch.RetryDelay != time.Second || cfg.Fetch.RPS != 2.5 {
		t.Fatalf("fetch unexpected: %+v", cfg.Fetch)
	}
	if cfg.OpsAddr != ":9090" {
		t.Fatalf("ops addr unexpected: %q", cfg.OpsAddr)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"zero workers", "WORKERS", "0", "WORKERS"},
		{"zero queue", "QUEUE_CAPACITY", "0", "QUEUE_CAPACITY"},
		{"non-positive poll", "POLL_TIMEOUT", "0s", "POLL_TIMEOUT"},
		{"unknown driver", "DB_DRIVER", "mysql", "DB_DRIVER"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"postgres without url", "DB_DRIVER", "postgres", "DATABASE_URL"},
		{"negative pool", "DB_MAX_OPEN_CONNS", "-1", "DB_MAX_OPEN_CONNS"},
		{"non-positive fetch timeout", "FETCH_TIMEOUT", "0s", "FETCH_TIMEOUT"},
		{"zero attempts", "FETCH_ATTEMPTS", "0", "FETCH_ATTEMPTS"},
		{"negative rps", "FETCH_RPS", "-1", "FETCH_RPS"},
		{"negative ops rps", "OPS_RATE_RPS", "-1", "OPS_RATE_RPS"},
		{"zero ops burst", "OPS_RATE_BURST", "0", "OPS_RATE_BURST"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestPoolSize(t *testing.T) {
	cfg := Config{Workers: 4}
	if got := cfg.PoolSize(); got != 6 {
		t.Fatalf("PoolSize() = %d, want 6", got)
	}
	cfg.DB.MaxOpenConns = 3 // below the floor, ignored
	if got := cfg.PoolSize(); got != 6 {
		t.Fatalf("PoolSize() = %d, want 6", got)
	}
	cfg.DB.MaxOpenConns = 20
	if got := cfg.PoolSize(); got != 20 {
		t.Fatalf("PoolSize() = %d, want 20", got)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + keySuffix(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + keySuffix(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}
}

// small helper (avoid fmt just for ints)
func keySuffix(i int) string { return string('a' + rune(i)) }

// Ensure ambient env does not leak into the defaults tests.
func TestMain(m *testing.M) {
	for _, k := range []string{"SOURCE_URLS", "WORKERS", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "OPS_ADDR", "LOG_LEVEL"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
