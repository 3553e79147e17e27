package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("duckgrid-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Reader.DefaultLimit != 100 || cfg.Reader.MaxLimit != 10000 {
		t.Fatalf("Reader limits = %d/%d", cfg.Reader.DefaultLimit, cfg.Reader.MaxLimit)
	}
	if cfg.Reader.QueryDefaultLimit != 1000 {
		t.Fatalf("Reader.QueryDefaultLimit = %d", cfg.Reader.QueryDefaultLimit)
	}
	if cfg.Reader.DataRoot != "" {
		t.Fatalf("Reader.DataRoot = %q", cfg.Reader.DataRoot)
	}
	if !cfg.DuckDB.GuardQueries {
		t.Fatal("DuckDB.GuardQueries should default to true")
	}
	if cfg.DuckDB.Prewarm {
		t.Fatal("DuckDB.Prewarm should default to false in dev")
	}
	if cfg.ObjectStore.Enabled {
		t.Fatal("ObjectStore.Enabled should default to false")
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"DUCKGRID_PROFILE": "prod"})
	cfg, err := Load("duckgrid-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if !cfg.DuckDB.Prewarm {
		t.Fatal("DuckDB.Prewarm should default to true in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DUCKGRID_PROFILE":                 "test",
		"DUCKGRID_SERVICE_NAME":            "duckgrid-custom",
		"DUCKGRID_HTTP_ADDR":               ":9999",
		"DUCKGRID_HTTP_READ_TIMEOUT":       "2s",
		"DUCKGRID_HTTP_WRITE_TIMEOUT":      "3s",
		"DUCKGRID_LOG_LEVEL":               "error",
		"DUCKGRID_AUTH_REQUIRED":           "true",
		"DUCKGRID_AUTH_STATIC_KEYS":        "k1:alice:reader|query",
		"DUCKGRID_DATA_ROOT":               "/srv/data",
		"DUCKGRID_READER_DEFAULT_LIMIT":    "50",
		"DUCKGRID_READER_MAX_LIMIT":        "500",
		"DUCKGRID_QUERY_DEFAULT_LIMIT":     "250",
		"DUCKGRID_QUERY_TIMEOUT":           "9s",
		"DUCKGRID_SHEETS_FALLBACK":         "true",
		"DUCKGRID_DUCKDB_EXTENSION_DIR":    "/var/cache/duckdb",
		"DUCKGRID_DUCKDB_PREWARM":          "true",
		"DUCKGRID_DUCKDB_GUARD_QUERIES":    "false",
		"DUCKGRID_DUCKDB_QUERY_ROW_LIMIT":  "5000",
		"DUCKGRID_OBJECTSTORE_ENABLED":     "true",
		"DUCKGRID_OBJECTSTORE_ENDPOINT":    "s3.example.com",
		"DUCKGRID_OBJECTSTORE_BUCKET":      "grids",
		"DUCKGRID_OBJECTSTORE_REGION":      "us-west-2",
		"DUCKGRID_OBJECTSTORE_ACCESS_KEY":  "abc",
		"DUCKGRID_OBJECTSTORE_SECRET_KEY":  "def",
		"DUCKGRID_OBJECTSTORE_USE_SSL":     "true",
		"DUCKGRID_OBJECTSTORE_PREFIX":      "exports",
		"DUCKGRID_OBJECTSTORE_STAGING_DIR": "/tmp/staging",
		"DUCKGRID_OBJECTSTORE_MAX_BYTES":   "1048576",
	})
	cfg, err := Load("duckgrid-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "duckgrid-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP timeouts = %s/%s", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:alice:reader|query" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
	if cfg.Reader.DataRoot != "/srv/data" {
		t.Fatalf("Reader.DataRoot = %q", cfg.Reader.DataRoot)
	}
	if cfg.Reader.DefaultLimit != 50 || cfg.Reader.MaxLimit != 500 || cfg.Reader.QueryDefaultLimit != 250 {
		t.Fatalf("Reader limits = %#v", cfg.Reader)
	}
	if cfg.Reader.QueryTimeout != 9*time.Second {
		t.Fatalf("Reader.QueryTimeout = %s", cfg.Reader.QueryTimeout)
	}
	if !cfg.Reader.SheetsFallback {
		t.Fatal("Reader.SheetsFallback = false, want true")
	}
	if cfg.DuckDB.ExtensionDirectory != "/var/cache/duckdb" || !cfg.DuckDB.Prewarm || cfg.DuckDB.GuardQueries {
		t.Fatalf("DuckDB = %#v", cfg.DuckDB)
	}
	if cfg.DuckDB.QueryRowLimit != 5000 {
		t.Fatalf("DuckDB.QueryRowLimit = %d", cfg.DuckDB.QueryRowLimit)
	}
	if !cfg.ObjectStore.Enabled || cfg.ObjectStore.Bucket != "grids" || cfg.ObjectStore.Prefix != "exports" {
		t.Fatalf("ObjectStore = %#v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.StagingDir != "/tmp/staging" {
		t.Fatalf("ObjectStore.StagingDir = %q", cfg.ObjectStore.StagingDir)
	}
	if cfg.ObjectStore.MaxObjectBytes != 1<<20 {
		t.Fatalf("ObjectStore.MaxObjectBytes = %d", cfg.ObjectStore.MaxObjectBytes)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"DUCKGRID_PROFILE": "oops"},
		{"DUCKGRID_HTTP_READ_TIMEOUT": "NaN"},
		{"DUCKGRID_READER_DEFAULT_LIMIT": "oops"},
		{"DUCKGRID_READER_DEFAULT_LIMIT": "0"},
		{"DUCKGRID_READER_MAX_LIMIT": "10"},
		{"DUCKGRID_QUERY_DEFAULT_LIMIT": "-1"},
		{"DUCKGRID_QUERY_TIMEOUT": "-1s"},
		{"DUCKGRID_DUCKDB_QUERY_ROW_LIMIT": "-5"},
		{"DUCKGRID_DUCKDB_GUARD_QUERIES": "maybe"},
		{"DUCKGRID_DATA_ROOT": "relative/dir"},
		{"DUCKGRID_OBJECTSTORE_ENABLED": "true", "DUCKGRID_OBJECTSTORE_BUCKET": ""},
		{"DUCKGRID_OBJECTSTORE_MAX_BYTES": "-1"},
		{"DUCKGRID_OBJECTSTORE_MAX_BYTES": "1MB"},
		{"DUCKGRID_AUTH_REQUIRED": "not-bool"},
		{"DUCKGRID_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("duckgrid-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
