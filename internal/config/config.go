package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Reader        ReaderConfig
	DuckDB        DuckDBConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ReaderConfig struct {
	// DataRoot, when set, is the only directory tree paths may point into.
	DataRoot          string
	DefaultLimit      int
	MaxLimit          int
	QueryDefaultLimit int
	QueryTimeout      time.Duration
	SheetsFallback    bool
}

type DuckDBConfig struct {
	ExtensionDirectory string
	Prewarm            bool
	GuardQueries       bool
	QueryRowLimit      int
}

type ObjectStoreConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
	StagingDir      string
	// MaxObjectBytes caps the size of a staged object. Zero means unlimited.
	MaxObjectBytes int64
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DUCKGRID_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DUCKGRID_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "DUCKGRID_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGRID_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGRID_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGRID_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_DATA_ROOT", &cfg.Reader.DataRoot); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGRID_READER_DEFAULT_LIMIT", &cfg.Reader.DefaultLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGRID_READER_MAX_LIMIT", &cfg.Reader.MaxLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGRID_QUERY_DEFAULT_LIMIT", &cfg.Reader.QueryDefaultLimit); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DUCKGRID_QUERY_TIMEOUT", &cfg.Reader.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_SHEETS_FALLBACK", &cfg.Reader.SheetsFallback); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_DUCKDB_EXTENSION_DIR", &cfg.DuckDB.ExtensionDirectory); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_DUCKDB_PREWARM", &cfg.DuckDB.Prewarm); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_DUCKDB_GUARD_QUERIES", &cfg.DuckDB.GuardQueries); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCKGRID_DUCKDB_QUERY_ROW_LIMIT", &cfg.DuckDB.QueryRowLimit); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_OBJECTSTORE_STAGING_DIR", &cfg.ObjectStore.StagingDir); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "DUCKGRID_OBJECTSTORE_MAX_BYTES", &cfg.ObjectStore.MaxObjectBytes); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DUCKGRID_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCKGRID_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCKGRID_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if cfg.Reader.DataRoot != "" && !filepath.IsAbs(cfg.Reader.DataRoot) {
		return fmt.Errorf("DUCKGRID_DATA_ROOT must be absolute: %q", cfg.Reader.DataRoot)
	}
	if cfg.Reader.DefaultLimit <= 0 {
		return fmt.Errorf("DUCKGRID_READER_DEFAULT_LIMIT must be > 0")
	}
	if cfg.Reader.MaxLimit < cfg.Reader.DefaultLimit {
		return fmt.Errorf("DUCKGRID_READER_MAX_LIMIT must be >= DUCKGRID_READER_DEFAULT_LIMIT")
	}
	if cfg.Reader.QueryDefaultLimit <= 0 {
		return fmt.Errorf("DUCKGRID_QUERY_DEFAULT_LIMIT must be > 0")
	}
	if cfg.Reader.QueryTimeout < 0 {
		return fmt.Errorf("DUCKGRID_QUERY_TIMEOUT must be >= 0")
	}
	if cfg.DuckDB.QueryRowLimit < 0 {
		return fmt.Errorf("DUCKGRID_DUCKDB_QUERY_ROW_LIMIT must be >= 0")
	}
	if cfg.ObjectStore.MaxObjectBytes < 0 {
		return fmt.Errorf("DUCKGRID_OBJECTSTORE_MAX_BYTES must be >= 0")
	}
	if cfg.ObjectStore.Enabled && cfg.ObjectStore.Bucket == "" {
		return fmt.Errorf("DUCKGRID_OBJECTSTORE_BUCKET is required when the object store is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "duckgrid-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Reader: ReaderConfig{
			DefaultLimit:      100,
			MaxLimit:          10000,
			QueryDefaultLimit: 1000,
			QueryTimeout:      30 * time.Second,
		},
		DuckDB: DuckDBConfig{
			GuardQueries: true,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "duckgrid",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.DuckDB.Prewarm = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
