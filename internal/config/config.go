// Package config handles application configuration, environment loading and
// the table registry.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"bronze-ingest/internal/ddl"
)

// Config holds the configuration of the ingestion pipeline, its storage
// backends and the serve surface.
type Config struct {
	LakeRoot     string // storage root holding raw_data/ and bronze_data/ (s3://, gs://, az://, or a local path)
	SchemaDir    string // directory of {table}.json schema documents (default "schemas")
	TablesFile   string // table registry YAML (default "tables.yaml")
	MetaDBPath   string // DuckLake SQLite metadata catalog (default "bronze_meta.sqlite")
	RunsDBPath   string // run ledger SQLite file (default "bronze_runs.sqlite")
	LakeCatalog  string // DuckDB alias of the attached lake (default "lake")
	BronzeSchema string // schema holding the bronze tables (default "main")
	RawFileGlob  string // file pattern of raw documents (default "*.json")

	// S3 fields are optional; nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string
	S3URLStyle string // "path" or "vhost"

	GCSKeyFile string // service-account key file for the GCS client
	GCSHMACID  string // HMAC key id for the DuckDB GCS secret
	GCSHMACKey string

	AzureAccountName      string
	AzureAccountKey       string
	AzureConnectionString string

	Concurrency          int           // tables processed in parallel (default 1)
	IOTimeout            time.Duration // per storage call (default 2m)
	RetryMaxAttempts     int           // attempts per storage call (default 3)
	RetryInitialInterval time.Duration // first backoff interval (default 1s)
	StorageRPS           float64       // storage calls per second, 0 = unlimited

	Schedule   string  // cron spec for serve; empty disables scheduled runs
	ListenAddr string  // HTTP listen address (default ":8080")
	TriggerRPS float64 // POST requests per second accepted by the HTTP API, 0 = unlimited
	LogLevel   string  // log level: debug, info, warn, error (default "info")
	LogFormat  string  // "text" (default) or "json"
	Env        string  // environment: "development" (default) or "production"

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasS3Credentials returns true if a static S3 key pair is configured.
func (c *Config) HasS3Credentials() bool {
	return c.S3KeyID != nil && c.S3Secret != nil
}

// RequireLakeRoot returns an error when no storage root is configured.
func (c *Config) RequireLakeRoot() error {
	if c.LakeRoot == "" {
		return fmt.Errorf("LAKE_ROOT is required")
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Storage credentials are optional. Local roots need none.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LakeRoot:              os.Getenv("LAKE_ROOT"),
		SchemaDir:             os.Getenv("SCHEMA_DIR"),
		TablesFile:            os.Getenv("TABLES_FILE"),
		MetaDBPath:            os.Getenv("META_DB_PATH"),
		RunsDBPath:            os.Getenv("RUNS_DB_PATH"),
		LakeCatalog:           os.Getenv("LAKE_CATALOG"),
		BronzeSchema:          os.Getenv("BRONZE_SCHEMA"),
		RawFileGlob:           os.Getenv("RAW_FILE_GLOB"),
		S3URLStyle:            os.Getenv("URL_STYLE"),
		GCSKeyFile:            os.Getenv("GCS_KEY_FILE"),
		GCSHMACID:             os.Getenv("GCS_HMAC_KEY_ID"),
		GCSHMACKey:            os.Getenv("GCS_HMAC_SECRET"),
		AzureAccountName:      os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:       os.Getenv("AZURE_ACCOUNT_KEY"),
		AzureConnectionString: os.Getenv("AZURE_CONNECTION_STRING"),
		Schedule:              strings.TrimSpace(os.Getenv("SCHEDULE")),
		ListenAddr:            os.Getenv("LISTEN_ADDR"),
		LogLevel:              os.Getenv("LOG_LEVEL"),
		LogFormat:             strings.ToLower(os.Getenv("LOG_FORMAT")),
		Env:                   os.Getenv("ENV"),
	}

	// S3 fields are optional, only set if present
	if v := os.Getenv("KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("REGION"); v != "" {
		cfg.S3Region = &v
	}

	var err error
	if cfg.Concurrency, err = parseIntEnv("CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts, err = parseIntEnv("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.IOTimeout, err = parseDurationEnv("IO_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetryInitialInterval, err = parseDurationEnv("RETRY_INITIAL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if v := os.Getenv("STORAGE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("STORAGE_RPS: %w", err)
		}
		cfg.StorageRPS = f
	}
	if v := os.Getenv("TRIGGER_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("TRIGGER_RPS: %w", err)
		}
		cfg.TriggerRPS = f
	}

	// Defaults
	if cfg.SchemaDir == "" {
		cfg.SchemaDir = "schemas"
	}
	if cfg.TablesFile == "" {
		cfg.TablesFile = "tables.yaml"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "bronze_meta.sqlite"
	}
	if cfg.RunsDBPath == "" {
		cfg.RunsDBPath = "bronze_runs.sqlite"
	}
	if cfg.LakeCatalog == "" {
		cfg.LakeCatalog = "lake"
	}
	if cfg.BronzeSchema == "" {
		cfg.BronzeSchema = "main"
	}
	if cfg.RawFileGlob == "" {
		cfg.RawFileGlob = "*.json"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.LakeRoot == "" {
		cfg.Warnings = append(cfg.Warnings, "LAKE_ROOT is not set; ingestion commands will refuse to run")
	}
	if cfg.S3KeyID != nil && cfg.S3Secret == nil {
		cfg.Warnings = append(cfg.Warnings, "KEY_ID is set without SECRET; S3 requests will be anonymous")
	}

	// Production mode: an unset root is fatal.
	if cfg.IsProduction() && cfg.LakeRoot == "" {
		return nil, fmt.Errorf("LAKE_ROOT must be set in production (ENV=production)")
	}

	return cfg, nil
}

// Validate checks value ranges and identifiers.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.IOTimeout <= 0 {
		return fmt.Errorf("IO_TIMEOUT must be positive, got %s", c.IOTimeout)
	}
	if c.RetryInitialInterval <= 0 {
		return fmt.Errorf("RETRY_INITIAL_INTERVAL must be positive, got %s", c.RetryInitialInterval)
	}
	if c.StorageRPS < 0 {
		return fmt.Errorf("STORAGE_RPS must not be negative, got %v", c.StorageRPS)
	}
	if c.TriggerRPS < 0 {
		return fmt.Errorf("TRIGGER_RPS must not be negative, got %v", c.TriggerRPS)
	}
	if err := ddl.ValidateIdentifier(c.LakeCatalog); err != nil {
		return fmt.Errorf("LAKE_CATALOG: %w", err)
	}
	if err := ddl.ValidateIdentifier(c.BronzeSchema); err != nil {
		return fmt.Errorf("BRONZE_SCHEMA: %w", err)
	}
	if c.S3URLStyle != "" && c.S3URLStyle != "path" && c.S3URLStyle != "vhost" {
		return fmt.Errorf("URL_STYLE must be \"path\" or \"vhost\", got %q", c.S3URLStyle)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	return nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
