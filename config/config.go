// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Batches  BatchConfig    `yaml:"batches"`
	Billing  BillingConfig  `yaml:"billing"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Docs     DocsConfig     `yaml:"docs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig configures where archives are served from.
type StorageConfig struct {
	Dir     string `yaml:"dir"`      // finished archive parts
	BaseURL string `yaml:"base_url"` // prefix for part references
	WorkDir string `yaml:"work_dir"` // staging area for downloads
}

// DatabaseConfig configures the database.
// Use "memory" for ephemeral stores or "sqlite" for persistence.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// FetchConfig configures the download tool.
type FetchConfig struct {
	Binary      string `yaml:"binary"`       // fetch tool binary (default: yt-dlp)
	ItemWorkers int    `yaml:"item_workers"` // concurrent downloads per batch
}

// ArchiveConfig configures archive packing.
type ArchiveConfig struct {
	PartCeilingMiB int64 `yaml:"part_ceiling_mib"`
}

// BatchConfig configures batch lifecycle.
type BatchConfig struct {
	Retention  time.Duration `yaml:"retention"`
	SweepEvery time.Duration `yaml:"sweep_every"`
}

// BillingConfig configures the payment provider.
// Use "none", "dummy", or "stripe".
type BillingConfig struct {
	Mode          string `yaml:"mode"`
	StripeKey     string `yaml:"stripe_key,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DocsConfig configures the Swagger UI.
type DocsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
//
// Environment variables:
//
//	FETCHVAULT_SERVER_HOST     - Server host (default: 0.0.0.0)
//	FETCHVAULT_SERVER_PORT     - Server port (default: 8080)
//	FETCHVAULT_DATABASE_DRIVER - "memory" or "sqlite" (default: memory)
//	FETCHVAULT_DATABASE_DSN    - SQLite path (default: fetchvault.db)
//	FETCHVAULT_STORAGE_DIR     - Archive output directory
//	FETCHVAULT_WORK_DIR        - Download staging directory
//	FETCHVAULT_FETCH_BINARY    - Download tool binary (default: yt-dlp)
//	FETCHVAULT_BILLING_MODE    - "none", "dummy" or "stripe" (default: none)
//	FETCHVAULT_LOG_LEVEL       - Log level (default: info)
//	FETCHVAULT_LOG_FORMAT      - "json" or "console" (default: json)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies FETCHVAULT_* environment variables.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FETCHVAULT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FETCHVAULT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FETCHVAULT_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("FETCHVAULT_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("FETCHVAULT_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FETCHVAULT_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("FETCHVAULT_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("FETCHVAULT_STORAGE_BASE_URL"); v != "" {
		cfg.Storage.BaseURL = v
	}
	if v := os.Getenv("FETCHVAULT_WORK_DIR"); v != "" {
		cfg.Storage.WorkDir = v
	}
	if v := os.Getenv("FETCHVAULT_FETCH_BINARY"); v != "" {
		cfg.Fetch.Binary = v
	}
	if v := os.Getenv("FETCHVAULT_FETCH_ITEM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fetch.ItemWorkers = n
		}
	}
	if v := os.Getenv("FETCHVAULT_ARCHIVE_PART_CEILING_MIB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Archive.PartCeilingMiB = n
		}
	}
	if v := os.Getenv("FETCHVAULT_BATCH_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Batches.Retention = d
		}
	}
	if v := os.Getenv("FETCHVAULT_BILLING_MODE"); v != "" {
		cfg.Billing.Mode = v
	}
	if v := os.Getenv("FETCHVAULT_STRIPE_KEY"); v != "" {
		cfg.Billing.StripeKey = v
	}
	if v := os.Getenv("FETCHVAULT_BILLING_WEBHOOK_SECRET"); v != "" {
		cfg.Billing.WebhookSecret = v
	}
	if v := os.Getenv("FETCHVAULT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FETCHVAULT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FETCHVAULT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("FETCHVAULT_DOCS_ENABLED"); v != "" {
		cfg.Docs.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "fetchvault.db"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data/archives"
	}
	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "/downloads"
	}
	if cfg.Storage.WorkDir == "" {
		cfg.Storage.WorkDir = "data/work"
	}
	if cfg.Fetch.Binary == "" {
		cfg.Fetch.Binary = "yt-dlp"
	}
	if cfg.Fetch.ItemWorkers == 0 {
		cfg.Fetch.ItemWorkers = 3
	}
	if cfg.Archive.PartCeilingMiB == 0 {
		cfg.Archive.PartCeilingMiB = 400
	}
	if cfg.Batches.Retention == 0 {
		cfg.Batches.Retention = time.Hour
	}
	if cfg.Batches.SweepEvery == 0 {
		cfg.Batches.SweepEvery = 10 * time.Minute
	}
	if cfg.Billing.Mode == "" {
		cfg.Billing.Mode = "none"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("database.driver must be memory or sqlite, got %q", cfg.Database.Driver)
	}
	switch cfg.Billing.Mode {
	case "none", "dummy", "stripe":
	default:
		return fmt.Errorf("billing.mode must be none, dummy or stripe, got %q", cfg.Billing.Mode)
	}
	if cfg.Billing.Mode == "stripe" && cfg.Billing.StripeKey == "" {
		return fmt.Errorf("billing.stripe_key is required when billing.mode is stripe")
	}
	if cfg.Billing.Mode != "none" && cfg.Billing.WebhookSecret == "" {
		return fmt.Errorf("billing.webhook_secret is required when billing is enabled")
	}
	if cfg.Archive.PartCeilingMiB < 0 {
		return fmt.Errorf("archive.part_ceiling_mib must not be negative")
	}
	if cfg.Fetch.ItemWorkers < 1 {
		return fmt.Errorf("fetch.item_workers must be at least 1")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	return nil
}

// PartCeilingBytes converts the configured ceiling to bytes.
func (c ArchiveConfig) PartCeilingBytes() int64 {
	return c.PartCeilingMiB << 20
}
