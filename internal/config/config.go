package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

// Config holds all application configuration.
//
// Environment Variables:
// Store Configuration:
// - STORE_DIR: directory holding posted_jobs.json and archive/ (default: $DATA_DIR/store)
// - ARCHIVE_THRESHOLD: active-set size above which a save archives (default: 4500)
// - LOOKBACK_MONTHS: newest archive partitions consulted by a check (default: 2)
//
// Pipeline Configuration:
// - CRON_EXPR: standard 5-field schedule for the run command (default: */30 * * * *)
// - FEED_FILE: JSON or JSON lines file of candidate postings (default: $DATA_DIR/feed.json)
// - OUTBOX_FILE: JSON lines file published postings are appended to (default: $DATA_DIR/outbox.jsonl)
// - HISTORY_RETENTION_DAYS: ledger runs older than this are pruned, 0 keeps everything (default: 90)
//
// System Configuration:
// - DATA_DIR: data root (default: /app/data)
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - TZ: Timezone (default: UTC)
type Config struct {
	Store    StoreConfig    `json:"store"`
	Pipeline PipelineConfig `json:"pipeline"`
	System   SystemConfig   `json:"system"`
}

type StoreConfig struct {
	Dir              string `json:"dir"`
	ArchiveThreshold int    `json:"archive_threshold"`
	LookbackMonths   int    `json:"lookback_months"`
}

type PipelineConfig struct {
	CronExpr      string `json:"cron_expr"`
	FeedFile      string `json:"feed_file"`
	OutboxFile    string `json:"outbox_file"`
	RetentionDays int    `json:"retention_days"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	TZ       string `json:"tz"`
}

const (
	DefaultDataDir  = "/app/data"
	DefaultCronExpr = "*/30 * * * *"
	dbFileName      = "jobrelay.db"
)

// DBPath is the location of the run ledger.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, dbFileName)
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	dataDir := getEnvString("DATA_DIR", DefaultDataDir)
	config := &Config{
		Store: StoreConfig{
			Dir:              getEnvString("STORE_DIR", filepath.Join(dataDir, "store")),
			ArchiveThreshold: getEnvInt("ARCHIVE_THRESHOLD", dedup.DefaultArchiveThreshold),
			LookbackMonths:   getEnvInt("LOOKBACK_MONTHS", 2),
		},
		Pipeline: PipelineConfig{
			CronExpr:      getEnvString("CRON_EXPR", DefaultCronExpr),
			FeedFile:      getEnvString("FEED_FILE", filepath.Join(dataDir, "feed.json")),
			OutboxFile:    getEnvString("OUTBOX_FILE", filepath.Join(dataDir, "outbox.jsonl")),
			RetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", 90),
		},
		System: SystemConfig{
			DataDir:  dataDir,
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			TZ:       getEnvString("TZ", "UTC"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// Load reads an optional .env file, then the runtime settings file when it
// exists, and finally the environment. Settings file values win over env.
func Load(opts ...Option) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	path := RuntimeSettingsFilePath()
	settings, err := LoadRuntimeSettingsFile(path)
	switch {
	case err == nil:
		opts = append([]Option{WithRuntimeSettings(settings)}, opts...)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("load settings file %s: %w", path, err)
	}
	return NewFromEnv(opts...)
}

// LoadDotEnv loads key=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Store.Dir) == "" {
		return fmt.Errorf("STORE_DIR is required")
	}
	if err := validateThreshold(c.Store.ArchiveThreshold); err != nil {
		return err
	}
	if c.Store.LookbackMonths <= 0 {
		return fmt.Errorf("LOOKBACK_MONTHS must be positive, got %d", c.Store.LookbackMonths)
	}
	if _, err := cron.ParseStandard(c.Pipeline.CronExpr); err != nil {
		return fmt.Errorf("invalid CRON_EXPR %q: %w", c.Pipeline.CronExpr, err)
	}
	if c.Pipeline.RetentionDays < 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must not be negative")
	}
	return nil
}

// validateThreshold keeps the threshold strictly below the hard cap so
// archival always runs before emergency trimming.
func validateThreshold(n int) error {
	if n <= 0 || n >= dedup.MaxActiveSize {
		return fmt.Errorf("archive threshold must be in (0, %d), got %d", dedup.MaxActiveSize, n)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn("Ignoring non-numeric %s=%q, using %d", key, value, defaultValue)
	}
	return defaultValue
}
