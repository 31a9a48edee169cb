package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/jobrelay/internal/persistence"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the operator-editable values persisted next to the
// deployment. They take precedence over the environment.
type RuntimeSettings struct {
	CronExpr         string `json:"cron_expr"`
	ArchiveThreshold int    `json:"archive_threshold"`
	FeedFile         string `json:"feed_file"`
	OutboxFile       string `json:"outbox_file"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	if err := validateThreshold(s.ArchiveThreshold); err != nil {
		return err
	}
	if strings.TrimSpace(s.FeedFile) == "" {
		return fmt.Errorf("feed_file is required")
	}
	if strings.TrimSpace(s.OutboxFile) == "" {
		return fmt.Errorf("outbox_file is required")
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		CronExpr:         c.Pipeline.CronExpr,
		ArchiveThreshold: c.Store.ArchiveThreshold,
		FeedFile:         c.Pipeline.FeedFile,
		OutboxFile:       c.Pipeline.OutboxFile,
	}
}

// WithRuntimeSettings overlays the non-empty fields of settings.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Pipeline.CronExpr = settings.CronExpr
		}
		if settings.ArchiveThreshold > 0 {
			c.Store.ArchiveThreshold = settings.ArchiveThreshold
		}
		if strings.TrimSpace(settings.FeedFile) != "" {
			c.Pipeline.FeedFile = settings.FeedFile
		}
		if strings.TrimSpace(settings.OutboxFile) != "" {
			c.Pipeline.OutboxFile = settings.OutboxFile
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + persistence.TempSuffix
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore serializes reads and updates of the settings file.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) Path() string {
	return s.path
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
