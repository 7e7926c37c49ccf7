package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clearclaim/driftwatch/internal/claims"
	"github.com/clearclaim/driftwatch/internal/detector"
	"github.com/clearclaim/driftwatch/internal/engine"
	"github.com/clearclaim/driftwatch/internal/scheduler"
)

// Config is the driftwatch configuration.
type Config struct {
	Storage       StorageConfig           `yaml:"storage"`
	Claims        claims.ClickHouseConfig `yaml:"claims"`
	Engine        engine.Config           `yaml:"engine"`
	Detectors     detector.Config         `yaml:"detectors"`
	Scheduler     scheduler.Config        `yaml:"scheduler"`
	Notifications NotificationsConfig     `yaml:"notifications"`
	Metrics       MetricsConfig           `yaml:"metrics"`
	Logging       LoggingConfig           `yaml:"logging"`
}

// StorageConfig contains state store settings.
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite database path
}

// NotificationsConfig contains outbound notification settings.
type NotificationsConfig struct {
	MaxPerWindow int           `yaml:"max_per_window"`
	Window       time.Duration `yaml:"window"`
	RateLimit    bool          `yaml:"rate_limit"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Storage.Path == "" {
		c.Storage.Path = "/data/driftwatch.db"
	}
	if c.Engine.BaselineDays == 0 {
		c.Engine = engine.DefaultConfig()
	}
	if c.Detectors.DenialRateDelta == 0 {
		c.Detectors = detector.DefaultConfig()
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = time.Hour
	}
	if c.Notifications.MaxPerWindow == 0 {
		c.Notifications.MaxPerWindow = 10
	}
	if c.Notifications.Window == 0 {
		c.Notifications.Window = time.Minute
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Engine.BaselineDays <= 0 || c.Engine.CurrentDays <= 0 {
		return fmt.Errorf("engine windows must be positive (baseline %d, current %d)",
			c.Engine.BaselineDays, c.Engine.CurrentDays)
	}
	if c.Engine.CurrentDays >= c.Engine.BaselineDays {
		return fmt.Errorf("engine.current_days (%d) must be shorter than engine.baseline_days (%d)",
			c.Engine.CurrentDays, c.Engine.BaselineDays)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}
