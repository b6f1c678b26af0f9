package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/user/collector/internal/validate"
)

// Config holds all configuration for collector.
// Values come from an optional YAML file; environment variables override them.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds the SQLite store location.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"COLLECTOR_DB_PATH" env-default:"collector.db"`
}

// FetchConfig controls outbound requests to data source endpoints.
type FetchConfig struct {
	// Timeout applies to SourceRef columns.
	Timeout time.Duration `yaml:"timeout" env:"COLLECTOR_FETCH_TIMEOUT" env-default:"15s"`
	// MonitorTimeout applies to device monitor polls.
	MonitorTimeout time.Duration `yaml:"monitor_timeout" env:"COLLECTOR_MONITOR_TIMEOUT" env-default:"10s"`
	// RatePerSecond caps outbound requests; 0 disables the limit.
	RatePerSecond float64 `yaml:"rate_per_second" env:"COLLECTOR_FETCH_RATE" env-default:"0"`
	// BreakerFailures is the number of consecutive failures that opens an endpoint's breaker; 0 disables it.
	BreakerFailures uint32 `yaml:"breaker_failures" env:"COLLECTOR_BREAKER_FAILURES" env-default:"5"`
	// BreakerOpenTimeout is how long an open breaker rejects requests before probing again.
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout" env:"COLLECTOR_BREAKER_OPEN_TIMEOUT" env-default:"30s"`
}

// SchedulerConfig holds auto-run defaults.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval" env:"COLLECTOR_INTERVAL" env-default:"60s"`
	Listen   string        `yaml:"listen" env:"COLLECTOR_LISTEN" env-default:""`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `yaml:"format" env:"COLLECTOR_LOG_FORMAT" env-default:"text"`
}

// Load reads configuration from path (if it exists) and the environment.
// An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return validated(cfg)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return validated(cfg)
}

func validated(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that cleanenv cannot express.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Fetch.Timeout <= 0 || c.Fetch.MonitorTimeout <= 0 {
		return fmt.Errorf("fetch timeouts must be positive")
	}
	if c.Fetch.RatePerSecond < 0 {
		return fmt.Errorf("fetch rate cannot be negative")
	}
	if err := validate.ValidateInterval(c.Scheduler.Interval); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	return nil
}
