// Package config holds all configuration types and loading logic for alarmd.
// Config structure never shrinks — fields are only added, never renamed or removed.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for an alarmd instance.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Alarm   AlarmConfig   `yaml:"alarm"`
	Journal JournalConfig `yaml:"journal"`
	HTTP    HTTPConfig    `yaml:"http"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NodeConfig holds identity settings for this alarmd instance.
type NodeConfig struct {
	// ID is a ULID string. Use "auto" to generate and persist one on first start.
	ID      string `yaml:"id"`
	DataDir string `yaml:"data_dir"`
}

// AlarmConfig sets the timing knobs of the scheduler and its workers.
type AlarmConfig struct {
	// RenderIntervalMs is the pause between a worker's message prints.
	RenderIntervalMs int `yaml:"render_interval_ms"`
	// IdleWaitMs is how long the scheduler sleeps when no alarms exist.
	IdleWaitMs int `yaml:"idle_wait_ms"`
}

// JournalConfig controls the on-disk notification audit log.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HTTPConfig controls the read-only observation API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	// RateLimitRPS is requests per second per client IP; Burst allows spikes.
	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// MetricsConfig controls the Prometheus-format metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:      "auto",
			DataDir: "./data",
		},
		Alarm: AlarmConfig{
			RenderIntervalMs: 5_000,
			IdleWaitMs:       1_000,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		HTTP: HTTPConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8080,
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// RenderInterval returns the worker cadence as a duration.
func (c *Config) RenderInterval() time.Duration {
	return time.Duration(c.Alarm.RenderIntervalMs) * time.Millisecond
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error,
// making it easy to run alarmd with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	ALARMD_DATA_DIR   — sets node.data_dir
//	ALARMD_HTTP_PORT  — sets http.port
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ALARMD_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("ALARMD_HTTP_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.HTTP.Port = p
		}
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Node.DataDir == "" {
		return errors.New("node.data_dir must not be empty")
	}
	if c.Alarm.RenderIntervalMs < 1 {
		return errors.New("alarm.render_interval_ms must be at least 1")
	}
	if c.Alarm.IdleWaitMs < 1 {
		return errors.New("alarm.idle_wait_ms must be at least 1")
	}
	if c.HTTP.Enabled {
		if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
			return errors.New("http.port must be between 1 and 65535")
		}
		if c.HTTP.RateLimitRPS < 1 {
			return errors.New("http.rate_limit_rps must be at least 1")
		}
		if c.HTTP.RateLimitBurst < c.HTTP.RateLimitRPS {
			return errors.New("http.rate_limit_burst must be >= http.rate_limit_rps")
		}
	}
	return nil
}
