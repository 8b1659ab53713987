// Package config loads webot configuration from YAML with environment
// overrides for secrets and deployment knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"webot/internal/browser"
	"webot/internal/portal"

	"gopkg.in/yaml.v3"
)

// Config holds all webot configuration.
type Config struct {
	// Telegram front-end
	Telegram TelegramConfig `yaml:"telegram"`

	// Headless browser
	Browser browser.Config `yaml:"browser"`

	// Portal timings
	Portal portal.Config `yaml:"portal"`

	// Persistence
	Data DataConfig `yaml:"data"`

	// Scheduled jobs
	Cron CronConfig `yaml:"cron"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TelegramConfig configures the bot front-end.
type TelegramConfig struct {
	Token              string `yaml:"token"`
	Debug              bool   `yaml:"debug"`
	LaunchMaxAttempts  int    `yaml:"launch_max_attempts"`
	LaunchRetryMs      int    `yaml:"launch_retry_ms"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// DataConfig configures where state lives on disk.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	DatabasePath string `yaml:"database_path"`
}

// CronConfig configures the scheduled sweeps.
type CronConfig struct {
	Enabled      bool   `yaml:"enabled"`
	AlertSpec    string `yaml:"alert_spec"`
	DigestSpec   string `yaml:"digest_spec"`
	DigestHourTZ string `yaml:"digest_tz"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			LaunchMaxAttempts:  5,
			LaunchRetryMs:      15000,
			RateLimitPerMinute: 6,
		},
		Browser: browser.DefaultConfig(),
		Portal:  portal.DefaultConfig(),
		Data: DataConfig{
			Dir:          "data",
			DatabasePath: "data/webot.db",
		},
		Cron: CronConfig{
			Enabled:      true,
			AlertSpec:    "0 */4 * * *",
			DigestSpec:   "30 21 * * *",
			DigestHourTZ: "Africa/Cairo",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML config at path (missing file is fine, defaults
// apply) and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides maps deployment environment variables onto the
// config. Env always wins over the file; tokens should never live in the
// file at all.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("WEBOT_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("WEBOT_DB"); v != "" {
		c.Data.DatabasePath = v
	}
	if v := os.Getenv("WEBOT_CHROME_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv("WE_HEADLESS"); v != "" {
		// WE_HEADLESS=0 runs a visible browser for local debugging
		c.Browser.Headless = v != "0"
	}
	if v := os.Getenv("WEBOT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	if v := os.Getenv("BOT_LAUNCH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Telegram.LaunchMaxAttempts = n
		}
	}
	if v := os.Getenv("BOT_LAUNCH_RETRY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Telegram.LaunchRetryMs = n
		}
	}
}

// Validate checks the parts that cannot default.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token missing: set BOT_TOKEN or telegram.token")
	}
	if c.Data.DatabasePath == "" {
		return fmt.Errorf("data.database_path must not be empty")
	}
	return nil
}
