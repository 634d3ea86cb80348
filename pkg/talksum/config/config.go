// Package config loads the bot configuration from YAML, .env and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talksum/talksum/pkg/talksum/bot"
	"github.com/talksum/talksum/pkg/talksum/gateway"
)

// DefaultPath is where Load looks when no config path is given.
const DefaultPath = "./config.yaml"

// Config holds all bot configuration.
type Config struct {
	// Name is the bot display name.
	Name string `yaml:"name"`

	// Nextcloud configures the server connection.
	Nextcloud NextcloudConfig `yaml:"nextcloud"`

	// Bot configures trigger and worker pool.
	Bot bot.Config `yaml:"bot"`

	// Gateway configures the webhook HTTP server.
	Gateway gateway.Config `yaml:"gateway"`

	// Database configures persistence.
	Database DatabaseConfig `yaml:"database"`

	// Timezone names the timezone used for all time references in
	// replies (e.g. "Europe/Berlin"). Empty means server-local.
	Timezone string `yaml:"timezone"`

	// Logging configures the slog handler.
	Logging LoggingConfig `yaml:"logging"`
}

// NextcloudConfig holds the server connection settings.
type NextcloudConfig struct {
	// URL is the Nextcloud base URL.
	URL string `yaml:"url"`

	// AppID identifies the bot app to the text-processing API.
	AppID string `yaml:"app_id"`

	// Secret is the shared bot secret. Resolved via keyring → env →
	// config value; see ResolveSecret.
	Secret string `yaml:"secret"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds the slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name: "TalkSum",
		Nextcloud: NextcloudConfig{
			AppID: "talksum",
		},
		Bot: bot.Config{
			Trigger:   "@summary",
			Workers:   10,
			QueueSize: 256,
		},
		Gateway: gateway.Config{
			Address: ":9032",
		},
		Database: DatabaseConfig{
			Path: "./data/talksum.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file (if present), then applies .env and
// environment overrides. A missing file is not an error: defaults plus
// environment are a complete configuration.
func Load(path string) (*Config, error) {
	// Best-effort .env load, matching the teacher repos' startup.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fine, env-only configuration.
	default:
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Nextcloud.URL == "" {
		return nil, fmt.Errorf("nextcloud.url is required (config file or NEXTCLOUD_URL)")
	}
	return cfg, nil
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NEXTCLOUD_URL"); v != "" {
		cfg.Nextcloud.URL = v
	}
	if v := os.Getenv("APP_ID"); v != "" {
		cfg.Nextcloud.AppID = v
	}
	if v := os.Getenv("TALKSUM_TRIGGER"); v != "" {
		cfg.Bot.Trigger = v
	}
	if v := os.Getenv("TALKSUM_ADDRESS"); v != "" {
		cfg.Gateway.Address = v
	}
	if v := os.Getenv("TALKSUM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TALKSUM_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("TALKSUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TALKSUM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Bot.Workers = n
		}
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %q: %w", path, err)
	}
	return nil
}
