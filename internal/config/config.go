// Package config loads practicedesk settings.
//
// Sources, highest priority first:
//  1. an explicit --config path;
//  2. CONFIG_PATH;
//  3. ./practicedesk.yaml;
//  4. environment only.
//
// Environment variables always overlay the file. A .env file in the working
// directory is loaded into the environment first when present.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "practicedesk.yaml"

type Config struct {
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
	Audit     AuditConfig     `yaml:"audit"`
}

// APIConfig locates the practice platform.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"PRACTICEDESK_API_URL" env-default:"http://localhost:3000/api"`
	Timeout time.Duration `yaml:"timeout"  env:"PRACTICEDESK_API_TIMEOUT" env-default:"30s"`
}

// SessionConfig selects where credentials are persisted.
type SessionConfig struct {
	Backend     string        `yaml:"backend"      env:"PRACTICEDESK_SESSION_BACKEND" env-default:"file"`
	File        string        `yaml:"file"         env:"PRACTICEDESK_SESSION_FILE"`
	Passphrase  string        `yaml:"passphrase"   env:"PRACTICEDESK_SESSION_PASSPHRASE"`
	RedisURL    string        `yaml:"redis_url"    env:"PRACTICEDESK_REDIS_URL"`
	RedisPrefix string        `yaml:"redis_prefix" env:"PRACTICEDESK_REDIS_PREFIX" env-default:"practicedesk:session"`
	RedisTTL    time.Duration `yaml:"redis_ttl"    env:"PRACTICEDESK_REDIS_TTL" env-default:"720h"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"  env:"PRACTICEDESK_LOG_LEVEL" env-default:"warn"`
	Format string `yaml:"format" env:"PRACTICEDESK_LOG_FORMAT" env-default:"console"`
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled"     env:"PRACTICEDESK_TELEMETRY_ENABLED" env-default:"false"`
	Endpoint   string  `yaml:"endpoint"    env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRate float64 `yaml:"sample_rate" env:"PRACTICEDESK_TELEMETRY_SAMPLE_RATE" env-default:"1.0"`
}

// ServerConfig configures the local session proxy.
type ServerConfig struct {
	Address         string        `yaml:"address"          env:"PRACTICEDESK_SERVER_ADDRESS" env-default:"127.0.0.1:8787"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PRACTICEDESK_SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// AuditConfig enables the local session audit trail. Empty Dir disables it.
type AuditConfig struct {
	Dir string `yaml:"dir" env:"PRACTICEDESK_AUDIT_DIR" env-description:"directory for daily session audit logs"`
}

// Load reads the configuration from the first available source.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
		}
	} else if _, err := os.Stat(DefaultFile); err == nil {
		path = DefaultFile
	}

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values cleanenv cannot express.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	switch c.Session.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("session.backend must be memory, file or redis, got %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Session.RedisURL == "" {
		return fmt.Errorf("session.redis_url is required for the redis backend")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1], got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// Usage describes every environment variable the configuration reads.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
