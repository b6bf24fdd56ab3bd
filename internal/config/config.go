// Package config reads host configuration from IDREG_* environment
// variables. CLI flags override what is read here.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the host configuration.
type Config struct {
	Backend     string `env:"IDREG_BACKEND"      envDefault:"sqlite"`
	DBPath      string `env:"IDREG_DB"           envDefault:"idreg.db"`
	RedisURL    string `env:"IDREG_REDIS_URL"    envDefault:"redis://localhost:6379/0"`
	RedisPrefix string `env:"IDREG_REDIS_PREFIX" envDefault:"idreg:"`
	PolicyPath  string `env:"IDREG_POLICY"`

	// MetricsAddr enables the Prometheus endpoint in serve when set.
	MetricsAddr     string        `env:"IDREG_METRICS_ADDR"`
	ShutdownTimeout time.Duration `env:"IDREG_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel        slog.Level    `env:"IDREG_LOG_LEVEL"        envDefault:"INFO"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv parses and validates a Config.
func FromEnv() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks fields that env tags cannot express.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("config: sqlite backend needs a database path")
		}
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: redis backend needs a URL")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want %s, %s or %s)", c.Backend, BackendSQLite, BackendMemory, BackendRedis)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: negative shutdown timeout %s", c.ShutdownTimeout)
	}
	return nil
}
