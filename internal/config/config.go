// Package config provides the runtime defaults, environment loading and
// sanitization for the chathub service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `envconfig:"BURST"`
	RefillInterval time.Duration `envconfig:"REFILL_INTERVAL"`
}

// Config holds the server configuration settings.
type Config struct {
	Env             string          `envconfig:"ENV"`
	LogLevel        string          `envconfig:"LOG_LEVEL"`
	Port            string          `envconfig:"SERVER_PORT"`
	AllowedOrigins  []string        `envconfig:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64           `envconfig:"MAX_MESSAGE_SIZE"`
	OutboundBacklog int             `envconfig:"OUTBOUND_BACKLOG"`
	WriteWait       time.Duration   `envconfig:"WRITE_WAIT"`
	PongWait        time.Duration   `envconfig:"PONG_WAIT"`
	DatabaseURL     string          `envconfig:"DATABASE_URL"`
	SQLitePath      string          `envconfig:"SQLITE_PATH"`
	ShutdownTimeout time.Duration   `envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `envconfig:"RATE_LIMIT"`
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 64 * 1024
	defaultOutboundBacklog = 100
	defaultSQLitePath      = "./data/chathub.db"
)

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Env:      "development",
		LogLevel: "info",
		Port:     defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		OutboundBacklog: defaultOutboundBacklog,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		SQLitePath:      defaultSQLitePath,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
	}
}

// Load reads a .env file when one is present, overlays the process
// environment on top of the defaults and sanitizes the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return Sanitize(cfg), nil
}

// Sanitize replaces empty or non-positive values with their defaults.
func Sanitize(cfg Config) Config {
	def := Default()

	if cfg.Env == "" {
		cfg.Env = def.Env
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.OutboundBacklog <= 0 {
		cfg.OutboundBacklog = def.OutboundBacklog
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = def.SQLitePath
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}
