package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFallsBackToDefaults(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{
		MaxMessageSize:  -1,
		OutboundBacklog: 0,
		RateLimit:       RateLimitConfig{Burst: -3},
	})

	def := Default()
	req.Equal(def.Port, cfg.Port)
	req.Equal(def.MaxMessageSize, cfg.MaxMessageSize)
	req.Equal(100, cfg.OutboundBacklog)
	req.Equal(def.RateLimit, cfg.RateLimit)
	req.Equal(def.SQLitePath, cfg.SQLitePath)
	req.Equal("info", cfg.LogLevel)
}

func TestSanitizeKeepsExplicitValues(t *testing.T) {
	req := require.New(t)

	cfg := Sanitize(Config{
		Port:            "9090",
		LogLevel:        " DEBUG ",
		AllowedOrigins:  []string{" http://a.test ", "", "*"},
		OutboundBacklog: 7,
		PongWait:        10 * time.Second,
	})

	req.Equal(":9090", cfg.Port)
	req.Equal("debug", cfg.LogLevel)
	req.Equal([]string{"http://a.test", "*"}, cfg.AllowedOrigins)
	req.Equal(7, cfg.OutboundBacklog)
	req.Equal(10*time.Second, cfg.PongWait)
	req.True(cfg.IsDevelopment(), "empty ENV falls back to development")
}

func TestLoadReadsEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("SERVER_PORT", ":7000")
	t.Setenv("ALLOWED_ORIGINS", "http://one.test,http://two.test")
	t.Setenv("OUTBOUND_BACKLOG", "5")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("DATABASE_URL", "postgres://localhost/chat")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(":7000", cfg.Port)
	req.Equal([]string{"http://one.test", "http://two.test"}, cfg.AllowedOrigins)
	req.Equal(5, cfg.OutboundBacklog)
	req.Equal(RateLimitConfig{Burst: 3, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	req.Equal("postgres://localhost/chat", cfg.DatabaseURL)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("OUTBOUND_BACKLOG", "lots")

	_, err := Load()
	require.Error(t, err)
}
