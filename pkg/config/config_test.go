package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJWTSecret = "test-secret-key-minimum-32-characters-long"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/agrinova")
	t.Setenv("JWT_SECRET", validJWTSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 60*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, float64(100), cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.SigningKey)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://app.agrinova.example, https://admin.agrinova.example")
	t.Setenv("RATE_LIMIT_RPS", "10")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://app.agrinova.example", "https://admin.agrinova.example"}, cfg.AllowedOrigins)
	assert.Equal(t, float64(10), cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.ReportCacheTTL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL: "postgres://localhost:5432/agrinova",
			JWTSecret:   validJWTSecret,
		}
	}

	t.Run("missing database url", func(t *testing.T) {
		cfg := base()
		cfg.DatabaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("short jwt secret", func(t *testing.T) {
		cfg := base()
		cfg.JWTSecret = "too-short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("signing key must be 32 hex bytes", func(t *testing.T) {
		cfg := base()
		cfg.SigningKey = "abcdef"
		assert.Error(t, cfg.Validate())
	})

	t.Run("0x-prefixed signing key accepted", func(t *testing.T) {
		cfg := base()
		cfg.SigningKey = "0x4c0883a69102937d6231471b5dbb6204fe512961708279feb1be6ae5538da033"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("empty signing key is simulated mode", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}
