package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string

	// JWT configuration
	JWTSecret string

	// Ledger anchoring configuration.
	// SigningKey is a hex-encoded P-256 private scalar. Empty means the
	// ledger runs in simulated mode: entries get a commitment hash but no
	// signature.
	SigningKey string

	// Kafka configuration. Empty means event publishing is disabled.
	KafkaBrokers []string

	// ReportCacheTTL bounds how stale a cached financial report may be.
	ReportCacheTTL time.Duration

	// CORS origins allowed to call the API
	AllowedOrigins []string

	// Per-IP request budget
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load loads configuration from the environment, reading .env first if present
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		SigningKey:     getEnv("LEDGER_SIGNING_KEY", ""),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		ReportCacheTTL: time.Duration(getEnvAsInt("REPORT_CACHE_TTL_SECONDS", 60)) * time.Second,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		RateLimitRPS:   float64(getEnvAsInt("RATE_LIMIT_RPS", 100)),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	// Signing without a key is a supported degraded mode, but a configured
	// key has to be a plausible P-256 scalar (32 bytes, hex).
	if c.SigningKey != "" {
		key := strings.TrimPrefix(c.SigningKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("LEDGER_SIGNING_KEY must be 32 hex-encoded bytes")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// splitList splits a comma-separated environment value into its parts
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
