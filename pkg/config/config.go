// Package config provides environment-based configuration for the pipeline console.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIBase is the orchestrator address used when none is configured.
const DefaultAPIBase = "http://localhost:8000"

// Config holds all configuration for the web console.
type Config struct {
	// Orchestrator API
	APIBase      string
	APIKeyHeader string

	// Server configuration
	Addr string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Session cookie configuration
	Session SessionConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Live log viewer
	LiveLog LiveLogConfig
}

// SessionConfig holds the secrets used to protect the session cookie.
type SessionConfig struct {
	// Secret is the HMAC key material for signing session cookies.
	Secret string
	// AgeIdentity is an age X25519 identity (AGE-SECRET-KEY-1...) used to
	// seal the API key inside the cookie. Empty means generate one at startup.
	AgeIdentity string
	MaxAge      time.Duration
	// Secure marks the cookie for HTTPS only.
	Secure bool
}

// LiveLogConfig holds live log viewer defaults.
type LiveLogConfig struct {
	BufferLines  int
	DefaultTopic string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := LoadWithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("API_BASE is required")
	}
	if !strings.HasPrefix(c.APIBase, "http://") && !strings.HasPrefix(c.APIBase, "https://") {
		return fmt.Errorf("API_BASE must be an http(s) URL, got %q", c.APIBase)
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters")
	}
	if c.LiveLog.BufferLines <= 0 {
		return fmt.Errorf("LOG_BUFFER_LINES must be positive")
	}
	return nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate, useful for testing.
func LoadWithDefaults() *Config {
	apiBase := getEnv("API_BASE", getEnv("VITE_API_BASE", DefaultAPIBase))

	return &Config{
		APIBase:         strings.TrimRight(apiBase, "/"),
		APIKeyHeader:    getEnv("API_KEY_HEADER", "X-API-Key"),
		Addr:            getEnv("WEB_ADDR", ":8090"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Session: SessionConfig{
			Secret:      getEnv("SESSION_SECRET", "development-session-secret-min-32-chars"),
			AgeIdentity: getEnv("SESSION_AGE_IDENTITY", ""),
			MaxAge:      getDurationEnv("SESSION_MAX_AGE", 7*24*time.Hour),
			Secure:      getBoolEnv("COOKIE_SECURE", false),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LiveLog: LiveLogConfig{
			BufferLines:  getIntEnv("LOG_BUFFER_LINES", 500),
			DefaultTopic: getEnv("DEFAULT_LOG_TOPIC", "pipeline_events"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
