package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	JWTExpiry   time.Duration

	// LocalCachePath is the SQLite file backing the local capsule cache.
	LocalCachePath string
	// UnlockPollInterval is how often due unlock notifications are collected.
	UnlockPollInterval time.Duration
	// NotifyTimeout bounds a single notification scheduling call.
	NotifyTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	jwtExpiry, err := getDuration("JWT_EXPIRY", "24h")
	if err != nil {
		return nil, err
	}
	pollInterval, err := getDuration("UNLOCK_POLL_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := getDuration("NOTIFY_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiry:          jwtExpiry,
		LocalCachePath:     getEnv("LOCAL_CACHE_PATH", "capsules.db"),
		UnlockPollInterval: pollInterval,
		NotifyTimeout:      notifyTimeout,
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration parses a positive duration from key, falling back to defaultValue.
func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
