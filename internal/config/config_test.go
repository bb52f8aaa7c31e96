package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/capsules")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{"SERVER_PORT", "JWT_EXPIRY", "LOCAL_CACHE_PATH", "UNLOCK_POLL_INTERVAL", "NOTIFY_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "capsules.db", cfg.LocalCachePath)
	assert.Equal(t, 30*time.Second, cfg.UnlockPollInterval)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOCAL_CACHE_PATH", "/var/lib/capsules/cache.db")
	t.Setenv("UNLOCK_POLL_INTERVAL", "1m")
	t.Setenv("NOTIFY_TIMEOUT", "250ms")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "/var/lib/capsules/cache.db", cfg.LocalCachePath)
	assert.Equal(t, time.Minute, cfg.UnlockPollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.NotifyTimeout)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := LoadConfig()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadConfig_InvalidDurations(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"JWT_EXPIRY", "forever"},
		{"UNLOCK_POLL_INTERVAL", "0s"},
		{"NOTIFY_TIMEOUT", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
