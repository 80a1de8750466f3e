package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModelID)
	assert.Equal(t, 20*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, 10, cfg.DailyAILimit)
	assert.Equal(t, 100, cfg.SessionCost)
	assert.Equal(t, 15, cfg.SessionMinutes)
	assert.Equal(t, 6*time.Hour, cfg.MatchInterval)
	assert.False(t, cfg.RedisTLS)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_COST_POINTS", "250")
	t.Setenv("MATCH_INTERVAL", "30m")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250, cfg.SessionCost)
	assert.Equal(t, 30*time.Minute, cfg.MatchInterval)
	assert.True(t, cfg.RedisTLS)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SESSION_MINUTES", "soon")
	t.Setenv("REMINDER_INTERVAL", "every hour")

	cfg := Load()

	assert.Equal(t, 15, cfg.SessionMinutes)
	assert.Equal(t, time.Hour, cfg.ReminderInterval)
}
