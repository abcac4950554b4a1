package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 12, cfg.HistoryLimit)
	assert.Equal(t, "./data/scenarios", cfg.ScenarioDir)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("MODEL_NAME", "gpt-4o")
	t.Setenv("TRANSPORT_MAX_ATTEMPTS", "5")
	t.Setenv("TRANSPORT_BACKOFF_BASE", "2s")
	t.Setenv("HISTORY_LIMIT", "20")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "gpt-4o", cfg.ModelName)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.BackoffBase)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_RejectsZeroAttempts(t *testing.T) {
	t.Setenv("TRANSPORT_MAX_ATTEMPTS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), "parseLogLevel(%q)", tt.in)
	}
}
