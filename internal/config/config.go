package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every externally supplied option. Only recognized
// options exist; no core behavior depends on environment beyond these.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelRaw string `env:"LOG_LEVEL" envDefault:"info"`

	// Model provider selection
	LLMProvider     string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	ModelName       string `env:"MODEL_NAME"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`

	// Turn policy
	MaxAttempts  int           `env:"TRANSPORT_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase  time.Duration `env:"TRANSPORT_BACKOFF_BASE" envDefault:"500ms"`
	HistoryLimit int           `env:"HISTORY_LIMIT" envDefault:"12"`

	// Content and persistence
	ScenarioDir   string `env:"SCENARIO_DIR" envDefault:"./data/scenarios"`
	RedisAddr     string `env:"REDIS_ADDR"`     // empty disables persistence
	ResumeSession string `env:"RESUME_SESSION"` // session id to resume; requires REDIS_ADDR

	LogLevel slog.Level `env:"-"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelRaw)
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("TRANSPORT_MAX_ATTEMPTS must be at least 1")
	}
	return &cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
