package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tavernkeep/gamemaster/internal/config"
	"github.com/tavernkeep/gamemaster/internal/logger"
	"github.com/tavernkeep/gamemaster/internal/services"
	redisstorage "github.com/tavernkeep/gamemaster/internal/storage"
	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/schema"
	"github.com/tavernkeep/gamemaster/pkg/state"
	"github.com/tavernkeep/gamemaster/pkg/storage"
	"github.com/tavernkeep/gamemaster/pkg/turn"
)

func main() {
	_ = godotenv.Load() // optional .env, environment wins

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg)

	registry, err := schema.Load()
	if err != nil {
		log.Error("failed to load function catalog", "error", err)
		os.Exit(1)
	}

	llm, err := buildLLMService(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := llm.InitModel(initCtx, cfg.ModelName); err != nil {
		log.Error("failed to initialize model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	var store storage.Storage
	if cfg.RedisAddr != "" {
		redisStore := redisstorage.NewRedisStorage(cfg.RedisAddr, log)
		if err := redisStore.Ping(initCtx); err != nil {
			log.Error("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		store = redisStore
		defer func() { _ = store.Close() }()
	}

	scen, err := chooseScenario(cfg.ScenarioDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	gameState, records, resumed, err := resumeSession(initCtx, cfg, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	orch := turn.NewOrchestrator(scen, registry, state.NewStore(gameState, log), llm, log, turn.Options{
		HistoryLimit: cfg.HistoryLimit,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  cfg.BackoffBase,
	})
	if store != nil {
		orch.WithRecorder(store)
	}

	var opening string
	if resumed {
		orch.WithRecords(records)
		log.Info("resumed session", "session_id", orch.SessionID().String(), "turns", len(records))
		opening = "The story picks up where it left off."
	} else {
		opening, err = orch.StartSession(context.Background())
		if err != nil {
			log.Error("failed to start session", "error", err)
			os.Exit(1)
		}
	}

	ui := newGameUI(orch, scen, opening)
	if _, err := tea.NewProgram(ui, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "UI error: %v\n", err)
		os.Exit(1)
	}
}

func buildLLMService(cfg *config.Config, log *slog.Logger) (services.LLMService, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when using the anthropic provider")
		}
		log.Info("using Anthropic provider", "model", cfg.ModelName)
		return services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when using the openai provider")
		}
		log.Info("using OpenAI-compatible provider", "model", cfg.ModelName, "base_url", cfg.OpenAIBaseURL)
		return services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.ModelName, cfg.OpenAIBaseURL), nil
	case "mock":
		log.Info("using mock provider")
		return services.NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("invalid LLM provider %q (supported: anthropic, openai, mock)", cfg.LLMProvider)
	}
}

// resumeSession loads a saved session when RESUME_SESSION is set. The
// returned state is nil for a fresh session.
func resumeSession(ctx context.Context, cfg *config.Config, store storage.Storage) (*state.GameState, []turn.TurnRecord, bool, error) {
	if cfg.ResumeSession == "" {
		return nil, nil, false, nil
	}
	if store == nil {
		return nil, nil, false, fmt.Errorf("RESUME_SESSION requires REDIS_ADDR")
	}
	id, err := uuid.Parse(cfg.ResumeSession)
	if err != nil {
		return nil, nil, false, fmt.Errorf("invalid RESUME_SESSION %q: %w", cfg.ResumeSession, err)
	}
	gs, err := store.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if gs == nil {
		return nil, nil, false, fmt.Errorf("no saved session %s", id)
	}
	records, err := store.LoadTurns(ctx, id)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load turn log for %s: %w", id, err)
	}
	return gs, records, true, nil
}

// chooseScenario lists scenario files and prompts for a selection,
// like picking a cartridge.
func chooseScenario(dir string) (*scenario.Scenario, error) {
	found, err := scenario.List(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios in %s: %w", dir, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available scenarios:")
	for i, name := range names {
		fmt.Printf("  %d - %s\n", i+1, name)
	}
	fmt.Print("\nSelect a scenario by number: ")

	var choice int
	if _, err := fmt.Scanf("%d", &choice); err != nil || choice < 1 || choice > len(names) {
		return nil, fmt.Errorf("invalid selection")
	}
	return scenario.Load(found[names[choice-1]])
}
