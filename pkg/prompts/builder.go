// Package prompts builds the message array sent to the model each
// turn: system prompt (role, call protocol, scenario premise, current
// state), a bounded window of prior conversation, and the player's
// input.
package prompts

import (
	"fmt"
	"strings"

	"github.com/tavernkeep/gamemaster/pkg/chat"
	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/schema"
	"github.com/tavernkeep/gamemaster/pkg/state"
)

// DefaultHistoryLimit bounds the conversation window to cap request
// size. Measured in messages, not turns; one turn contributes two.
const DefaultHistoryLimit = 12

// Builder constructs chat messages for one model request using a
// fluent interface.
type Builder struct {
	scen         *scenario.Scenario
	registry     *schema.Registry
	snapshot     *state.GameState
	history      []chat.ChatMessage
	historyLimit int
	userMessage  string
}

// New creates a prompt builder with default settings.
func New() *Builder {
	return &Builder{historyLimit: DefaultHistoryLimit}
}

// WithScenario sets the adventure premise.
func (b *Builder) WithScenario(s *scenario.Scenario) *Builder {
	b.scen = s
	return b
}

// WithRegistry sets the function catalog advertised to the model.
func (b *Builder) WithRegistry(r *schema.Registry) *Builder {
	b.registry = r
	return b
}

// WithSnapshot sets the game state included in the system prompt.
func (b *Builder) WithSnapshot(gs *state.GameState) *Builder {
	b.snapshot = gs
	return b
}

// WithHistory sets the prior conversation, oldest first.
func (b *Builder) WithHistory(messages []chat.ChatMessage) *Builder {
	b.history = messages
	return b
}

// WithHistoryLimit caps the conversation window, in messages.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	if limit > 0 {
		b.historyLimit = limit
	}
	return b
}

// WithUserMessage sets the player's input for this turn.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// Build constructs the final message array.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if b.scen == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if b.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if b.snapshot == nil {
		return nil, fmt.Errorf("state snapshot is required")
	}
	if strings.TrimSpace(b.userMessage) == "" {
		return nil, fmt.Errorf("user message is required")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, BaseSystemPrompt, b.registry.PromptDoc())
	sb.WriteString("\n\nScenario: " + b.scen.Name + "\n")
	sb.WriteString(b.scen.Premise)

	statePrompt, err := StatePrompt(b.snapshot)
	if err != nil {
		return nil, fmt.Errorf("error building state prompt: %w", err)
	}
	sb.WriteString("\n\n" + statePrompt)

	messages := make([]chat.ChatMessage, 0, len(b.history)+2)
	messages = append(messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: sb.String(),
	})

	history := b.history
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}
	messages = append(messages, history...)

	messages = append(messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: b.userMessage,
	})
	return messages, nil
}
