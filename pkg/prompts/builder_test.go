package prompts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkeep/gamemaster/pkg/chat"
	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/schema"
	"github.com/tavernkeep/gamemaster/pkg/state"
)

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:    "The Harbor",
		Premise: "A fog-bound harbor town where bells ring on their own.",
		Opening: "Fog rolls in.",
	}
}

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	registry, err := schema.Load()
	require.NoError(t, err)
	return New().
		WithScenario(testScenario()).
		WithRegistry(registry).
		WithSnapshot(state.NewGameState()).
		WithUserMessage("I step onto the pier.")
}

func TestBuilder_Build(t *testing.T) {
	messages, err := testBuilder(t).Build()
	require.NoError(t, err)
	require.Len(t, messages, 2)

	system := messages[0]
	assert.Equal(t, chat.ChatRoleSystem, system.Role)
	assert.Contains(t, system.Content, "game master")
	assert.Contains(t, system.Content, "```call")
	assert.Contains(t, system.Content, "create_character(name: string, attributes: table?)")
	assert.Contains(t, system.Content, "A fog-bound harbor town")
	assert.Contains(t, system.Content, "Current game state:")

	last := messages[len(messages)-1]
	assert.Equal(t, chat.ChatRoleUser, last.Role)
	assert.Equal(t, "I step onto the pier.", last.Content)
}

func TestBuilder_Build_MissingPieces(t *testing.T) {
	registry, err := schema.Load()
	require.NoError(t, err)

	tests := []struct {
		name string
		b    *Builder
	}{
		{"no scenario", New().WithRegistry(registry).WithSnapshot(state.NewGameState()).WithUserMessage("x")},
		{"no registry", New().WithScenario(testScenario()).WithSnapshot(state.NewGameState()).WithUserMessage("x")},
		{"no snapshot", New().WithScenario(testScenario()).WithRegistry(registry).WithUserMessage("x")},
		{"blank input", testBuilder(t).WithUserMessage("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			assert.Error(t, err)
		})
	}
}

func TestBuilder_HistoryWindow(t *testing.T) {
	var history []chat.ChatMessage
	for i := 0; i < 10; i++ {
		history = append(history,
			chat.ChatMessage{Role: chat.ChatRoleUser, Content: fmt.Sprintf("input %d", i)},
			chat.ChatMessage{Role: chat.ChatRoleAgent, Content: fmt.Sprintf("reply %d", i)},
		)
	}

	messages, err := testBuilder(t).
		WithHistory(history).
		WithHistoryLimit(4).
		Build()
	require.NoError(t, err)

	// system + 4 windowed + user input
	require.Len(t, messages, 6)
	assert.Equal(t, "input 8", messages[1].Content)
	assert.Equal(t, "reply 9", messages[4].Content)
}

func TestBuilder_ShortHistoryKeptWhole(t *testing.T) {
	history := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "hello"},
		{Role: chat.ChatRoleAgent, Content: "the fog answers"},
	}
	messages, err := testBuilder(t).WithHistory(history).Build()
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestStatePrompt_IncludesEntities(t *testing.T) {
	gs := state.NewGameState()
	gs.Characters["rin"] = &state.Character{
		ID: "rin", Name: "Rin",
		Attributes: map[string]int{"strength": 14},
		Inventory:  []string{"sword"},
		Active:     true,
	}
	gs.Items["sword"] = &state.ItemInstance{ID: "sword", Type: "Sword", Owner: "rin"}
	gs.Flags["gate_open"] = "true"

	out, err := StatePrompt(gs)
	require.NoError(t, err)
	assert.Contains(t, out, "```json")
	assert.Contains(t, out, `"Rin"`)
	assert.Contains(t, out, `"gate_open":"true"`)
	assert.NotContains(t, out, "created_at", "internal fields stay out of the prompt")
}
