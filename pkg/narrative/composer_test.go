package narrative

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tavernkeep/gamemaster/pkg/call"
)

func applied(function string, params map[string]any) call.Candidate {
	c := call.New(function, params, call.Span{})
	c.Applied()
	return c
}

func rejected(function string, reason call.Reason) call.Candidate {
	c := call.New(function, nil, call.Span{})
	c.Reject(reason, "test")
	return c
}

func TestCompose_ProsePassesThrough(t *testing.T) {
	out := Compose("  The gate swings open.\n", []call.Candidate{
		applied("set_flag", map[string]any{"key": "gate_open", "value": "true"}),
	})
	assert.Equal(t, "The gate swings open.", out)
}

func TestCompose_ProseWinsOverRejections(t *testing.T) {
	// Rejections never leak into what the player reads.
	out := Compose("Nothing happens.", []call.Candidate{
		rejected("summon_dragon", call.ReasonUnknownFunction),
	})
	assert.Equal(t, "Nothing happens.", out)
	assert.NotContains(t, out, "unknown")
}

func TestCompose_ProselessAppliedCallsAreSpelledOut(t *testing.T) {
	out := Compose("", []call.Candidate{
		applied("create_character", map[string]any{"name": "Keeper Malen"}),
		applied("add_item", map[string]any{"character": "Keeper Malen", "item": "brass key"}),
	})
	assert.Contains(t, out, "Keeper Malen enters the story.")
	assert.Contains(t, out, "now carries brass key.")
}

func TestCompose_ProselessBookkeepingStaysSilent(t *testing.T) {
	out := Compose("", []call.Candidate{
		applied("set_flag", map[string]any{"key": "gate_open", "value": "true"}),
	})
	assert.Equal(t, "", out)
}

func TestCompose_ProselessAllRejected(t *testing.T) {
	out := Compose("", []call.Candidate{
		rejected("add_item", call.ReasonInvalidReference),
		rejected("summon_dragon", call.ReasonUnknownFunction),
	})
	assert.Equal(t, "The moment passes, and nothing comes of it.", out)
}

func TestCompose_EmptyTurn(t *testing.T) {
	assert.Equal(t, "", Compose("", nil))
}

func TestDescribe_PerFunction(t *testing.T) {
	tests := []struct {
		name string
		c    call.Candidate
		want string
	}{
		{
			"transfer",
			applied("transfer_item", map[string]any{"item": "brass_key", "to": "rin"}),
			"The brass key changes hands to Rin.",
		},
		{
			"remove",
			applied("remove_item", map[string]any{"item": "lantern"}),
			"The lantern is gone.",
		},
		{
			"deactivate",
			applied("deactivate_character", map[string]any{"character": "keeper_malen"}),
			"Keeper Malen departs.",
		},
		{
			"set_attribute is silent",
			applied("set_attribute", map[string]any{"character": "rin", "attribute": "strength", "value": 12}),
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.c))
		})
	}
}
