package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkeep/gamemaster/pkg/call"
)

const sampleResponse = "The stranger pulls back her hood.\n\n" +
	"```call\n" +
	`{"function": "create_character", "params": {"name": "Rin"}}` + "\n" +
	"```\n\n" +
	"She offers you the blade she carried.\n\n" +
	"```call\n" +
	`{"function": "add_item", "params": {"character": "Rin", "item": "sword"}}` + "\n" +
	"```\n"

func TestParse_NarrativeOnly(t *testing.T) {
	text := "You look around. The fog is thick and nothing moves."
	narrative, candidates := Parse(text)
	assert.Equal(t, text, narrative)
	assert.Empty(t, candidates)
}

func TestParse_ExtractsCallsInOrder(t *testing.T) {
	narrative, candidates := Parse(sampleResponse)

	assert.Contains(t, narrative, "The stranger pulls back her hood.")
	assert.Contains(t, narrative, "She offers you the blade she carried.")
	assert.NotContains(t, narrative, "function")
	assert.NotContains(t, narrative, "```")

	require.Len(t, candidates, 2)
	assert.Equal(t, "create_character", candidates[0].Function)
	assert.Equal(t, "add_item", candidates[1].Function)
	assert.Equal(t, call.StatusPending, candidates[0].Status)
	assert.Equal(t, "Rin", candidates[0].Params["name"])
	assert.Equal(t, "sword", candidates[1].Params["item"])
	assert.Less(t, candidates[0].Span.Start, candidates[1].Span.Start)
}

func TestParse_Idempotent(t *testing.T) {
	n1, c1 := Parse(sampleResponse)
	n2, c2 := Parse(sampleResponse)
	assert.Equal(t, n1, n2)
	assert.Equal(t, c1, c2)
}

func TestParse_MalformedPayloadBecomesRejectedCandidate(t *testing.T) {
	text := "The door creaks open.\n\n" +
		"```call\n" +
		`{"function": "add_item", "params": {` + "\n" +
		"```\n\n" +
		"Dust settles."

	narrative, candidates := Parse(text)
	assert.Contains(t, narrative, "The door creaks open.")
	assert.Contains(t, narrative, "Dust settles.")

	require.Len(t, candidates, 1)
	assert.Equal(t, call.StatusRejected, candidates[0].Status)
	assert.Equal(t, call.ReasonMalformed, candidates[0].Reason)
}

func TestParse_MissingFunctionNameIsMalformed(t *testing.T) {
	text := "```call\n" + `{"params": {"name": "Rin"}}` + "\n```"
	_, candidates := Parse(text)
	require.Len(t, candidates, 1)
	assert.Equal(t, call.ReasonMalformed, candidates[0].Reason)
}

func TestParse_UnterminatedFence(t *testing.T) {
	text := "Something stirs.\n\n```call\n" + `{"function": "create_character"`
	narrative, candidates := Parse(text)
	assert.Equal(t, "Something stirs.", narrative)
	require.Len(t, candidates, 1)
	assert.Equal(t, call.StatusRejected, candidates[0].Status)
	assert.Equal(t, call.ReasonMalformed, candidates[0].Reason)
}

func TestParse_InlineJSONCall(t *testing.T) {
	text := "She nods.\n" +
		`{"function": "set_flag", "params": {"key": "met_rin", "value": "true"}}` + "\n" +
		"The rain keeps falling."

	narrative, candidates := Parse(text)
	assert.Contains(t, narrative, "She nods.")
	assert.Contains(t, narrative, "The rain keeps falling.")
	assert.NotContains(t, narrative, "set_flag")

	require.Len(t, candidates, 1)
	assert.Equal(t, "set_flag", candidates[0].Function)
	assert.Equal(t, call.StatusPending, candidates[0].Status)
}

// Mixed fenced and inline calls must come out in source order: an
// inline call referencing an entity a fence created above it would
// otherwise be validated before the creation.
func TestParse_MixedFencedAndInlineKeepSourceOrder(t *testing.T) {
	text := "The bell tolls.\n\n" +
		"```call\n" +
		`{"function": "set_flag", "params": {"key": "bell_heard", "value": "true"}}` + "\n" +
		"```\n\n" +
		"A stranger answers it.\n\n" +
		"```call\n" +
		`{"function": "create_character", "params": {"name": "Rin"}}` + "\n" +
		"```\n\n" +
		"She hands over a sword.\n" +
		`{"function": "add_item", "params": {"character": "Rin", "item": "sword"}}` + "\n"

	narrative, candidates := Parse(text)
	assert.Contains(t, narrative, "She hands over a sword.")
	assert.NotContains(t, narrative, "function")

	require.Len(t, candidates, 3)
	assert.Equal(t, "set_flag", candidates[0].Function)
	assert.Equal(t, "create_character", candidates[1].Function)
	assert.Equal(t, "add_item", candidates[2].Function)
	assert.Less(t, candidates[0].Span.Start, candidates[1].Span.Start)
	assert.Less(t, candidates[1].Span.Start, candidates[2].Span.Start)
}

func TestParse_InlineBeforeFenceComesFirst(t *testing.T) {
	text := `{"function": "create_character", "params": {"name": "Rin"}}` + "\n\n" +
		"```call\n" +
		`{"function": "add_item", "params": {"character": "Rin", "item": "sword"}}` + "\n" +
		"```\n"

	_, candidates := Parse(text)
	require.Len(t, candidates, 2)
	assert.Equal(t, "create_character", candidates[0].Function)
	assert.Equal(t, "add_item", candidates[1].Function)
}

func TestParse_PlainCodeFenceIsNotACall(t *testing.T) {
	text := "The inscription reads:\n\n```\nMEMENTO MORI\n```\n\nYou shiver."
	narrative, candidates := Parse(text)
	assert.Empty(t, candidates)
	assert.Contains(t, narrative, "MEMENTO MORI")
}

func TestParse_MalformedNeverPanicsAndKeepsProse(t *testing.T) {
	inputs := []string{
		"",
		"```call",
		"```call\n```",
		"```call\nnot json at all\n```",
		"prose only, no calls anywhere",
		"{\"function\": \"broken\"",
		"```call\n{\"function\": 42}\n```",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Parse(in) }, "input %q", in)
	}
}
