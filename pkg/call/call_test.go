package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidate_Lifecycle(t *testing.T) {
	c := New("add_item", map[string]any{"character": "rin", "item": "sword"}, Span{Start: 10, End: 80})
	assert.Equal(t, StatusPending, c.Status)

	c.Applied()
	assert.Equal(t, StatusApplied, c.Status)

	c.Reject(ReasonInvalidReference, `character "ghost" does not exist`)
	assert.Equal(t, StatusRejected, c.Status)
	assert.Equal(t, ReasonInvalidReference, c.Reason)
	assert.Contains(t, c.Detail, "ghost")
}

func TestCandidate_String(t *testing.T) {
	c := New("set_flag", map[string]any{"key": "gate_open", "value": "true"}, Span{})
	s := c.String()
	assert.Contains(t, s, "set_flag")
	assert.Contains(t, s, string(StatusPending))
}
