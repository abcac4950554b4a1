package turn

import (
	"time"

	"github.com/tavernkeep/gamemaster/pkg/call"
)

// TurnRecord is the append-only log entry for one completed turn. It
// is never mutated after the turn closes; the log reconstructs
// conversational context for the next request and supports replay.
type TurnRecord struct {
	Turn        int              `json:"turn"`
	PlayerInput string           `json:"player_input"`
	RawResponse string           `json:"raw_response"`
	Outcomes    []call.Candidate `json:"outcomes,omitempty"`
	Narrative   string           `json:"narrative"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Rejections returns the rejected candidates, for observability.
func (r *TurnRecord) Rejections() []call.Candidate {
	var rejected []call.Candidate
	for _, c := range r.Outcomes {
		if c.Status == call.StatusRejected {
			rejected = append(rejected, c)
		}
	}
	return rejected
}
