package call

import "fmt"

// Status tracks a candidate through the validation pipeline.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
)

// Reason classifies why a candidate was rejected. Reasons are
// diagnostic values recorded in the turn log; they are never shown to
// the player verbatim.
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonUnknownFunction  Reason = "unknown_function"
	ReasonBadParameters    Reason = "bad_parameters"
	ReasonInvalidReference Reason = "invalid_reference"
	ReasonConflict         Reason = "conflict"
)

// Span locates a candidate in the raw model response, for diagnostics.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Candidate is a structured instruction extracted from model text,
// representing a proposed game-state mutation. The model is not a
// trusted structured-data source, so every candidate is treated as
// adversarial input until validated.
type Candidate struct {
	Function string         `json:"function"`
	Params   map[string]any `json:"params,omitempty"`
	Span     Span           `json:"span"`

	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"` // set when Status == StatusRejected
	Detail string `json:"detail,omitempty"` // e.g. which parameter failed
}

// New returns a pending candidate.
func New(function string, params map[string]any, span Span) Candidate {
	return Candidate{
		Function: function,
		Params:   params,
		Span:     span,
		Status:   StatusPending,
	}
}

// Reject marks the candidate rejected with a reason and optional detail.
func (c *Candidate) Reject(reason Reason, detail string) {
	c.Status = StatusRejected
	c.Reason = reason
	c.Detail = detail
}

// Applied marks the candidate as successfully applied.
func (c *Candidate) Applied() {
	c.Status = StatusApplied
	c.Reason = ""
	c.Detail = ""
}

func (c Candidate) String() string {
	if c.Status == StatusRejected {
		return fmt.Sprintf("%s [%s: %s]", c.Function, c.Status, c.Reason)
	}
	return fmt.Sprintf("%s [%s]", c.Function, c.Status)
}
