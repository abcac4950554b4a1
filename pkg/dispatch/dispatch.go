// Package dispatch checks parsed call candidates against the function
// catalog and the current game state, then applies the surviving batch
// atomically. Rejections are recorded on the candidates themselves and
// never abort the turn; only a repeated commit conflict or a store
// invariant violation is surfaced as an error.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavernkeep/gamemaster/pkg/call"
	"github.com/tavernkeep/gamemaster/pkg/schema"
	"github.com/tavernkeep/gamemaster/pkg/state"
)

// ErrBatchConflict means a batch conflicted twice in one turn. The
// turn's mutation phase is abandoned and the game state is unchanged;
// the session itself continues.
var ErrBatchConflict = errors.New("batch conflicted twice, mutation phase abandoned")

// Dispatcher validates and applies call candidates for one session.
type Dispatcher struct {
	registry *schema.Registry
	store    *state.Store
	logger   *slog.Logger
}

func New(registry *schema.Registry, store *state.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, store: store, logger: logger}
}

// Dispatch runs the validation pipeline over candidates in order and
// applies the passing ones as one atomic batch. Outcomes are written
// back into the returned slice; rejected candidates keep their reasons
// for the turn log. The returned error is nil unless the mutation
// phase failed as a whole (ErrBatchConflict) or the store detected an
// impossible state (*state.InvariantViolation, fatal upstream).
func (d *Dispatcher) Dispatch(candidates []call.Candidate) ([]call.Candidate, error) {
	snapshot := d.store.Snapshot()
	refs := newRefTracker(snapshot)

	var ops []state.Op
	var opOwner []int // ops index -> candidates index
	for i := range candidates {
		c := &candidates[i]
		if c.Status == call.StatusRejected {
			continue // parser already rejected it
		}

		entry, ok := d.registry.Lookup(c.Function)
		if !ok {
			c.Reject(call.ReasonUnknownFunction, c.Function)
			continue
		}

		params, badParam, err := convertParams(entry, c.Params)
		if err != nil {
			c.Reject(call.ReasonBadParameters, fmt.Sprintf("%s: %v", badParam, err))
			continue
		}

		op, err := buildOp(entry.Name, params)
		if err != nil {
			c.Reject(call.ReasonBadParameters, err.Error())
			continue
		}

		if err := refs.check(entry.Name, params); err != nil {
			c.Reject(call.ReasonInvalidReference, err.Error())
			continue
		}
		refs.record(entry.Name, params)

		ops = append(ops, op)
		opOwner = append(opOwner, i)
	}

	if len(ops) == 0 {
		return candidates, nil
	}

	// First attempt. A ConflictError here is a cross-candidate
	// conflict only detectable at commit time (e.g. two creates
	// producing the same identifier).
	conflictIdx, err := d.apply(ops)
	if err == nil {
		markApplied(candidates, opOwner)
		return candidates, nil
	}
	if conflictIdx < 0 {
		return candidates, err // invariant violation, fatal upstream
	}

	offender := &candidates[opOwner[conflictIdx]]
	offender.Reject(call.ReasonConflict, err.Error())
	d.logger.Warn("batch conflict, retrying without offender",
		"function", offender.Function,
		"error", err)

	surviving := append(ops[:conflictIdx:conflictIdx], ops[conflictIdx+1:]...)
	survivingOwner := append(opOwner[:conflictIdx:conflictIdx], opOwner[conflictIdx+1:]...)
	if len(surviving) == 0 {
		return candidates, nil
	}

	// Single retry. A second conflict ends the mutation phase; no
	// further retries, and nothing is silently dropped.
	conflictIdx, err = d.apply(surviving)
	if err == nil {
		markApplied(candidates, survivingOwner)
		return candidates, nil
	}
	if conflictIdx < 0 {
		return candidates, err
	}

	for _, owner := range survivingOwner {
		candidates[owner].Reject(call.ReasonConflict, "abandoned after repeated batch conflict")
	}
	d.logger.Warn("second batch conflict, mutation phase abandoned", "error", err)
	return candidates, ErrBatchConflict
}

// apply submits a batch and classifies the failure: a non-negative
// index identifies the conflicting op, -1 with a non-nil error is
// fatal, -1 with nil error is success.
func (d *Dispatcher) apply(ops []state.Op) (int, error) {
	err := d.store.Apply(ops)
	if err == nil {
		return -1, nil
	}
	var conflict *state.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Index, err
	}
	return -1, err
}

func markApplied(candidates []call.Candidate, owners []int) {
	for _, owner := range owners {
		candidates[owner].Applied()
	}
}

// convertParams type-checks raw candidate params against the schema
// entry. Missing required parameters, undeclared parameters, and type
// or predicate failures all reject the candidate, naming the parameter.
func convertParams(entry schema.Entry, raw map[string]any) (map[string]any, string, error) {
	out := make(map[string]any, len(entry.Params))
	for _, p := range entry.Params {
		v, present := raw[p.Name]
		if !present {
			if p.Required {
				return nil, p.Name, fmt.Errorf("required parameter missing")
			}
			continue
		}
		converted, err := p.Convert(v)
		if err != nil {
			return nil, p.Name, err
		}
		out[p.Name] = converted
	}
	for name := range raw {
		if _, declared := entry.Param(name); !declared {
			return nil, name, fmt.Errorf("parameter not declared for %s", entry.Name)
		}
	}
	return out, "", nil
}

// buildOp maps a validated candidate onto a state mutation op.
func buildOp(function string, params map[string]any) (state.Op, error) {
	switch function {
	case "create_character":
		op := state.CreateCharacter{Name: params["name"].(string)}
		if attrs, ok := params["attributes"].(map[string]int); ok {
			op.Attributes = attrs
		}
		return op, nil
	case "set_attribute":
		return state.SetAttribute{
			Character: params["character"].(string),
			Attribute: params["attribute"].(string),
			Value:     params["value"].(int),
		}, nil
	case "add_item":
		op := state.AddItem{
			Character: params["character"].(string),
			Item:      params["item"].(string),
		}
		if desc, ok := params["description"].(string); ok {
			op.Description = desc
		}
		return op, nil
	case "remove_item":
		return state.RemoveItem{Item: params["item"].(string)}, nil
	case "transfer_item":
		return state.TransferItem{
			Item: params["item"].(string),
			To:   params["to"].(string),
		}, nil
	case "set_flag":
		return state.SetFlag{
			Key:   params["key"].(string),
			Value: params["value"].(string),
		}, nil
	case "deactivate_character":
		return state.DeactivateCharacter{Character: params["character"].(string)}, nil
	default:
		return nil, fmt.Errorf("function %s has no op mapping", function)
	}
}
