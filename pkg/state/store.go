package state

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ConflictError reports the first op in a batch that violated an
// invariant. Nothing from the batch is applied when this is returned.
type ConflictError struct {
	Index int   // position of the offending op in the batch
	Op    Op    // the offending op
	Cause error // the violated invariant
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("batch conflict at op %d (%T): %v", e.Index, e.Op, e.Cause)
}

func (e *ConflictError) Unwrap() error { return e.Cause }

// InvariantViolation means the store detected an impossible stored
// state after a commit. This is a bug, never silently patched; callers
// must treat it as fatal to the session.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}

// Store owns the canonical GameState for one session. Apply is the sole
// mutation entry point and serializes concurrent batches; the lock is
// held only for validation and commit, never across any network wait.
type Store struct {
	mu     sync.Mutex
	gs     *GameState
	logger *slog.Logger
}

// NewStore wraps a game state. A nil state starts a fresh session.
func NewStore(gs *GameState, logger *slog.Logger) *Store {
	if gs == nil {
		gs = NewGameState()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{gs: gs, logger: logger}
}

// Snapshot returns a deep copy of the current state for validation
// reads. Mutating the copy has no effect on the store.
func (s *Store) Snapshot() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gs.Clone()
}

// Apply applies a batch of ops atomically: every op validates against
// the working state (including earlier ops in the same batch) or none
// are applied. The first violated invariant is returned as a
// *ConflictError. A post-commit sweep returning *InvariantViolation
// indicates a bug and leaves the previous state in place.
func (s *Store) Apply(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.gs.Clone()
	for i, op := range ops {
		if err := op.Validate(working); err != nil {
			return &ConflictError{Index: i, Op: op, Cause: err}
		}
		op.apply(working)
	}

	if err := working.checkInvariants(); err != nil {
		s.logger.Error("post-commit invariant sweep failed",
			"error", err,
			"session_id", working.ID.String())
		return err
	}

	working.UpdatedAt = time.Now().UTC()
	s.gs = working
	return nil
}

// AdvanceTurn bumps the monotonic turn counter.
func (s *Store) AdvanceTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gs.Turn++
	s.gs.UpdatedAt = time.Now().UTC()
	return s.gs.Turn
}

// checkInvariants sweeps the whole state for impossible conditions.
func (gs *GameState) checkInvariants() error {
	for id, ch := range gs.Characters {
		if ch == nil {
			return &InvariantViolation{Detail: fmt.Sprintf("nil character %q", id)}
		}
		if ch.ID != id {
			return &InvariantViolation{Detail: fmt.Sprintf("character keyed %q has id %q", id, ch.ID)}
		}
		seen := make(map[string]bool, len(ch.Inventory))
		for _, itemID := range ch.Inventory {
			if seen[itemID] {
				return &InvariantViolation{Detail: fmt.Sprintf("character %q lists item %q twice", id, itemID)}
			}
			seen[itemID] = true
			it, ok := gs.Items[itemID]
			if !ok {
				return &InvariantViolation{Detail: fmt.Sprintf("character %q lists missing item %q", id, itemID)}
			}
			if it.Owner != id {
				return &InvariantViolation{Detail: fmt.Sprintf("item %q is listed by %q but owned by %q", itemID, id, it.Owner)}
			}
		}
	}
	for id, it := range gs.Items {
		if it == nil {
			return &InvariantViolation{Detail: fmt.Sprintf("nil item %q", id)}
		}
		if it.ID != id {
			return &InvariantViolation{Detail: fmt.Sprintf("item keyed %q has id %q", id, it.ID)}
		}
		if it.Owner == "" {
			continue
		}
		owner, ok := gs.Characters[it.Owner]
		if !ok {
			return &InvariantViolation{Detail: fmt.Sprintf("item %q owned by missing character %q", id, it.Owner)}
		}
		if !owner.Active {
			return &InvariantViolation{Detail: fmt.Sprintf("item %q owned by inactive character %q", id, it.Owner)}
		}
		found := false
		for _, inv := range owner.Inventory {
			if inv == id {
				found = true
				break
			}
		}
		if !found {
			return &InvariantViolation{Detail: fmt.Sprintf("item %q owned by %q but not in their inventory", id, it.Owner)}
		}
	}
	if gs.Turn < 0 {
		return &InvariantViolation{Detail: fmt.Sprintf("negative turn counter %d", gs.Turn)}
	}
	return nil
}
