package dispatch

import (
	"fmt"

	"github.com/tavernkeep/gamemaster/pkg/state"
)

// refTracker answers "does this reference resolve?" during the semantic
// pass. It sees the snapshot plus the effects of earlier candidates in
// the same batch, so a call may reference an entity created two lines
// above it in the model's response. It deliberately does not detect
// duplicate creations: those are commit-time conflicts owned by the
// store.
type refTracker struct {
	snapshot *state.GameState

	createdCharacters map[string]bool
	removedCharacters map[string]bool // deactivated earlier in batch
	createdItems      map[string]bool
	removedItems      map[string]bool
}

func newRefTracker(snapshot *state.GameState) *refTracker {
	return &refTracker{
		snapshot:          snapshot,
		createdCharacters: make(map[string]bool),
		removedCharacters: make(map[string]bool),
		createdItems:      make(map[string]bool),
		removedItems:      make(map[string]bool),
	}
}

func (r *refTracker) characterActive(ref string) bool {
	id := state.Slug(ref)
	if r.removedCharacters[id] {
		return false
	}
	if r.createdCharacters[id] {
		return true
	}
	if ch, ok := r.snapshot.ResolveCharacter(ref); ok && ch.Active {
		return true
	}
	return false
}

func (r *refTracker) itemExists(ref string) bool {
	id := state.Slug(ref)
	if r.removedItems[id] {
		return false
	}
	if r.createdItems[id] {
		return true
	}
	_, ok := r.snapshot.ResolveItem(ref)
	return ok
}

// check verifies every entity reference of a call. Parameters are
// already converted, so type assertions here are safe.
func (r *refTracker) check(function string, params map[string]any) error {
	requireCharacter := func(key string) error {
		ref := params[key].(string)
		if !r.characterActive(ref) {
			return fmt.Errorf("character %q does not exist or is inactive", ref)
		}
		return nil
	}
	requireItem := func(key string) error {
		ref := params[key].(string)
		if !r.itemExists(ref) {
			return fmt.Errorf("item %q does not exist", ref)
		}
		return nil
	}

	switch function {
	case "set_attribute", "add_item", "deactivate_character":
		return requireCharacter("character")
	case "remove_item":
		return requireItem("item")
	case "transfer_item":
		if err := requireItem("item"); err != nil {
			return err
		}
		return requireCharacter("to")
	}
	return nil
}

// record notes a call's effects so later candidates in the batch can
// reference them.
func (r *refTracker) record(function string, params map[string]any) {
	switch function {
	case "create_character":
		id := state.Slug(params["name"].(string))
		r.createdCharacters[id] = true
		delete(r.removedCharacters, id)
	case "add_item":
		id := state.Slug(params["item"].(string))
		r.createdItems[id] = true
		delete(r.removedItems, id)
	case "remove_item":
		id := state.Slug(params["item"].(string))
		r.removedItems[id] = true
		delete(r.createdItems, id)
	case "deactivate_character":
		id := state.Slug(params["character"].(string))
		r.removedCharacters[id] = true
		delete(r.createdCharacters, id)
	}
}
