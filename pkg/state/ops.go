package state

import "fmt"

// Op is a single validated game-state mutation. Ops are the only way
// state changes; direct field mutation is forbidden by contract.
//
// Validate checks the op against a working copy of the state that
// already includes the effects of earlier ops in the same batch, so
// textual order defines causality within a batch. apply assumes
// Validate passed.
type Op interface {
	Validate(gs *GameState) error
	apply(gs *GameState)
	Describe() string
}

// CreateCharacter introduces a new character. The id is the slug of the
// name and must be unique across the whole session, active or not.
type CreateCharacter struct {
	Name       string
	Attributes map[string]int
}

func (op CreateCharacter) Validate(gs *GameState) error {
	id := Slug(op.Name)
	if id == "" {
		return fmt.Errorf("character name %q produces an empty id", op.Name)
	}
	if _, exists := gs.Characters[id]; exists {
		return fmt.Errorf("character %q already exists", id)
	}
	return nil
}

func (op CreateCharacter) apply(gs *GameState) {
	id := Slug(op.Name)
	ch := &Character{
		ID:     id,
		Name:   op.Name,
		Active: true,
	}
	if len(op.Attributes) > 0 {
		ch.Attributes = make(map[string]int, len(op.Attributes))
		for k, v := range op.Attributes {
			ch.Attributes[Slug(k)] = v
		}
	}
	gs.Characters[id] = ch
}

func (op CreateCharacter) Describe() string {
	return fmt.Sprintf("%s joins the story", op.Name)
}

// SetAttribute sets one numeric attribute on an active character.
type SetAttribute struct {
	Character string
	Attribute string
	Value     int
}

func (op SetAttribute) Validate(gs *GameState) error {
	if _, ok := resolveActive(gs, op.Character); !ok {
		return fmt.Errorf("character %q does not exist or is inactive", op.Character)
	}
	return nil
}

func (op SetAttribute) apply(gs *GameState) {
	ch, _ := resolveActive(gs, op.Character)
	if ch.Attributes == nil {
		ch.Attributes = make(map[string]int)
	}
	ch.Attributes[Slug(op.Attribute)] = op.Value
	ch.actor = nil // stale
}

func (op SetAttribute) Describe() string {
	return fmt.Sprintf("%s's %s becomes %d", op.Character, op.Attribute, op.Value)
}

// AddItem creates an item in an active character's inventory. The item
// id is the slug of the type name and must be unique.
type AddItem struct {
	Character   string
	Item        string
	Description string
}

func (op AddItem) Validate(gs *GameState) error {
	if _, ok := resolveActive(gs, op.Character); !ok {
		return fmt.Errorf("character %q does not exist or is inactive", op.Character)
	}
	id := Slug(op.Item)
	if id == "" {
		return fmt.Errorf("item name %q produces an empty id", op.Item)
	}
	if _, exists := gs.Items[id]; exists {
		return fmt.Errorf("item %q already exists", id)
	}
	return nil
}

func (op AddItem) apply(gs *GameState) {
	ch, _ := resolveActive(gs, op.Character)
	id := Slug(op.Item)
	gs.Items[id] = &ItemInstance{
		ID:          id,
		Type:        op.Item,
		Owner:       ch.ID,
		Description: op.Description,
	}
	ch.Inventory = append(ch.Inventory, id)
}

func (op AddItem) Describe() string {
	return fmt.Sprintf("%s gains %s", op.Character, op.Item)
}

// RemoveItem destroys an item, removing it from play and from its
// owner's inventory.
type RemoveItem struct {
	Item string
}

func (op RemoveItem) Validate(gs *GameState) error {
	if _, ok := gs.ResolveItem(op.Item); !ok {
		return fmt.Errorf("item %q does not exist", op.Item)
	}
	return nil
}

func (op RemoveItem) apply(gs *GameState) {
	it, _ := gs.ResolveItem(op.Item)
	if it.Owner != "" {
		if ch, ok := gs.Characters[it.Owner]; ok {
			ch.Inventory = removeID(ch.Inventory, it.ID)
		}
	}
	delete(gs.Items, it.ID)
}

func (op RemoveItem) Describe() string {
	return fmt.Sprintf("%s is lost", op.Item)
}

// TransferItem moves an item to another active character.
type TransferItem struct {
	Item string
	To   string
}

func (op TransferItem) Validate(gs *GameState) error {
	if _, ok := gs.ResolveItem(op.Item); !ok {
		return fmt.Errorf("item %q does not exist", op.Item)
	}
	if _, ok := resolveActive(gs, op.To); !ok {
		return fmt.Errorf("character %q does not exist or is inactive", op.To)
	}
	return nil
}

func (op TransferItem) apply(gs *GameState) {
	it, _ := gs.ResolveItem(op.Item)
	to, _ := resolveActive(gs, op.To)
	if it.Owner != "" {
		if from, ok := gs.Characters[it.Owner]; ok {
			from.Inventory = removeID(from.Inventory, it.ID)
		}
	}
	it.Owner = to.ID
	to.Inventory = append(to.Inventory, it.ID)
}

func (op TransferItem) Describe() string {
	return fmt.Sprintf("%s passes to %s", op.Item, op.To)
}

// SetFlag records a world fact.
type SetFlag struct {
	Key   string
	Value string
}

func (op SetFlag) Validate(gs *GameState) error {
	if Slug(op.Key) == "" {
		return fmt.Errorf("flag key %q produces an empty key", op.Key)
	}
	return nil
}

func (op SetFlag) apply(gs *GameState) {
	gs.Flags[Slug(op.Key)] = op.Value
}

func (op SetFlag) Describe() string {
	return fmt.Sprintf("the world remembers %s", op.Key)
}

// DeactivateCharacter takes a character out of active play. Their items
// are released rather than orphaned, keeping the owner invariant.
type DeactivateCharacter struct {
	Character string
}

func (op DeactivateCharacter) Validate(gs *GameState) error {
	if _, ok := resolveActive(gs, op.Character); !ok {
		return fmt.Errorf("character %q does not exist or is inactive", op.Character)
	}
	return nil
}

func (op DeactivateCharacter) apply(gs *GameState) {
	ch, _ := resolveActive(gs, op.Character)
	for _, itemID := range ch.Inventory {
		if it, ok := gs.Items[itemID]; ok {
			it.Owner = ""
		}
	}
	ch.Inventory = nil
	ch.Active = false
}

func (op DeactivateCharacter) Describe() string {
	return fmt.Sprintf("%s leaves the story", op.Character)
}

func resolveActive(gs *GameState, ref string) (*Character, bool) {
	ch, ok := gs.ResolveCharacter(ref)
	if !ok || !ch.Active {
		return nil, false
	}
	return ch, true
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
