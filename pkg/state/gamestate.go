package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/d20"
)

const defaultMaxHP = 10

// Character is a named actor in the game world. The ID is assigned at
// creation and never changes. Characters are never deleted mid-session;
// they are flagged inactive instead, so earlier narrative references
// stay resolvable.
type Character struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Attributes map[string]int `json:"attributes,omitempty"`
	Inventory  []string       `json:"inventory,omitempty"` // item ids, in acquisition order
	Active     bool           `json:"active"`

	actor *d20.Actor
}

// Actor returns the character's runtime d20 actor, building it from the
// stored attributes on first use. Attribute mutations invalidate it.
func (c *Character) Actor() (*d20.Actor, error) {
	if c.actor != nil {
		return c.actor, nil
	}
	hp := defaultMaxHP
	if con, ok := c.Attributes["constitution"]; ok {
		hp = defaultMaxHP + modifier(con)
	}
	if hp < 1 {
		hp = 1
	}
	actor, err := d20.NewActor(c.ID).
		WithHP(hp).
		WithAttributes(c.Attributes).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor for %q: %w", c.ID, err)
	}
	c.actor = actor
	return c.actor, nil
}

// modifier is the standard d20 ability modifier: (score - 10) / 2,
// rounded down.
func modifier(score int) int {
	if score >= 10 {
		return (score - 10) / 2
	}
	return -((11 - score) / 2)
}

// ItemInstance is a single item in play. Owner, when set, must reference
// an existing active Character.
type ItemInstance struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
}

// GameState is the canonical state of one game session. It is owned by
// the Store and mutated only through validated ops.
type GameState struct {
	ID         uuid.UUID                `json:"id"`
	Characters map[string]*Character    `json:"characters,omitempty"`
	Items      map[string]*ItemInstance `json:"items,omitempty"`
	Flags      map[string]string        `json:"flags,omitempty"`
	Turn       int                      `json:"turn"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

func NewGameState() *GameState {
	now := time.Now().UTC()
	return &GameState{
		ID:         uuid.New(),
		Characters: make(map[string]*Character),
		Items:      make(map[string]*ItemInstance),
		Flags:      make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy. Ops validate and apply against a clone so
// a failed batch never touches the committed state.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		ID:         gs.ID,
		Characters: make(map[string]*Character, len(gs.Characters)),
		Items:      make(map[string]*ItemInstance, len(gs.Items)),
		Flags:      make(map[string]string, len(gs.Flags)),
		Turn:       gs.Turn,
		CreatedAt:  gs.CreatedAt,
		UpdatedAt:  gs.UpdatedAt,
	}
	for id, ch := range gs.Characters {
		cc := &Character{
			ID:     ch.ID,
			Name:   ch.Name,
			Active: ch.Active,
		}
		if ch.Attributes != nil {
			cc.Attributes = make(map[string]int, len(ch.Attributes))
			for k, v := range ch.Attributes {
				cc.Attributes[k] = v
			}
		}
		if ch.Inventory != nil {
			cc.Inventory = append([]string(nil), ch.Inventory...)
		}
		c.Characters[id] = cc
	}
	for id, it := range gs.Items {
		copied := *it
		c.Items[id] = &copied
	}
	for k, v := range gs.Flags {
		c.Flags[k] = v
	}
	return c
}

// Character looks up a character by id.
func (gs *GameState) Character(id string) (*Character, bool) {
	ch, ok := gs.Characters[id]
	return ch, ok
}

// Item looks up an item by id.
func (gs *GameState) Item(id string) (*ItemInstance, bool) {
	it, ok := gs.Items[id]
	return it, ok
}

// ActiveCharacter looks up a character that is still in play.
func (gs *GameState) ActiveCharacter(id string) (*Character, bool) {
	ch, ok := gs.Characters[id]
	if !ok || !ch.Active {
		return nil, false
	}
	return ch, true
}

// ResolveCharacter accepts either a character id or a display name.
// The model tends to refer to characters by the name it invented.
func (gs *GameState) ResolveCharacter(ref string) (*Character, bool) {
	if ch, ok := gs.Characters[ref]; ok {
		return ch, true
	}
	if ch, ok := gs.Characters[Slug(ref)]; ok {
		return ch, true
	}
	return nil, false
}

// ResolveItem accepts either an item id or an item type name.
func (gs *GameState) ResolveItem(ref string) (*ItemInstance, bool) {
	if it, ok := gs.Items[ref]; ok {
		return it, true
	}
	if it, ok := gs.Items[Slug(ref)]; ok {
		return it, true
	}
	return nil, false
}

// Slug converts a display name to a stable snake_case identifier.
func Slug(name string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && sb.Len() > 0 {
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}
