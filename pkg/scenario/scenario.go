// Package scenario defines the loadable adventure "cartridges" a
// session starts from: a premise for the model, opening narration for
// the player, and the starting cast and props.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tavernkeep/gamemaster/pkg/state"
)

// StartingCharacter is a character present when the session begins.
type StartingCharacter struct {
	Name       string         `json:"name"`
	Attributes map[string]int `json:"attributes,omitempty"`
}

// StartingItem is an item present when the session begins. Owner names
// a starting character by display name.
type StartingItem struct {
	Type        string `json:"type"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
}

// Scenario is one adventure definition, loaded from a JSON file.
type Scenario struct {
	Name       string              `json:"name"`
	Premise    string              `json:"premise"` // world and tone, fed to the model
	Opening    string              `json:"opening"` // first narration shown to the player
	Characters []StartingCharacter `json:"characters,omitempty"`
	Items      []StartingItem      `json:"items,omitempty"`
	Flags      map[string]string   `json:"flags,omitempty"`
}

// Load reads a scenario from a JSON file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", filepath.Base(path), err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// List returns scenario files (name -> path) found in a directory.
func List(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}
	found := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		s, err := Load(path)
		if err != nil {
			continue // skip unparseable files; cmd/validate reports them
		}
		found[s.Name] = path
	}
	return found, nil
}

// Validate checks internal consistency without touching a store.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("scenario has no name")
	}
	if strings.TrimSpace(s.Premise) == "" {
		return fmt.Errorf("scenario %q has no premise", s.Name)
	}
	names := make(map[string]bool, len(s.Characters))
	for _, ch := range s.Characters {
		id := state.Slug(ch.Name)
		if id == "" {
			return fmt.Errorf("starting character %q has an unusable name", ch.Name)
		}
		if names[id] {
			return fmt.Errorf("duplicate starting character %q", ch.Name)
		}
		names[id] = true
	}
	items := make(map[string]bool, len(s.Items))
	for _, it := range s.Items {
		id := state.Slug(it.Type)
		if id == "" {
			return fmt.Errorf("starting item %q has an unusable name", it.Type)
		}
		if items[id] {
			return fmt.Errorf("duplicate starting item %q", it.Type)
		}
		items[id] = true
		if it.Owner == "" {
			return fmt.Errorf("starting item %q has no owner", it.Type)
		}
		if !names[state.Slug(it.Owner)] {
			return fmt.Errorf("starting item %q owned by unknown character %q", it.Type, it.Owner)
		}
	}
	return nil
}

// StartingOps converts the starting cast and props into state ops, so
// session setup goes through the same validated mutation path as model
// calls.
func (s *Scenario) StartingOps() []state.Op {
	var ops []state.Op
	for _, ch := range s.Characters {
		ops = append(ops, state.CreateCharacter{Name: ch.Name, Attributes: ch.Attributes})
	}
	for _, it := range s.Items {
		ops = append(ops, state.AddItem{Character: it.Owner, Item: it.Type, Description: it.Description})
	}
	for k, v := range s.Flags {
		ops = append(ops, state.SetFlag{Key: k, Value: v})
	}
	return ops
}
