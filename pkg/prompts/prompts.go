package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/tavernkeep/gamemaster/pkg/state"
)

// BaseSystemPrompt frames the model's role and the call protocol.
// State changes described in prose but not emitted as calls do not
// happen; the parser only trusts structured payloads.
const BaseSystemPrompt = `You are the game master of an interactive text adventure. Narrate the world in second person, stay in fiction, and keep responses to a few paragraphs.

When the story changes the game state, emit a call block in addition to your prose. A call block is a fenced code block labelled "call" containing exactly one JSON object:

` + "```call\n" + `{"function": "add_item", "params": {"character": "rin", "item": "sword"}}
` + "```\n" + `
Rules for call blocks:
- Emit one block per state change, in the order the changes happen in your narration.
- Only use the functions listed below. Anything else is ignored.
- Refer to characters and items by the names you introduced them with.
- Never mention call blocks, functions, or game mechanics in your prose.

Available functions:
%s`

// statePromptView is the compact state representation included in the
// system prompt each turn. It deliberately omits internal fields the
// model has no business seeing.
type statePromptView struct {
	Characters map[string]characterView `json:"characters,omitempty"`
	Items      map[string]itemView      `json:"items,omitempty"`
	Flags      map[string]string        `json:"flags,omitempty"`
	Turn       int                      `json:"turn"`
}

type characterView struct {
	Name       string         `json:"name"`
	Attributes map[string]int `json:"attributes,omitempty"`
	Inventory  []string       `json:"inventory,omitempty"`
	Active     bool           `json:"active"`
}

type itemView struct {
	Type        string `json:"type"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
}

// StatePrompt renders the current game state as a system-prompt
// fragment.
func StatePrompt(gs *state.GameState) (string, error) {
	view := statePromptView{
		Characters: make(map[string]characterView, len(gs.Characters)),
		Items:      make(map[string]itemView, len(gs.Items)),
		Flags:      gs.Flags,
		Turn:       gs.Turn,
	}
	for id, ch := range gs.Characters {
		view.Characters[id] = characterView{
			Name:       ch.Name,
			Attributes: ch.Attributes,
			Inventory:  ch.Inventory,
			Active:     ch.Active,
		}
	}
	for id, it := range gs.Items {
		view.Items[id] = itemView{
			Type:        it.Type,
			Owner:       it.Owner,
			Description: it.Description,
		}
	}

	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state view: %w", err)
	}
	return "Current game state:\n```json\n" + string(data) + "\n```", nil
}
