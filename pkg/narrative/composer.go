// Package narrative turns the model's prose and the turn's call
// outcomes into the text shown to the player. Rejected calls are
// presentation-smoothed: they are either omitted or rendered as an
// in-fiction non-event, never exposed as raw errors. The rejection
// itself stays in the turn log.
package narrative

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tavernkeep/gamemaster/pkg/call"
)

var titleCaser = cases.Title(language.English)

// Compose merges narrative text with the ordered call outcomes.
// Applied calls are assumed to already be described by the prose and
// are folded in silently; they are only spelled out when the model
// sent calls without any prose at all.
func Compose(text string, outcomes []call.Candidate) string {
	text = strings.TrimSpace(text)
	if text != "" {
		return text
	}

	var applied []string
	anyRejected := false
	for _, c := range outcomes {
		switch c.Status {
		case call.StatusApplied:
			if line := describe(c); line != "" {
				applied = append(applied, line)
			}
		case call.StatusRejected:
			anyRejected = true
		}
	}

	if len(applied) > 0 {
		return strings.Join(applied, " ")
	}
	if anyRejected {
		// Everything the model attempted was rejected and it gave
		// us no prose to fall back on. Keep the fiction intact.
		return "The moment passes, and nothing comes of it."
	}
	return ""
}

// describe renders one applied call as a minimal narrative line. This
// is a fallback for prose-less responses, not a full renderer.
func describe(c call.Candidate) string {
	name := func(key string) string {
		s, _ := c.Params[key].(string)
		return titleCaser.String(strings.ReplaceAll(s, "_", " "))
	}

	switch c.Function {
	case "create_character":
		return fmt.Sprintf("%s enters the story.", name("name"))
	case "add_item":
		return fmt.Sprintf("%s now carries %s.", name("character"), strings.ToLower(name("item")))
	case "remove_item":
		return fmt.Sprintf("The %s is gone.", strings.ToLower(name("item")))
	case "transfer_item":
		return fmt.Sprintf("The %s changes hands to %s.", strings.ToLower(name("item")), name("to"))
	case "deactivate_character":
		return fmt.Sprintf("%s departs.", name("character"))
	case "set_attribute", "set_flag":
		// Bookkeeping with no narrative weight of its own.
		return ""
	}
	return ""
}
