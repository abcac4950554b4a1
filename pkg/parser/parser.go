// Package parser extracts structured function-call candidates from raw
// model output. The model interleaves narrative prose with call
// payloads and is not a trusted structured-data source: parsing is
// best-effort, malformed payloads become rejected candidates rather
// than errors, and the surrounding prose is always recovered.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tavernkeep/gamemaster/pkg/call"
)

const (
	fenceOpen  = "```call"
	fenceClose = "```"
)

// payload is the wire shape the system prompt asks the model to emit
// inside a ```call fence.
type payload struct {
	Function string         `json:"function"`
	Params   map[string]any `json:"params"`
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// Parse splits raw model output into narrative text and an ordered
// sequence of call candidates. Candidate order matches order of
// appearance in the source; downstream effects are applied in that
// order, which defines narrative causality. Parse is pure: the same
// input always yields the same output.
func Parse(raw string) (string, []call.Candidate) {
	var narrative strings.Builder
	var candidates []call.Candidate

	// Walk the text fence by fence, scanning each prose segment for
	// inline payloads as it is passed. Candidates are appended as they
	// are encountered, so fenced and inline calls stay in source order
	// and every span is in raw-text coordinates.
	rest := raw
	offset := 0
	for {
		open := indexFence(rest)
		if open < 0 {
			text, inline := extractInline(rest, offset)
			narrative.WriteString(text)
			candidates = append(candidates, inline...)
			break
		}

		text, inline := extractInline(rest[:open], offset)
		narrative.WriteString(text)
		candidates = append(candidates, inline...)

		bodyStart := open + len(fenceOpen)
		closeRel := strings.Index(rest[bodyStart:], fenceClose)
		if closeRel < 0 {
			// Unterminated fence: treat the remainder as one
			// malformed payload, keep nothing of it as prose.
			c := decode(rest[bodyStart:], call.Span{Start: offset + open, End: offset + len(rest)})
			candidates = append(candidates, c)
			break
		}

		body := rest[bodyStart : bodyStart+closeRel]
		span := call.Span{Start: offset + open, End: offset + bodyStart + closeRel + len(fenceClose)}
		candidates = append(candidates, decode(body, span))

		next := bodyStart + closeRel + len(fenceClose)
		offset += next
		rest = rest[next:]
	}

	return tidy(narrative.String()), candidates
}

// indexFence finds the next ```call fence, skipping plain ``` fences
// that the model may use for ordinary formatting.
func indexFence(s string) int {
	from := 0
	for {
		i := strings.Index(s[from:], fenceOpen)
		if i < 0 {
			return -1
		}
		abs := from + i
		after := abs + len(fenceOpen)
		// Require the marker to end the line, so ```caller etc.
		// in prose is not treated as a fence.
		if after >= len(s) || s[after] == '\n' || s[after] == '\r' || s[after] == ' ' {
			return abs
		}
		from = after
	}
}

// decode turns a fence body into a candidate. Anything that fails to
// decode as a single call object becomes a rejected("malformed")
// candidate so the failure is observable in the turn log.
func decode(body string, span call.Span) call.Candidate {
	var p payload
	trimmed := strings.TrimSpace(body)
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil || p.Function == "" {
		c := call.New("", nil, span)
		detail := "payload is not a call object"
		if err != nil {
			detail = err.Error()
		}
		c.Reject(call.ReasonMalformed, detail)
		return c
	}
	return call.New(p.Function, p.Params, span)
}

// extractInline pulls bare one-line JSON call objects out of a prose
// segment. Some models ignore the fence instruction and emit the
// object inline; accepting both keeps parsing robust without trusting
// either form. base is the segment's position in the raw text, so
// returned spans share the fenced candidates' coordinate system.
func extractInline(text string, base int) (string, []call.Candidate) {
	if !strings.Contains(text, `"function"`) {
		return text, nil
	}

	var kept []string
	var found []call.Candidate
	pos := 0
	for _, line := range strings.Split(text, "\n") {
		lineStart := pos
		pos += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") && strings.Contains(trimmed, `"function"`) {
			span := call.Span{Start: base + lineStart, End: base + lineStart + len(line)}
			var p payload
			if err := json.Unmarshal([]byte(trimmed), &p); err == nil && p.Function != "" {
				found = append(found, call.New(p.Function, p.Params, span))
				continue
			}
			// Looks like a call but does not decode: surface it
			// as malformed instead of leaking JSON to the player.
			c := call.New("", nil, span)
			c.Reject(call.ReasonMalformed, "inline payload does not decode")
			found = append(found, c)
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), found
}

func tidy(text string) string {
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
