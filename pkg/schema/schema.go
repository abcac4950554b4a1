package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// ParamType is the semantic type of a function parameter.
type ParamType string

const (
	// ParamString is free text.
	ParamString ParamType = "string"
	// ParamInt is an integer value. JSON numbers are accepted and
	// converted when integral.
	ParamInt ParamType = "int"
	// ParamIdentifier names an entity (character or item) in the game
	// state. The registry checks shape only; existence is a semantic
	// check done by the dispatcher.
	ParamIdentifier ParamType = "identifier"
	// ParamTable is a string-keyed map of integers, e.g. attributes.
	ParamTable ParamType = "table"
)

// Param describes one parameter of a callable function.
type Param struct {
	Name     string    `yaml:"name"`
	Type     ParamType `yaml:"type"`
	Required bool      `yaml:"required"`
	// Check is an optional expr predicate evaluated with the converted
	// parameter bound to "value". Compiled once at registry load.
	Check string `yaml:"check,omitempty"`

	checkProgram *vm.Program
}

// Entry describes one callable game-mutation function.
type Entry struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Params      []Param `yaml:"params"`
}

// Param returns the named parameter spec.
func (e Entry) Param(name string) (Param, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Registry is the static catalog of permitted mutation operations.
// It is loaded once at startup and read-only afterwards.
type Registry struct {
	entries map[string]Entry
	order   []string
}

//go:embed functions.yaml
var builtinCatalog []byte

type catalogFile struct {
	Functions []Entry `yaml:"functions"`
}

// Load builds the registry from the embedded function catalog.
func Load() (*Registry, error) {
	return Parse(builtinCatalog)
}

// Parse builds a registry from a YAML catalog. Duplicate function names
// and invalid check expressions are load-time errors.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse function catalog: %w", err)
	}
	if len(file.Functions) == 0 {
		return nil, fmt.Errorf("function catalog is empty")
	}

	r := &Registry{entries: make(map[string]Entry, len(file.Functions))}
	for _, e := range file.Functions {
		if e.Name == "" {
			return nil, fmt.Errorf("function catalog entry has no name")
		}
		if _, exists := r.entries[e.Name]; exists {
			return nil, fmt.Errorf("duplicate function %q in catalog", e.Name)
		}
		for i := range e.Params {
			p := &e.Params[i]
			switch p.Type {
			case ParamString, ParamInt, ParamIdentifier, ParamTable:
			default:
				return nil, fmt.Errorf("function %q parameter %q has unknown type %q", e.Name, p.Name, p.Type)
			}
			if p.Check != "" {
				program, err := expr.Compile(p.Check, expr.AsBool())
				if err != nil {
					return nil, fmt.Errorf("function %q parameter %q has invalid check: %w", e.Name, p.Name, err)
				}
				p.checkProgram = program
			}
		}
		r.entries[e.Name] = e
		r.order = append(r.order, e.Name)
	}
	return r, nil
}

// Lookup returns the entry for a function name. An unknown name is not
// an error; the caller decides how to handle it.
func (r *Registry) Lookup(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns function names in catalog order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// PromptDoc renders the catalog as plain text suitable for inclusion in
// a system prompt, so the model knows which calls it may emit.
func (r *Registry) PromptDoc() string {
	var sb strings.Builder
	for _, name := range r.order {
		e := r.entries[name]
		sb.WriteString("- ")
		sb.WriteString(e.Name)
		sb.WriteString("(")
		for i, p := range e.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
			sb.WriteString(": ")
			sb.WriteString(string(p.Type))
			if !p.Required {
				sb.WriteString("?")
			}
		}
		sb.WriteString("): ")
		sb.WriteString(e.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}
