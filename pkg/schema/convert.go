package schema

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr/vm"
)

// Convert coerces a raw decoded parameter value to the parameter's
// declared type and runs its check predicate. Raw values come from
// JSON decoding of untrusted model output, so numbers arrive as
// float64 and anything may be the wrong shape entirely.
func (p Param) Convert(raw any) (any, error) {
	var value any
	switch p.Type {
	case ParamString, ParamIdentifier:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", p.Type, raw)
		}
		if p.Type == ParamIdentifier && s == "" {
			return nil, fmt.Errorf("identifier cannot be empty")
		}
		value = s
	case ParamInt:
		switch n := raw.(type) {
		case int:
			value = n
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			value = int(n)
		default:
			return nil, fmt.Errorf("expected int, got %T", raw)
		}
	case ParamTable:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected table, got %T", raw)
		}
		table := make(map[string]int, len(m))
		for k, v := range m {
			switch n := v.(type) {
			case int:
				table[k] = n
			case float64:
				if n != math.Trunc(n) {
					return nil, fmt.Errorf("table value %q is not an integer", k)
				}
				table[k] = int(n)
			default:
				return nil, fmt.Errorf("table value %q is not a number", k)
			}
		}
		value = table
	default:
		return nil, fmt.Errorf("unknown parameter type %q", p.Type)
	}

	if p.checkProgram != nil {
		ok, err := runCheck(p.checkProgram, value)
		if err != nil {
			return nil, fmt.Errorf("check failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("value %v rejected by check %q", value, p.Check)
		}
	}
	return value, nil
}

func runCheck(program *vm.Program, value any) (bool, error) {
	result, err := vm.Run(program, map[string]any{"value": value})
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("check did not return bool")
	}
	return b, nil
}
