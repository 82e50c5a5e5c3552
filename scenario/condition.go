package scenario

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/flowlab/flowsim/sim"
)

// A Condition is a boolean predicate over a token value. Conditions appear
// on edges (routing), on multiplexer outputs, and as FSM transition guards.
// The operator vocabulary is closed and checked during scenario validation.
type Condition struct {
	// Field selects a named field of a map-shaped value. When empty, the
	// condition applies to the value itself.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`

	// Operator is one of eq, neq, gt, gte, lt, lte, contains, exists.
	Operator string `json:"operator" yaml:"operator"`

	Value any `json:"value,omitempty" yaml:"value,omitempty"`
}

var knownOperators = map[string]bool{
	"eq": true, "neq": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"contains": true, "exists": true,
}

func (c *Condition) validate() error {
	if !knownOperators[c.Operator] {
		return fmt.Errorf("unknown condition operator %q", c.Operator)
	}

	return nil
}

// Matches evaluates the condition against a token value.
func (c *Condition) Matches(value any) bool {
	v := value
	if c.Field != "" {
		fv, ok := sim.Field(value, c.Field)
		if !ok {
			return c.Operator == "neq"
		}
		v = fv
	}

	switch c.Operator {
	case "exists":
		return v != nil
	case "eq":
		return looseEqual(v, c.Value)
	case "neq":
		return !looseEqual(v, c.Value)
	case "contains":
		s, ok := v.(string)
		want, ok2 := c.Value.(string)
		return ok && ok2 && strings.Contains(s, want)
	case "gt", "gte", "lt", "lte":
		a, ok := sim.AsFloat(v)
		b, ok2 := sim.AsFloat(c.Value)
		if !ok || !ok2 {
			return false
		}
		switch c.Operator {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	default:
		return false
	}
}

// looseEqual compares across numeric types so that a YAML 3 matches a JSON
// 3.0. Non-numeric values fall back to reflect.DeepEqual, which stays total
// on map and slice values where == would panic.
func looseEqual(a, b any) bool {
	af, aok := sim.AsFloat(a)
	bf, bok := sim.AsFloat(b)
	if aok && bok {
		return af == bf
	}

	return reflect.DeepEqual(a, b)
}
