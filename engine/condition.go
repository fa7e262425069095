package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge-ai/flowforge/types"
)

// Condition is a compiled decision expression. The grammar is deliberately
// small: a bare key, or a key compared to a literal.
//
//	approved
//	sentiment == "negative"
//	score != "spam"
//	confidence > 0.8
//	retries <= 3
//
// Keys are looked up in the run's accumulated outputs: node ids map to their
// output values, and map-valued outputs contribute their fields directly.
type Condition struct {
	raw     string
	key     string
	op      string
	strVal  string
	numVal  float64
	boolVal bool
	litKind litKind
}

type litKind int

const (
	litNone litKind = iota
	litString
	litNumber
	litBool
)

var comparators = []string{"==", "!=", ">=", "<=", ">", "<"}

// CompileCondition parses an expression once so decision nodes pay the parse
// cost at load time, not per evaluation.
func CompileCondition(expr string) (*Condition, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, types.NewError(types.ErrWorkflowInvalid, "decision node has an empty condition")
	}

	c := &Condition{raw: raw}
	for _, op := range comparators {
		idx := strings.Index(raw, op)
		if idx < 0 {
			continue
		}
		c.key = strings.TrimSpace(raw[:idx])
		c.op = op
		lit := strings.TrimSpace(raw[idx+len(op):])
		if c.key == "" || lit == "" {
			return nil, types.Errorf(types.ErrWorkflowInvalid, "malformed condition %q", raw)
		}
		if err := c.parseLiteral(lit); err != nil {
			return nil, err
		}
		return c, nil
	}

	// Bare key: truthiness of the value.
	if strings.ContainsAny(raw, " \t") {
		return nil, types.Errorf(types.ErrWorkflowInvalid, "malformed condition %q", raw)
	}
	c.key = raw
	return c, nil
}

func (c *Condition) parseLiteral(lit string) error {
	switch {
	case strings.HasPrefix(lit, `"`) && strings.HasSuffix(lit, `"`) && len(lit) >= 2:
		c.strVal = lit[1 : len(lit)-1]
		c.litKind = litString
	case strings.HasPrefix(lit, `'`) && strings.HasSuffix(lit, `'`) && len(lit) >= 2:
		c.strVal = lit[1 : len(lit)-1]
		c.litKind = litString
	case lit == "true" || lit == "false":
		c.boolVal = lit == "true"
		c.litKind = litBool
	default:
		n, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return types.Errorf(types.ErrWorkflowInvalid, "invalid literal %q in condition %q", lit, c.raw)
		}
		c.numVal = n
		c.litKind = litNumber
	}

	if c.litKind != litNumber && (c.op == ">" || c.op == "<" || c.op == ">=" || c.op == "<=") {
		return types.Errorf(types.ErrWorkflowInvalid, "ordering comparison needs a numeric literal in %q", c.raw)
	}
	return nil
}

// Eval evaluates the condition against a scope and returns the outcome label
// used for edge matching: "yes"/"no" for boolean results, the value itself
// for bare string keys.
func (c *Condition) Eval(scope map[string]any) (string, error) {
	val, ok := scope[c.key]
	if !ok {
		return "", types.Errorf(types.ErrDecisionNoMatch, "condition key %q not found in run outputs", c.key)
	}

	if c.op == "" {
		switch v := val.(type) {
		case bool:
			return boolLabel(v), nil
		case string:
			return v, nil
		default:
			return boolLabel(truthy(v)), nil
		}
	}

	switch c.litKind {
	case litString:
		s := fmt.Sprintf("%v", val)
		return boolLabel(compareEq(c.op, s == c.strVal)), nil
	case litBool:
		b, isBool := val.(bool)
		if !isBool {
			b = truthy(val)
		}
		return boolLabel(compareEq(c.op, b == c.boolVal)), nil
	default:
		n, ok := asNumber(val)
		if !ok {
			return "", types.Errorf(types.ErrDecisionNoMatch, "condition key %q is not numeric", c.key)
		}
		return boolLabel(compareNum(c.op, n, c.numVal)), nil
	}
}

// Holds evaluates the condition as a boolean guard. A missing key means the
// guard does not hold rather than an error, so conditional branches can fall
// through to the next guard.
func (c *Condition) Holds(scope map[string]any) (bool, error) {
	val, ok := scope[c.key]
	if !ok {
		return false, nil
	}
	if c.op == "" {
		return truthy(val), nil
	}
	label, err := c.Eval(scope)
	if err != nil {
		return false, err
	}
	return label == "yes", nil
}

// String returns the original expression.
func (c *Condition) String() string { return c.raw }

func compareEq(op string, eq bool) bool {
	if op == "!=" {
		return !eq
	}
	return eq
}

func compareNum(op string, a, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	default:
		return a <= b
	}
}

func boolLabel(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		if n, ok := asNumber(v); ok {
			return n != 0
		}
		return true
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
