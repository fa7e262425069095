package sandbox

import (
	"context"
	"encoding/json"
	"math"

	"github.com/flowforge-ai/flowforge/types"
)

var calculatorSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"operation": {
			"type": "string",
			"enum": ["add", "subtract", "multiply", "divide", "power", "sqrt", "percent"],
			"description": "Arithmetic operation to perform"
		},
		"a": {"type": "number", "description": "First operand"},
		"b": {"type": "number", "description": "Second operand (required for binary operations)"},
		"precision": {
			"type": "integer",
			"minimum": 0,
			"maximum": 15,
			"default": 10,
			"description": "Number of decimal places for the result"
		}
	},
	"required": ["operation", "a"],
	"additionalProperties": false
}`)

// CalculatorTool performs arithmetic operations.
type CalculatorTool struct{}

// NewCalculatorTool creates the calculator built-in.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Description() string {
	return "Performs arithmetic operations: add, subtract, multiply, divide, power, sqrt, percent"
}

func (t *CalculatorTool) ParameterSchema() json.RawMessage { return calculatorSchema }

// Execute runs the operation. Binary operations require both operands.
func (t *CalculatorTool) Execute(_ context.Context, args map[string]any) (any, error) {
	op, _ := args["operation"].(string)
	a, aOK := toFloat(args["a"])
	if !aOK {
		return nil, types.NewError(types.ErrToolValidation, "operand a must be a number")
	}
	b, bOK := toFloat(args["b"])

	precision := 10
	if p, ok := toFloat(args["precision"]); ok {
		precision = int(p)
	}

	var result float64
	switch op {
	case "add", "subtract", "multiply", "divide", "power":
		if !bOK {
			return nil, types.Errorf(types.ErrToolValidation, "operand b is required for %s", op)
		}
		switch op {
		case "add":
			result = a + b
		case "subtract":
			result = a - b
		case "multiply":
			result = a * b
		case "divide":
			if b == 0 {
				return nil, types.NewError(types.ErrToolExecution, "division by zero")
			}
			result = a / b
		case "power":
			result = math.Pow(a, b)
		}
	case "sqrt":
		if a < 0 {
			return nil, types.NewError(types.ErrToolExecution, "cannot take square root of a negative number")
		}
		result = math.Sqrt(a)
	case "percent":
		result = a / 100
	default:
		return nil, types.Errorf(types.ErrToolValidation, "unsupported operation %q", op)
	}

	scale := math.Pow(10, float64(precision))
	result = math.Round(result*scale) / scale

	operands := []float64{a}
	if bOK {
		operands = append(operands, b)
	}
	return map[string]any{
		"operation": op,
		"operands":  operands,
		"result":    result,
		"precision": precision,
	}, nil
}

func toFloat(v any) (float64, bool) {
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
