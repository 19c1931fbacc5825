package mcphost

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/fledge/internal/mcp"
)

// arithmeticCitation is attached to every bundled arithmetic tool.
var arithmeticCitation = mcp.Citation{
	Origin:         "Bundled arithmetic demo tools",
	Implementation: "fledge builtin arithmetic tool set",
}

// twoNumberSchema describes tools that take exactly two numeric operands.
func twoNumberSchema(aDesc, bDesc string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"a": {Type: "number", Description: aDesc},
			"b": {Type: "number", Description: bDesc},
		},
		Required: []string{"a", "b"},
	}
}

// numberArg extracts a numeric argument. Validation has already checked the
// schema, so unexpected types indicate a schema-less call.
func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("argument %q must be a number", key)
}

// formatNumber renders a result without a trailing ".0" for whole numbers.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ArithmeticTools returns the bundled arithmetic tool set, so the binary is
// demoable without any external MCP server.
func ArithmeticTools() []BuiltinTool {
	binary := func(name, desc string, op func(a, b float64) (float64, error)) BuiltinTool {
		return BuiltinTool{
			Name:        name,
			Description: desc,
			InputSchema: twoNumberSchema("first operand", "second operand"),
			Citation:    arithmeticCitation,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				a, err := numberArg(args, "a")
				if err != nil {
					return "", err
				}
				b, err := numberArg(args, "b")
				if err != nil {
					return "", err
				}
				r, err := op(a, b)
				if err != nil {
					return "", err
				}
				return formatNumber(r), nil
			},
		}
	}

	return []BuiltinTool{
		binary("add", "Add two numbers and return their sum.",
			func(a, b float64) (float64, error) { return a + b, nil }),
		binary("subtract", "Subtract the second number from the first.",
			func(a, b float64) (float64, error) { return a - b, nil }),
		binary("multiply", "Multiply two numbers and return their product.",
			func(a, b float64) (float64, error) { return a * b, nil }),
		binary("divide", "Divide the first number by the second.",
			func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				return a / b, nil
			}),
	}
}

// RegisterArithmetic registers all bundled arithmetic tools on h.
func (h *Host) RegisterArithmetic() error {
	for _, t := range ArithmeticTools() {
		if err := h.RegisterBuiltin(t); err != nil {
			return err
		}
	}
	return nil
}
