package tool

import (
	"context"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// tool.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines. Argument validation happens in
// the registry before the function runs, so implementations may index into
// args without re-checking required fields.
type FunctionTool struct {
	desc Descriptor
	fn   func(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit descriptor and
// function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  Descriptor{
//	    Name:        "calculate_sum",
//	    Description: "Calculate the sum of two numbers",
//	    InputSchema: map[string]any{
//	      "type": "object",
//	      "properties": map[string]any{
//	        "a": map[string]any{"type": "number"},
//	        "b": map[string]any{"type": "number"},
//	      },
//	      "required": []string{"a", "b"},
//	    },
//	  },
//	  func(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	desc Descriptor,
	fn func(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{desc: desc, fn: fn}
}

// NewFunctionToolFromStruct derives the input schema from a struct using
// reflection. It is a convenience for simple argument containers.
//
// Example:
//
//	type sumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", sumArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(Descriptor{
		Name:        name,
		Description: description,
		InputSchema: util.CreateSchema(structType),
	}, fn)
}

// Descriptor returns the tool contract.
func (t *FunctionTool) Descriptor() Descriptor { return t.desc }

// Call invokes the wrapped function.
func (t *FunctionTool) Call(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error) {
	return t.fn(ctx, guard, args)
}
