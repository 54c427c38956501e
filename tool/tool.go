// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities (graph lookups, semantic searches,
// side-effects) with schema validated arguments and consistent error
// handling.
package tool

import (
	"context"
	"sort"

	"github.com/obsmesh/obsmesh/core"
)

// Descriptor is the declarative contract of one tool: its identity, the JSON
// schemas for arguments and results, and the guard-rail attributes that must
// be present before it may run.
type Descriptor struct {
	// Tool identifier (snake_case recommended)
	Name string `json:"name"`
	// Human-readable description shown to models
	Description string `json:"description"`
	// JSON schema describing accepted arguments
	InputSchema map[string]any `json:"input_schema"`
	// JSON schema describing the result shape
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	// Guard-rail attributes that must be non-empty at invocation time
	RequiredGuardRails []string `json:"required_guard_rails,omitempty"`
}

// Tool defines the interface for extending agent capabilities with external
// functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schemas for arguments and results
//   - Never widen the caller's guard-rail scope
//   - Be thread-safe if used concurrently
type Tool interface {
	// Descriptor returns the tool's declarative contract. It must be
	// constant for the lifetime of the tool.
	Descriptor() Descriptor

	// Call executes the tool with already-validated arguments. The guard
	// context carries the caller's tenant scope; implementations must not
	// access data outside it.
	Call(ctx context.Context, guard core.GuardRailContext, args map[string]any) (any, error)
}

// sortDescriptors orders descriptors by name so model-facing tool lists are
// stable across runs.
func sortDescriptors(ds []Descriptor) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Name < ds[j].Name })
}
