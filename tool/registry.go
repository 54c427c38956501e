package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry is the single dispatch point for tool execution. Registration
// compiles both schemas once; every invocation then validates the guard-rail
// context, the arguments and the result before anything is returned to an
// agent.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	opts    RegistryOptions
}

type registryEntry struct {
	tool   Tool
	desc   Descriptor
	input  *gojsonschema.Schema
	output *gojsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{entries: map[string]*registryEntry{}, opts: opts}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger logging.Logger) func(o *RegistryOptions) {
	return func(o *RegistryOptions) { o.Logger = logger }
}

// Register adds a tool, compiling its schemas. Registering a second tool
// under an existing name is an error; replacement must be explicit via
// Deregister.
func (r *Registry) Register(t Tool) error {
	desc := t.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if desc.InputSchema == nil {
		return fmt.Errorf("tool %q has no input schema", desc.Name)
	}

	input, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.InputSchema))
	if err != nil {
		return fmt.Errorf("tool %q: compile input schema: %w", desc.Name, err)
	}
	var output *gojsonschema.Schema
	if desc.OutputSchema != nil {
		output, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.OutputSchema))
		if err != nil {
			return fmt.Errorf("tool %q: compile output schema: %w", desc.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("tool %q already registered", desc.Name)
	}
	r.entries[desc.Name] = &registryEntry{tool: t, desc: desc, input: input, output: output}
	r.opts.Logger.Debug("tool registered", "tool", desc.Name)
	return nil
}

// Deregister removes a tool by name (no-op when absent).
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Resolve returns the descriptor for a name or an UnknownTool error.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return Descriptor{}, core.NewError(core.KindUnknownTool, "tool %q not registered", name)
	}
	return entry.desc, nil
}

// Descriptors returns all registered descriptors, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		ds = append(ds, e.desc)
	}
	sortDescriptors(ds)
	return ds
}

// Invoke dispatches one tool call. The pipeline is fixed: resolve, check the
// guard-rail context, validate arguments, execute, validate the result. Any
// failure surfaces as a classified error and the tool never runs on invalid
// input.
func (r *Registry) Invoke(ctx context.Context, name string, guard core.GuardRailContext, args map[string]any) (any, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.KindUnknownTool, "tool %q not registered", name)
	}

	if err := guard.Validate(); err != nil {
		return nil, err
	}
	if err := guard.Require(entry.desc.RequiredGuardRails...); err != nil {
		return nil, err
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := validate(entry.input, args); err != nil {
		return nil, core.NewError(core.KindInvalidArguments, "tool %q: %s", name, err).
			WithDetails(map[string]any{"tool": name})
	}

	start := time.Now()
	result, err := entry.tool.Call(ctx, guard, args)
	r.logCall(name, time.Since(start), err)
	if err != nil {
		if core.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}

	if entry.output != nil {
		if err := validate(entry.output, result); err != nil {
			return nil, core.NewError(core.KindInvalidToolResult, "tool %q returned invalid result: %s", name, err)
		}
	}
	return result, nil
}

func (r *Registry) logCall(name string, dur time.Duration, err error) {
	if ml, ok := r.opts.Logger.(*logging.MeshLogger); ok {
		ml.LogToolCall(name, dur, err == nil, err)
		return
	}
	if err != nil {
		r.opts.Logger.Error("tool execution failed", "tool", name, "duration", dur, "error", err)
		return
	}
	r.opts.Logger.Info("tool execution completed", "tool", name, "duration", dur)
}

func validate(schema *gojsonschema.Schema, doc any) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
