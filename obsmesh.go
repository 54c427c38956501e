// Package obsmesh provides a high-level facade over the orchestrator and its
// services (conversation store, tool registry, logging) for embedding the
// observability copilot in another program. Most applications interact with
// this package by:
//  1. Creating a Mesh via New() with one or more agents
//  2. Sending user messages with Send(), scoped by a guard-rail context
//
// The facade delegates run semantics to orchestrator.Orchestrator while
// keeping setup concise. Defaults are safe for local development; production
// deployments supply a Redis-backed store, metrics and a structured logger
// through the options.
package obsmesh

import (
	"context"

	"github.com/obsmesh/obsmesh/conversation"
	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/logging"
	"github.com/obsmesh/obsmesh/orchestrator"
	"github.com/obsmesh/obsmesh/tool"
)

// Options configures the Mesh instance.
type Options struct {
	// Store holds conversation state. Defaults to the in-memory store.
	Store core.ConversationStore
	// Registry holds the tools agents may invoke. Defaults to an empty
	// registry.
	Registry *tool.Registry
	// Config bounds orchestration runs (iteration ceiling, step timeout,
	// role permissions).
	Config orchestrator.Config
	// Logger defaults to the NoOp logger.
	Logger logging.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *orchestrator.Metrics
	// Archiver is optional; nil disables long-term turn archival.
	Archiver core.Archiver
}

// Mesh is the high-level facade aggregating the orchestrator and its services.
type Mesh struct {
	opts  Options
	orch  *orchestrator.Orchestrator
	store core.ConversationStore
}

// New creates a Mesh from the given agents with optional overrides. Any unset
// service falls back to an in-memory default.
func New(agents []core.Agent, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Config: orchestrator.DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = conversation.NewInMemoryStore()
	}
	if opts.Registry == nil {
		opts.Registry = tool.NewRegistry()
	}

	orch, err := orchestrator.New(opts.Store, opts.Registry, agents,
		orchestrator.WithConfig(opts.Config),
		orchestrator.WithLogger(opts.Logger),
		orchestrator.WithMetrics(opts.Metrics),
		orchestrator.WithArchiver(opts.Archiver),
	)
	if err != nil {
		return nil, err
	}
	return &Mesh{opts: opts, orch: orch, store: opts.Store}, nil
}

// WithStore overrides the conversation store.
func WithStore(store core.ConversationStore) func(o *Options) {
	return func(o *Options) { o.Store = store }
}

// WithRegistry overrides the tool registry.
func WithRegistry(reg *tool.Registry) func(o *Options) {
	return func(o *Options) { o.Registry = reg }
}

// WithConfig overrides the orchestration config.
func WithConfig(cfg orchestrator.Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithLogger overrides the logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics enables orchestration metrics.
func WithMetrics(m *orchestrator.Metrics) func(o *Options) {
	return func(o *Options) { o.Metrics = m }
}

// WithArchiver enables long-term turn archival.
func WithArchiver(a core.Archiver) func(o *Options) {
	return func(o *Options) { o.Archiver = a }
}

// Send routes one user message through the orchestrator under the given
// guard-rail context and returns the run result.
func (m *Mesh) Send(ctx context.Context, guard core.GuardRailContext, message string) (*orchestrator.Result, error) {
	return m.orch.Run(ctx, guard, message)
}

// History returns the stored turns for a conversation.
func (m *Mesh) History(conversationID string) ([]core.Turn, error) {
	return m.store.History(conversationID)
}
