// Package orchestrator implements the conversation state machine that routes
// user requests to agents, dispatches their tool calls, validates handoffs
// and enforces the run budget. One orchestrator serves many conversations;
// each conversation has at most one active run at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/logging"
	"github.com/obsmesh/obsmesh/tool"
)

// Options configures an Orchestrator.
type Options struct {
	Config   Config
	Policy   RoutingPolicy
	Logger   logging.Logger
	Metrics  *Metrics
	Archiver core.Archiver
}

// Result is the outcome of one orchestration run. ErrKind is empty on
// success; on failure Answer carries the user-facing phrasing for the kind.
type Result struct {
	ConversationID string         `json:"conversation_id"`
	RunID          string         `json:"run_id"`
	Agent          string         `json:"agent"`
	Answer         string         `json:"answer"`
	ErrKind        core.ErrorKind `json:"error_kind,omitempty"`
	Iterations     int            `json:"iterations"`
	Turns          []core.Turn    `json:"turns"`
}

// Orchestrator drives the Routing -> AgentActive -> ToolPending/HandoffPending
// cycle until a terminal turn. It owns the per-conversation single-writer
// discipline: Run never executes concurrently for the same conversation id.
type Orchestrator struct {
	store    core.ConversationStore
	registry *tool.Registry
	agents   map[string]core.Agent
	order    []string
	opts     Options

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New creates an orchestrator over the given store, tool registry and agents.
func New(store core.ConversationStore, registry *tool.Registry, agents []core.Agent, optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := Options{
		Config: DefaultConfig(),
		Policy: NewDefaultPolicy(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("orchestrator needs at least one agent")
	}

	byName := make(map[string]core.Agent, len(agents))
	order := make([]string, 0, len(agents))
	for _, a := range agents {
		if _, dup := byName[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", a.Name())
		}
		byName[a.Name()] = a
		order = append(order, a.Name())
	}

	return &Orchestrator{
		store:    store,
		registry: registry,
		agents:   byName,
		order:    order,
		opts:     opts,
		locks:    map[string]chan struct{}{},
	}, nil
}

// WithConfig overrides the run budget configuration.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithPolicy overrides the routing policy.
func WithPolicy(p RoutingPolicy) func(o *Options) {
	return func(o *Options) { o.Policy = p }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics attaches orchestration metrics.
func WithMetrics(m *Metrics) func(o *Options) {
	return func(o *Options) { o.Metrics = m }
}

// WithArchiver attaches best-effort turn archival.
func WithArchiver(a core.Archiver) func(o *Options) {
	return func(o *Options) { o.Archiver = a }
}

// run carries the mutable state of one orchestration run.
type run struct {
	id      string
	guard   core.GuardRailContext
	agent   string
	limiter *core.StepLimiter
	turns   []core.Turn
	logger  logging.Logger
}

// Run processes one user request to a terminal turn. The guard-rail context
// must be complete; its conversation id selects the conversation.
func (o *Orchestrator) Run(ctx context.Context, guard core.GuardRailContext, query string) (*Result, error) {
	if err := guard.Validate(); err != nil {
		return nil, err
	}

	convID := guard.ConversationID
	if err := o.acquire(ctx, convID); err != nil {
		return nil, err
	}
	defer o.release(convID)

	start := time.Now()
	r := &run{
		id:      core.NewID(),
		guard:   guard,
		limiter: core.NewStepLimiter(o.opts.Config.MaxIterations),
		logger:  o.runLogger(convID),
	}

	conv, err := o.store.Get(convID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	// Ownership is claimed by the first run and binds forever after.
	if conv.OrgID != "" && conv.OrgID != guard.OrgID {
		return nil, core.NewError(core.KindGuardRailViolation,
			"conversation %q belongs to another org", convID)
	}
	if conv.OrgID == "" {
		if err := o.store.SetOwner(convID, guard.OrgID); err != nil {
			return nil, fmt.Errorf("claim conversation: %w", err)
		}
	}

	o.appendTurn(ctx, r, core.NewUserTurn(query))

	r.agent = o.route(conv.CurrentAgent, query)
	if r.agent == "" {
		return nil, fmt.Errorf("routing produced no agent")
	}
	if !o.opts.Config.permits(guard.RoleID, r.agent) {
		res := o.failRun(ctx, r, core.NewError(core.KindUnauthorizedHandoff,
			"role %q may not reach agent %q", guard.RoleID, r.agent))
		o.opts.Metrics.observeRun(string(res.ErrKind), time.Since(start))
		return res, nil
	}
	o.appendTurn(ctx, r, core.NewAuditTurn(fmt.Sprintf("routed to agent %q", r.agent)))

	res := o.loop(ctx, r)
	outcome := "success"
	if res.ErrKind != "" {
		outcome = string(res.ErrKind)
	}
	o.opts.Metrics.observeRun(outcome, time.Since(start))
	return res, nil
}

// loop is the AgentActive cycle: activate the current agent, apply its
// decision, repeat until a terminal turn.
func (o *Orchestrator) loop(ctx context.Context, r *run) *Result {
	for {
		if err := ctx.Err(); err != nil {
			return o.failRun(ctx, r, core.WrapError(core.KindCancelled, err, "run cancelled"))
		}
		if err := r.limiter.Increment(); err != nil {
			return o.failRun(ctx, r, err)
		}

		agent := o.agents[r.agent]
		view, err := o.buildView(r)
		if err != nil {
			return o.failRun(ctx, r, core.WrapError(core.KindRetrievalUnavailable, err, "conversation store unavailable"))
		}

		stepCtx, cancel := context.WithTimeout(ctx, o.opts.Config.StepTimeout)
		decision, err := agent.Step(stepCtx, view, r.guard)
		cancel()
		if err != nil {
			return o.failRun(ctx, r, o.classifyStepErr(ctx, err))
		}

		o.opts.Metrics.observeStep(r.agent, string(decision.Kind()))
		o.logStep(r, decision)

		switch decision.Kind() {
		case core.DecisionFinalAnswer:
			answer, _ := decision.Answer()
			o.appendTurn(ctx, r, core.NewAgentTurn(r.agent, answer))
			o.setMeta(r)
			return o.result(r, answer, "")

		case core.DecisionToolCall:
			call, _ := decision.Call()
			if terminal := o.dispatchTool(ctx, r, call); terminal != nil {
				return terminal
			}

		case core.DecisionHandoff:
			target, reason, _ := decision.Target()
			if terminal := o.applyHandoff(ctx, r, target, reason); terminal != nil {
				return terminal
			}
		}
	}
}

// dispatchTool runs one tool call, appending both the request and result
// turns. Authorization failures are terminal; every other failure becomes an
// error-carrying tool result the agent can react to.
func (o *Orchestrator) dispatchTool(ctx context.Context, r *run, call core.ToolCall) *Result {
	o.appendTurn(ctx, r, core.NewToolCallTurn(r.agent, call))

	stepCtx, cancel := context.WithTimeout(ctx, o.opts.Config.StepTimeout)
	output, err := o.registry.Invoke(stepCtx, call.Name, r.guard, call.Arguments)
	cancel()

	o.opts.Metrics.observeToolCall(call.Name, err)

	if err != nil {
		if kind := core.KindOf(err); kind != "" && kind.Class() == core.ClassAuthorization {
			return o.failRun(ctx, r, err)
		}
		if errors.Is(err, context.Canceled) || core.IsKind(err, core.KindCancelled) {
			return o.failRun(ctx, r, core.WrapError(core.KindCancelled, err, "run cancelled"))
		}
		r.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		o.appendTurn(ctx, r, core.NewToolResultTurn(r.agent, core.ToolResult{
			CallID: call.CallID,
			Name:   call.Name,
			Error:  err.Error(),
		}))
		return nil
	}

	o.appendTurn(ctx, r, core.NewToolResultTurn(r.agent, core.ToolResult{
		CallID: call.CallID,
		Name:   call.Name,
		Output: output,
	}))
	return nil
}

// applyHandoff validates and applies a transfer. Unknown targets and targets
// outside the role's allow-list are terminal authorization failures; no agent
// executes afterwards.
func (o *Orchestrator) applyHandoff(ctx context.Context, r *run, target, reason string) *Result {
	if _, ok := o.agents[target]; !ok {
		return o.failRun(ctx, r, core.NewError(core.KindUnauthorizedHandoff,
			"handoff to unknown agent %q", target))
	}
	if !o.opts.Config.permits(r.guard.RoleID, target) {
		return o.failRun(ctx, r, core.NewError(core.KindUnauthorizedHandoff,
			"role %q may not reach agent %q", r.guard.RoleID, target))
	}

	o.opts.Metrics.observeHandoff(r.agent, target)
	o.appendTurn(ctx, r, core.NewAuditTurn(fmt.Sprintf("handoff %q -> %q: %s", r.agent, target, reason)))
	r.agent = target
	o.setMeta(r)
	return nil
}

// failRun records a terminal failure turn and produces the degraded result.
func (o *Orchestrator) failRun(ctx context.Context, r *run, err error) *Result {
	kind := core.KindOf(err)
	if kind == "" {
		kind = core.KindModelUnavailable
	}
	r.logger.Error("run failed", "agent", r.agent, "kind", string(kind), "error", err)
	o.appendTurn(ctx, r, core.NewErrorTurn(kind, err.Error()))
	o.setMeta(r)
	return o.result(r, kind.UserMessage(), kind)
}

func (o *Orchestrator) classifyStepErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return core.WrapError(core.KindCancelled, err, "run cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.KindModelUnavailable, err, "agent step timed out")
	}
	return err
}

func (o *Orchestrator) result(r *run, answer string, kind core.ErrorKind) *Result {
	return &Result{
		ConversationID: r.guard.ConversationID,
		RunID:          r.id,
		Agent:          r.agent,
		Answer:         answer,
		ErrKind:        kind,
		Iterations:     r.limiter.Count(),
		Turns:          r.turns,
	}
}

func (o *Orchestrator) buildView(r *run) (core.ConversationView, error) {
	history, err := o.store.History(r.guard.ConversationID)
	if err != nil {
		return core.ConversationView{}, err
	}
	turns := make([]core.Turn, 0, len(history))
	for _, t := range history {
		if t.IsConversational() {
			turns = append(turns, t)
		}
	}
	return core.ConversationView{ID: r.guard.ConversationID, Turns: turns, CurrentAgent: r.agent}, nil
}

// appendTurn persists a turn, tracks it on the run and archives it
// best-effort. Persistence failures are logged, not fatal: the in-run slice
// keeps the record for the caller.
func (o *Orchestrator) appendTurn(ctx context.Context, r *run, t core.Turn) {
	if err := o.store.AppendTurn(r.guard.ConversationID, t); err != nil {
		r.logger.Error("append turn failed", "error", err)
	}
	r.turns = append(r.turns, t)

	if o.opts.Archiver != nil {
		if err := o.opts.Archiver.ArchiveTurn(ctx, r.guard, t); err != nil {
			r.logger.Warn("archive turn failed", "error", err)
		}
	}
}

func (o *Orchestrator) setMeta(r *run) {
	if err := o.store.SetMeta(r.guard.ConversationID, r.agent, r.limiter.Count()); err != nil {
		r.logger.Error("persist meta failed", "error", err)
	}
}

// route picks the active agent: a still-valid current agent sticks, otherwise
// the policy decides from the user query.
func (o *Orchestrator) route(currentAgent, query string) string {
	if currentAgent != "" {
		if _, ok := o.agents[currentAgent]; ok {
			return currentAgent
		}
	}
	candidates := make([]Candidate, 0, len(o.order))
	for _, name := range o.order {
		candidates = append(candidates, Candidate{Name: name, Description: o.agents[name].Description()})
	}
	return o.opts.Policy.Route(query, candidates)
}

// acquire takes the per-conversation writer slot. Without QueueOnBusy a held
// slot fails fast with ConversationBusy.
func (o *Orchestrator) acquire(ctx context.Context, convID string) error {
	o.mu.Lock()
	slot, ok := o.locks[convID]
	if !ok {
		slot = make(chan struct{}, 1)
		o.locks[convID] = slot
	}
	o.mu.Unlock()

	if o.opts.Config.QueueOnBusy {
		select {
		case slot <- struct{}{}:
			return nil
		case <-ctx.Done():
			return core.WrapError(core.KindCancelled, ctx.Err(), "cancelled waiting for conversation writer")
		}
	}
	select {
	case slot <- struct{}{}:
		return nil
	default:
		return core.NewError(core.KindConversationBusy, "conversation %q already has an active run", convID)
	}
}

func (o *Orchestrator) release(convID string) {
	o.mu.Lock()
	slot := o.locks[convID]
	o.mu.Unlock()
	<-slot
}

func (o *Orchestrator) runLogger(convID string) logging.Logger {
	if ml, ok := o.opts.Logger.(*logging.MeshLogger); ok {
		return ml.WithConversation(convID, "")
	}
	return o.opts.Logger
}

func (o *Orchestrator) logStep(r *run, d core.Decision) {
	if ml, ok := r.logger.(*logging.MeshLogger); ok {
		ml.LogStep("agent_active", r.agent, d.String(), r.limiter.Count())
		return
	}
	r.logger.Info("orchestration step", "agent", r.agent, "decision", d.String(), "iteration", r.limiter.Count())
}
