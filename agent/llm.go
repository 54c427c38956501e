package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/internal/util"
	"github.com/obsmesh/obsmesh/logging"
	"github.com/obsmesh/obsmesh/model"
	"github.com/obsmesh/obsmesh/tool"
)

// HandoffToolName is the synthetic function exposed to models for requesting
// a transfer to a peer agent. It is intercepted here and never dispatched to
// the tool registry.
const HandoffToolName = "handoff_to_agent"

// Options configures an LLMAgent.
type Options struct {
	Instructions   string
	Tools          []tool.Descriptor
	HandoffTargets map[string]string // name -> description of peer agents
	HistoryLimit   int
	Retry          util.RetryConfig
	Logger         logging.Logger
}

// LLMAgent drives one model to produce decisions. Each Step is stateless:
// everything the model sees comes from the conversation view and the
// guard-rail context passed in, so the same agent value serves every
// conversation concurrently.
type LLMAgent struct {
	BaseAgent
	model model.Model
	opts  Options
}

var _ core.Agent = (*LLMAgent)(nil)

// NewLLMAgent creates a model-backed agent.
func NewLLMAgent(name, description string, m model.Model, optFns ...func(o *Options)) *LLMAgent {
	opts := Options{
		HistoryLimit: 40,
		Retry:        util.DefaultRetryConfig(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LLMAgent{BaseAgent: NewBaseAgent(name, description), model: m, opts: opts}
}

// WithInstructions sets the system instructions.
func WithInstructions(instructions string) func(o *Options) {
	return func(o *Options) { o.Instructions = instructions }
}

// WithTools exposes tool contracts to the model.
func WithTools(descs ...tool.Descriptor) func(o *Options) {
	return func(o *Options) { o.Tools = append(o.Tools, descs...) }
}

// WithHandoffTargets declares the peer agents this agent may hand off to.
func WithHandoffTargets(targets map[string]string) func(o *Options) {
	return func(o *Options) { o.HandoffTargets = targets }
}

// WithHistoryLimit bounds how many trailing turns reach the model.
func WithHistoryLimit(n int) func(o *Options) {
	return func(o *Options) { o.HistoryLimit = n }
}

// WithRetry overrides the transient-failure retry configuration.
func WithRetry(cfg util.RetryConfig) func(o *Options) {
	return func(o *Options) { o.Retry = cfg }
}

// WithLogger sets the agent logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Step runs one reasoning step: build the request, call the model with
// bounded retries, and map the completion onto a closed decision.
func (a *LLMAgent) Step(ctx context.Context, view core.ConversationView, guard core.GuardRailContext) (core.Decision, error) {
	req := model.Request{
		Instructions: a.buildInstructions(guard),
		Turns:        a.trimHistory(view.Turns),
		Tools:        a.buildToolDefs(),
	}

	start := time.Now()
	var resp model.Response
	err := util.Retry(ctx, a.opts.Retry, retryableModelErr, func(ctx context.Context) error {
		var callErr error
		resp, callErr = a.model.Complete(ctx, req)
		return callErr
	})
	a.logModelCall(time.Since(start), resp, err)
	if err != nil {
		if core.KindOf(err) != "" {
			return core.Decision{}, err
		}
		return core.Decision{}, core.WrapError(core.KindModelUnavailable, err, "model %q unreachable", a.model.Info().Name)
	}

	return a.mapResponse(resp)
}

func (a *LLMAgent) buildInstructions(guard core.GuardRailContext) string {
	var b strings.Builder
	b.WriteString(a.opts.Instructions)
	b.WriteString("\n\n## Caller scope\n")
	fmt.Fprintf(&b, "Organization: %s\nRole: %s\n", guard.OrgID, guard.RoleID)
	if guard.DeviceID != "" {
		fmt.Fprintf(&b, "Device focus: %s\n", guard.DeviceID)
	}
	b.WriteString("All data access is already scoped to this organization. Never claim access to other tenants.\n")

	if len(a.opts.HandoffTargets) > 0 {
		b.WriteString("\n## Peer agents\n")
		b.WriteString("When a request falls outside your specialty, call " + HandoffToolName + " with one of:\n")
		for name, desc := range a.opts.HandoffTargets {
			fmt.Fprintf(&b, "- %s: %s\n", name, desc)
		}
	}
	return b.String()
}

func (a *LLMAgent) trimHistory(turns []core.Turn) []core.Turn {
	if a.opts.HistoryLimit <= 0 || len(turns) <= a.opts.HistoryLimit {
		return turns
	}
	return turns[len(turns)-a.opts.HistoryLimit:]
}

func (a *LLMAgent) buildToolDefs() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(a.opts.Tools)+1)
	for _, d := range a.opts.Tools {
		defs = append(defs, model.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		})
	}
	if len(a.opts.HandoffTargets) > 0 {
		targets := make([]string, 0, len(a.opts.HandoffTargets))
		for name := range a.opts.HandoffTargets {
			targets = append(targets, name)
		}
		defs = append(defs, model.ToolDefinition{
			Name:        HandoffToolName,
			Description: "Transfer the conversation to a peer agent better suited for the request.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{"type": "string", "enum": targets},
					"reason": map[string]any{"type": "string"},
				},
				"required": []string{"target"},
			},
		})
	}
	return defs
}

// mapResponse converts a completion into exactly one decision. Tool calls win
// over text; the handoff pseudo-tool becomes a Handoff decision.
func (a *LLMAgent) mapResponse(resp model.Response) (core.Decision, error) {
	if len(resp.ToolCalls) == 0 {
		return core.FinalAnswer(resp.Text), nil
	}

	tc := resp.ToolCalls[0]
	args := map[string]any{}
	if len(tc.Arguments) > 0 {
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return core.Decision{}, core.WrapError(core.KindInvalidArguments, err,
				"model produced malformed arguments for %q", tc.Name)
		}
	}

	if tc.Name == HandoffToolName {
		target, _ := args["target"].(string)
		reason, _ := args["reason"].(string)
		if target == "" {
			return core.Decision{}, core.NewError(core.KindInvalidArguments, "handoff request without a target")
		}
		return core.Handoff(target, reason), nil
	}

	return core.CallTool(core.ToolCall{CallID: tc.ID, Name: tc.Name, Arguments: args}), nil
}

func (a *LLMAgent) logModelCall(dur time.Duration, resp model.Response, err error) {
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	if ml, ok := a.opts.Logger.(*logging.MeshLogger); ok {
		ml.LogModelCall(a.model.Info().Name, tokens, dur, err == nil, err)
		return
	}
	if err != nil {
		a.opts.Logger.Error("model call failed", "agent", a.Name(), "model", a.model.Info().Name, "error", err)
		return
	}
	a.opts.Logger.Debug("model call completed", "agent", a.Name(), "model", a.model.Info().Name, "duration", dur, "tokens", tokens)
}

// retryableModelErr retries everything except classified non-transient
// errors. Provider errors arrive unclassified and stay retryable.
func retryableModelErr(err error) bool {
	if err == nil {
		return false
	}
	if kind := core.KindOf(err); kind != "" {
		return kind.Retryable()
	}
	return true
}
