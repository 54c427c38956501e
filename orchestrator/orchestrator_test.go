package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsmesh/obsmesh/conversation"
	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/tool"
)

func testGuard(conv string) core.GuardRailContext {
	return core.GuardRailContext{OrgID: "acme", RoleID: "analyst", UserID: "u1", ConversationID: conv}
}

// scriptAgent plays back a fixed sequence of decisions.
type scriptAgent struct {
	name      string
	decisions []core.Decision
	errs      []error
	block     chan struct{} // when set, Step waits for a signal or ctx

	mu    sync.Mutex
	calls int
}

func (a *scriptAgent) Name() string        { return a.name }
func (a *scriptAgent) Description() string { return a.name + " test agent" }

func (a *scriptAgent) Step(ctx context.Context, _ core.ConversationView, _ core.GuardRailContext) (core.Decision, error) {
	a.mu.Lock()
	idx := a.calls
	a.calls++
	a.mu.Unlock()

	if a.block != nil {
		select {
		case <-ctx.Done():
			return core.Decision{}, ctx.Err()
		case <-a.block:
		}
	}
	if idx < len(a.errs) && a.errs[idx] != nil {
		return core.Decision{}, a.errs[idx]
	}
	if idx < len(a.decisions) {
		return a.decisions[idx], nil
	}
	return core.FinalAnswer("default answer"), nil
}

func (a *scriptAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// recorderTool records invocations and returns a fixed payload.
type callRecorder struct {
	mu    sync.Mutex
	calls []core.GuardRailContext
}

func recorderTool(rec *callRecorder) tool.Tool {
	return tool.NewFunctionTool(tool.Descriptor{
		Name:        "trace",
		Description: "records invocations",
		InputSchema: map[string]any{"type": "object"},
		OutputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"ok": map[string]any{"type": "boolean"}},
			"required":   []string{"ok"},
		},
	}, func(_ context.Context, guard core.GuardRailContext, _ map[string]any) (any, error) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, guard)
		rec.mu.Unlock()
		return map[string]any{"ok": true}, nil
	})
}

func newOrchestrator(t *testing.T, agents []core.Agent, optFns ...func(o *Options)) (*Orchestrator, *callRecorder) {
	t.Helper()
	rec := &callRecorder{}
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(recorderTool(rec)))

	o, err := New(conversation.NewInMemoryStore(), reg, agents, optFns...)
	require.NoError(t, err)
	return o, rec
}

func TestRunToolCallThenAnswer(t *testing.T) {
	research := &scriptAgent{name: "research", decisions: []core.Decision{
		core.CallTool(core.ToolCall{Name: "trace", Arguments: map[string]any{}}),
		core.FinalAnswer("3 suspicious flows found"),
	}}
	o, rec := newOrchestrator(t, []core.Agent{research})

	res, err := o.Run(context.Background(), testGuard("c1"), "find suspicious ddos flows")
	require.NoError(t, err)

	assert.Empty(t, res.ErrKind)
	assert.Equal(t, "3 suspicious flows found", res.Answer)
	assert.Equal(t, "research", res.Agent)
	assert.Equal(t, 2, res.Iterations)

	// user, routing audit, tool call, tool result, final answer
	require.Len(t, res.Turns, 5)
	assert.Equal(t, core.RoleUser, res.Turns[0].Role)
	assert.Equal(t, core.RoleSystem, res.Turns[1].Role)
	require.NotNil(t, res.Turns[2].ToolCall)
	require.NotNil(t, res.Turns[3].ToolResult)
	assert.Equal(t, res.Turns[2].ToolCall.CallID, res.Turns[3].ToolResult.CallID)
	assert.Equal(t, core.RoleAgent, res.Turns[4].Role)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "acme", rec.calls[0].OrgID)
}

func TestRunRejectsIncompleteGuard(t *testing.T) {
	o, _ := newOrchestrator(t, []core.Agent{&scriptAgent{name: "research"}})
	_, err := o.Run(context.Background(), core.GuardRailContext{OrgID: "acme"}, "hi")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindGuardRailViolation))
}

func TestRunIterationCeiling(t *testing.T) {
	looping := &scriptAgent{name: "research"}
	// Always asks for another tool call.
	for i := 0; i < 20; i++ {
		looping.decisions = append(looping.decisions, core.CallTool(core.ToolCall{Name: "trace", Arguments: map[string]any{}}))
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	o, _ := newOrchestrator(t, []core.Agent{looping}, WithConfig(cfg))

	res, err := o.Run(context.Background(), testGuard("c1"), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, core.KindIterationLimitExceeded, res.ErrKind)
	assert.Equal(t, core.KindIterationLimitExceeded.UserMessage(), res.Answer)
	assert.Equal(t, 3, looping.callCount(), "the ceiling bounds agent activations")

	last := res.Turns[len(res.Turns)-1]
	assert.Equal(t, core.RoleSystem, last.Role)
	assert.Equal(t, core.KindIterationLimitExceeded, last.ErrorKind)
}

func TestRunHandoff(t *testing.T) {
	research := &scriptAgent{name: "research", decisions: []core.Decision{
		core.Handoff("alerting", "user wants an alert"),
	}}
	alerting := &scriptAgent{name: "alerting", decisions: []core.Decision{
		core.FinalAnswer("alert created"),
	}}
	o, _ := newOrchestrator(t, []core.Agent{research, alerting})

	res, err := o.Run(context.Background(), testGuard("c1"), "investigate this")
	require.NoError(t, err)
	assert.Empty(t, res.ErrKind)
	assert.Equal(t, "alert created", res.Answer)
	assert.Equal(t, "alerting", res.Agent)
	assert.Equal(t, 1, research.callCount())
	assert.Equal(t, 1, alerting.callCount())
}

func TestRunUnauthorizedHandoffStopsExecution(t *testing.T) {
	research := &scriptAgent{name: "research", decisions: []core.Decision{
		core.Handoff("alerting", "try to escalate"),
	}}
	alerting := &scriptAgent{name: "alerting"}
	cfg := DefaultConfig()
	cfg.RolePermissions = map[string][]string{"analyst": {"research"}}
	o, _ := newOrchestrator(t, []core.Agent{research, alerting}, WithConfig(cfg))

	res, err := o.Run(context.Background(), testGuard("c1"), "investigate this")
	require.NoError(t, err)
	assert.Equal(t, core.KindUnauthorizedHandoff, res.ErrKind)
	assert.Zero(t, alerting.callCount(), "the target agent never executes")
}

func TestRunHandoffToUnknownAgent(t *testing.T) {
	research := &scriptAgent{name: "research", decisions: []core.Decision{
		core.Handoff("ghost", ""),
	}}
	o, _ := newOrchestrator(t, []core.Agent{research})

	res, err := o.Run(context.Background(), testGuard("c1"), "investigate")
	require.NoError(t, err)
	assert.Equal(t, core.KindUnauthorizedHandoff, res.ErrKind)
}

func TestRunInitialRoutingRespectsRolePermissions(t *testing.T) {
	research := &scriptAgent{name: "research"}
	cfg := DefaultConfig()
	cfg.RolePermissions = map[string][]string{"analyst": {"insights"}}
	o, _ := newOrchestrator(t, []core.Agent{research}, WithConfig(cfg))

	res, err := o.Run(context.Background(), testGuard("c1"), "anything")
	require.NoError(t, err)
	assert.Equal(t, core.KindUnauthorizedHandoff, res.ErrKind)
	assert.Zero(t, research.callCount())
}

func TestRunConversationBusy(t *testing.T) {
	block := make(chan struct{})
	slow := &scriptAgent{name: "research", block: block}
	o, _ := newOrchestrator(t, []core.Agent{slow})

	done := make(chan *Result, 1)
	go func() {
		res, _ := o.Run(context.Background(), testGuard("c1"), "first")
		done <- res
	}()

	// Wait until the first run holds the writer slot.
	require.Eventually(t, func() bool { return slow.callCount() > 0 }, time.Second, time.Millisecond)

	_, err := o.Run(context.Background(), testGuard("c1"), "second")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConversationBusy))

	// A different conversation is unaffected.
	block2 := testGuard("c2")
	go func() { close(block) }()
	res, err := o.Run(context.Background(), block2, "other conversation")
	require.NoError(t, err)
	assert.Empty(t, res.ErrKind)

	<-done
}

func TestRunQueueOnBusySerializes(t *testing.T) {
	agent := &scriptAgent{name: "research"}
	cfg := DefaultConfig()
	cfg.QueueOnBusy = true
	o, _ := newOrchestrator(t, []core.Agent{agent}, WithConfig(cfg))

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := o.Run(context.Background(), testGuard("c1"), "hello")
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Empty(t, res.ErrKind)
	}
	assert.Equal(t, 4, agent.callCount())
}

func TestRunCancellation(t *testing.T) {
	block := make(chan struct{})
	slow := &scriptAgent{name: "research", block: block}
	o, _ := newOrchestrator(t, []core.Agent{slow})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		require.Eventually(t, func() bool { return slow.callCount() > 0 }, time.Second, time.Millisecond)
		cancel()
	}()

	res, err := o.Run(ctx, testGuard("c1"), "slow question")
	require.NoError(t, err)
	assert.Equal(t, core.KindCancelled, res.ErrKind)

	last := res.Turns[len(res.Turns)-1]
	assert.Equal(t, core.KindCancelled, last.ErrorKind)
}

func TestRunStepTimeout(t *testing.T) {
	slow := &scriptAgent{name: "research", block: make(chan struct{})} // never signalled
	cfg := DefaultConfig()
	cfg.StepTimeout = 20 * time.Millisecond
	o, _ := newOrchestrator(t, []core.Agent{slow}, WithConfig(cfg))

	res, err := o.Run(context.Background(), testGuard("c1"), "slow question")
	require.NoError(t, err)
	assert.Equal(t, core.KindModelUnavailable, res.ErrKind)
}

func TestRunToolFailureSurfacesToAgent(t *testing.T) {
	agent := &scriptAgent{name: "research", decisions: []core.Decision{
		core.CallTool(core.ToolCall{Name: "missing_tool", Arguments: map[string]any{}}),
		core.FinalAnswer("recovered without the tool"),
	}}
	o, _ := newOrchestrator(t, []core.Agent{agent})

	res, err := o.Run(context.Background(), testGuard("c1"), "query")
	require.NoError(t, err)
	assert.Empty(t, res.ErrKind)
	assert.Equal(t, "recovered without the tool", res.Answer)

	var errResult *core.ToolResult
	for _, turn := range res.Turns {
		if turn.ToolResult != nil {
			errResult = turn.ToolResult
		}
	}
	require.NotNil(t, errResult)
	assert.Contains(t, errResult.Error, "missing_tool")
}

func TestRunStickyAgentAcrossRuns(t *testing.T) {
	research := &scriptAgent{name: "research", decisions: []core.Decision{
		core.Handoff("insights", "numbers question"),
	}}
	insights := &scriptAgent{name: "insights", decisions: []core.Decision{
		core.FinalAnswer("42 flows"),
		core.FinalAnswer("still me"),
	}}
	o, _ := newOrchestrator(t, []core.Agent{research, insights})

	first, err := o.Run(context.Background(), testGuard("c1"), "investigate flows")
	require.NoError(t, err)
	assert.Equal(t, "insights", first.Agent)

	second, err := o.Run(context.Background(), testGuard("c1"), "and now?")
	require.NoError(t, err)
	assert.Equal(t, "insights", second.Agent, "the conversation stays with the last active agent")
	assert.Equal(t, 1, research.callCount())
}

type archiveRecorder struct {
	mu    sync.Mutex
	turns []core.Turn
}

func (a *archiveRecorder) ArchiveTurn(_ context.Context, _ core.GuardRailContext, t core.Turn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = append(a.turns, t)
	return nil
}

func TestRunArchivesTurns(t *testing.T) {
	arch := &archiveRecorder{}
	agent := &scriptAgent{name: "research", decisions: []core.Decision{core.FinalAnswer("done")}}
	o, _ := newOrchestrator(t, []core.Agent{agent}, WithArchiver(arch))

	res, err := o.Run(context.Background(), testGuard("c1"), "archive me")
	require.NoError(t, err)

	arch.mu.Lock()
	defer arch.mu.Unlock()
	assert.Len(t, arch.turns, len(res.Turns))
}

func TestRunRejectsForeignOrgConversation(t *testing.T) {
	agent := &scriptAgent{name: "research", decisions: []core.Decision{
		core.FinalAnswer("first"), core.FinalAnswer("second"),
	}}
	store := conversation.NewInMemoryStore()
	o, err := New(store, tool.NewRegistry(), []core.Agent{agent})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), testGuard("c1"), "claim it")
	require.NoError(t, err)

	foreign := testGuard("c1")
	foreign.OrgID = "globex"
	_, err = o.Run(context.Background(), foreign, "steal it")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindGuardRailViolation))

	history, err := store.History("c1")
	require.NoError(t, err)
	for _, turn := range history {
		assert.NotEqual(t, "steal it", turn.Content, "the foreign run never touches the conversation")
	}
	assert.Equal(t, 1, agent.callCount())
}

type failingArchiver struct{}

func (failingArchiver) ArchiveTurn(context.Context, core.GuardRailContext, core.Turn) error {
	return errors.New("graph down")
}

func TestRunSurvivesArchiverFailure(t *testing.T) {
	agent := &scriptAgent{name: "research", decisions: []core.Decision{core.FinalAnswer("done")}}
	o, _ := newOrchestrator(t, []core.Agent{agent}, WithArchiver(failingArchiver{}))

	res, err := o.Run(context.Background(), testGuard("c1"), "archive me")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Empty(t, res.ErrKind, "archival is best-effort and never fails a run")
}
