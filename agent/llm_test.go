package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/internal/util"
	"github.com/obsmesh/obsmesh/model"
	"github.com/obsmesh/obsmesh/tool"
)

func testGuard() core.GuardRailContext {
	return core.GuardRailContext{OrgID: "acme", RoleID: "analyst", UserID: "u1", ConversationID: "c1"}
}

func testView(turns ...core.Turn) core.ConversationView {
	return core.ConversationView{ID: "c1", Turns: turns}
}

func fastRetry() func(o *Options) {
	return WithRetry(util.RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
}

func TestStepFinalAnswer(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{Text: "all quiet", FinishReason: "stop"})
	a := NewLLMAgent("research", "d", m, fastRetry())

	dec, err := a.Step(context.Background(), testView(core.NewUserTurn("status?")), testGuard())
	require.NoError(t, err)
	assert.Equal(t, core.DecisionFinalAnswer, dec.Kind())
	answer, _ := dec.Answer()
	assert.Equal(t, "all quiet", answer)
}

func TestStepToolCall(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{
		ToolCalls:    []model.ToolCall{{ID: "call-1", Name: "flow_search", Arguments: json.RawMessage(`{"text":"ddos","top_k":3}`)}},
		FinishReason: "tool_calls",
	})
	a := NewLLMAgent("research", "d", m, fastRetry())

	dec, err := a.Step(context.Background(), testView(core.NewUserTurn("find ddos flows")), testGuard())
	require.NoError(t, err)
	tc, ok := dec.Call()
	require.True(t, ok)
	assert.Equal(t, "call-1", tc.CallID)
	assert.Equal(t, "flow_search", tc.Name)
	assert.Equal(t, "ddos", tc.Arguments["text"])
	assert.Equal(t, float64(3), tc.Arguments["top_k"])
}

func TestStepHandoff(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{
		ToolCalls: []model.ToolCall{{Name: HandoffToolName, Arguments: json.RawMessage(`{"target":"alerting","reason":"user wants an alert"}`)}},
	})
	a := NewLLMAgent("research", "d", m, fastRetry(),
		WithHandoffTargets(map[string]string{"alerting": "creates alerts"}))

	dec, err := a.Step(context.Background(), testView(core.NewUserTurn("raise an alert")), testGuard())
	require.NoError(t, err)
	target, reason, ok := dec.Target()
	require.True(t, ok)
	assert.Equal(t, "alerting", target)
	assert.Equal(t, "user wants an alert", reason)
}

func TestStepHandoffWithoutTarget(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{ToolCalls: []model.ToolCall{{Name: HandoffToolName, Arguments: json.RawMessage(`{}`)}}})
	a := NewLLMAgent("research", "d", m, fastRetry())

	_, err := a.Step(context.Background(), testView(core.NewUserTurn("x")), testGuard())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindInvalidArguments))
}

func TestStepMalformedArguments(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{ToolCalls: []model.ToolCall{{Name: "flow_search", Arguments: json.RawMessage(`{"text":`)}}})
	a := NewLLMAgent("research", "d", m, fastRetry())

	_, err := a.Step(context.Background(), testView(core.NewUserTurn("x")), testGuard())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindInvalidArguments))
}

type flakyModel struct {
	failures int
	calls    int
}

func (f *flakyModel) Complete(context.Context, model.Request) (model.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return model.Response{}, errors.New("connection reset")
	}
	return model.Response{Text: "recovered", FinishReason: "stop"}, nil
}

func (f *flakyModel) Info() model.Info { return model.Info{Name: "flaky", Provider: "test"} }

func TestStepRetriesTransientModelFailures(t *testing.T) {
	m := &flakyModel{failures: 2}
	a := NewLLMAgent("research", "d", m, fastRetry())

	dec, err := a.Step(context.Background(), testView(core.NewUserTurn("x")), testGuard())
	require.NoError(t, err)
	answer, _ := dec.Answer()
	assert.Equal(t, "recovered", answer)
	assert.Equal(t, 3, m.calls)
}

func TestStepModelUnavailableAfterExhaustion(t *testing.T) {
	m := &flakyModel{failures: 10}
	a := NewLLMAgent("research", "d", m, fastRetry())

	_, err := a.Step(context.Background(), testView(core.NewUserTurn("x")), testGuard())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindModelUnavailable))
	assert.Equal(t, 3, m.calls, "attempts are bounded")
}

func TestStepInstructionsCarryScope(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("research", "d", m, fastRetry(), WithInstructions("Answer tersely."))

	guard := testGuard()
	guard.DeviceID = "dev-7"
	_, err := a.Step(context.Background(), testView(core.NewUserTurn("x")), guard)
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "Answer tersely.")
	assert.Contains(t, reqs[0].Instructions, "acme")
	assert.Contains(t, reqs[0].Instructions, "dev-7")
}

func TestStepTrimsHistory(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("research", "d", m, fastRetry(), WithHistoryLimit(5))

	turns := make([]core.Turn, 0, 20)
	for i := 0; i < 20; i++ {
		turns = append(turns, core.NewUserTurn(fmt.Sprintf("m%d", i)))
	}
	_, err := a.Step(context.Background(), testView(turns...), testGuard())
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Turns, 5)
	assert.Equal(t, "m15", reqs[0].Turns[0].Content)
}

func TestStepExposesHandoffToolDefinition(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewLLMAgent("research", "d", m, fastRetry(),
		WithTools(tool.Descriptor{Name: "flow_search", Description: "x", InputSchema: map[string]any{"type": "object"}}),
		WithHandoffTargets(map[string]string{"insights": "numbers"}))

	_, err := a.Step(context.Background(), testView(core.NewUserTurn("x")), testGuard())
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	names := make([]string, 0, len(reqs[0].Tools))
	for _, d := range reqs[0].Tools {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "flow_search")
	assert.Contains(t, names, HandoffToolName)
}

func TestPrebuiltAgentsPullRegisteredTools(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(tool.NewCreateAlertTool(t.TempDir())))

	alerting := NewAlertingAgent(m, reg, fastRetry())
	assert.Equal(t, AlertingAgentName, alerting.Name())

	_, err := alerting.Step(context.Background(), testView(core.NewUserTurn("x")), testGuard())
	require.NoError(t, err)
	reqs := m.Requests()
	require.Len(t, reqs, 1)

	var hasCreateAlert bool
	for _, d := range reqs[0].Tools {
		if d.Name == "create_alert" {
			hasCreateAlert = true
		}
	}
	assert.True(t, hasCreateAlert)
}
