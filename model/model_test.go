package model

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsmesh/obsmesh/core"
)

func TestMockModelCannedResponse(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("hello", "hi there")

	resp, err := m.Complete(context.Background(), Request{Turns: []core.Turn{core.NewUserTurn("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestMockModelScriptedResponsesWin(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("hello", "canned")
	m.Enqueue(Response{ToolCalls: []ToolCall{{ID: "1", Name: "flow_search", Arguments: json.RawMessage(`{"text":"x"}`)}}, FinishReason: "tool_calls"})
	m.Enqueue(Response{Text: "done", FinishReason: "stop"})

	first, err := m.Complete(context.Background(), Request{Turns: []core.Turn{core.NewUserTurn("hello")}})
	require.NoError(t, err)
	require.Len(t, first.ToolCalls, 1)
	assert.Equal(t, "flow_search", first.ToolCalls[0].Name)

	second, err := m.Complete(context.Background(), Request{Turns: []core.Turn{core.NewUserTurn("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "done", second.Text)

	third, err := m.Complete(context.Background(), Request{Turns: []core.Turn{core.NewUserTurn("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "canned", third.Text, "canned responses resume once the script is drained")
}

func TestMockModelFail(t *testing.T) {
	m := NewMockModel("mock", "test")
	boom := errors.New("provider down")
	m.Fail(boom)
	_, err := m.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, boom)

	m.Fail(nil)
	_, err = m.Complete(context.Background(), Request{})
	require.NoError(t, err)
}

func TestMockModelRecordsRequests(t *testing.T) {
	m := NewMockModel("mock", "test")
	_, err := m.Complete(context.Background(), Request{Instructions: "be brief"})
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be brief", reqs[0].Instructions)
}
