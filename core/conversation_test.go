package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationAppendOrder(t *testing.T) {
	conv := NewConversation("c1")
	const n = 25
	for i := 0; i < n; i++ {
		conv.Append(NewUserTurn(fmt.Sprintf("message %d", i)))
	}

	history := conv.History()
	require.Len(t, history, n)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("message %d", i), turn.Content)
	}
}

func TestConversationHistoryFiltersAudit(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(NewUserTurn("hello"))
	conv.Append(NewAuditTurn("state=routing agent=research"))
	conv.Append(NewAgentTurn("research", "hi"))
	conv.Append(NewErrorTurn(KindRetrievalUnavailable, "store down"))

	assert.Equal(t, 4, conv.Len())
	filtered := conv.ConversationHistory()
	require.Len(t, filtered, 2)
	assert.Equal(t, RoleUser, filtered[0].Role)
	assert.Equal(t, RoleAgent, filtered[1].Role)
}

func TestConversationHistoryDefensiveCopy(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(NewUserTurn("original"))

	history := conv.History()
	history[0].Content = "mutated"

	assert.Equal(t, "original", conv.History()[0].Content)
}

func TestConversationClone(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(NewUserTurn("hello"))
	conv.SetMeta("research", 2)

	clone := conv.Clone()
	clone.Append(NewUserTurn("only in clone"))

	assert.Equal(t, 1, conv.Len())
	assert.Equal(t, 2, clone.Len())
	assert.Equal(t, "research", clone.CurrentAgent)
	assert.Equal(t, 2, clone.Iterations)
}

func TestViewLastUserMessage(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(NewUserTurn("first"))
	conv.Append(NewAgentTurn("research", "answer"))
	conv.Append(NewUserTurn("second"))

	view := conv.View()
	assert.Equal(t, "second", view.LastUserMessage())
	assert.Equal(t, "c1", view.ID)

	empty := NewConversation("c2").View()
	assert.Empty(t, empty.LastUserMessage())
}

func TestDecisionVariants(t *testing.T) {
	final := FinalAnswer("done")
	assert.Equal(t, DecisionFinalAnswer, final.Kind())
	answer, ok := final.Answer()
	require.True(t, ok)
	assert.Equal(t, "done", answer)
	_, ok = final.Call()
	assert.False(t, ok)

	call := CallTool(ToolCall{Name: "flow_search", Arguments: map[string]any{"text": "ddos"}})
	assert.Equal(t, DecisionToolCall, call.Kind())
	tc, ok := call.Call()
	require.True(t, ok)
	assert.Equal(t, "flow_search", tc.Name)
	assert.NotEmpty(t, tc.CallID, "CallID should be generated when absent")

	handoff := Handoff("alerting", "user asked for an alert")
	target, reason, ok := handoff.Target()
	require.True(t, ok)
	assert.Equal(t, "alerting", target)
	assert.Equal(t, "user asked for an alert", reason)
}

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	err := l.Increment()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIterationLimitExceeded))
	assert.Equal(t, 3, l.Count())

	unlimited := NewStepLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
