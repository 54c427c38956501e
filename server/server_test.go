package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsmesh/obsmesh/conversation"
	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/orchestrator"
	"github.com/obsmesh/obsmesh/tool"
)

type fixedAgent struct{ answer string }

func (a fixedAgent) Name() string        { return "research" }
func (a fixedAgent) Description() string { return "test agent" }

func (a fixedAgent) Step(context.Context, core.ConversationView, core.GuardRailContext) (core.Decision, error) {
	return core.FinalAnswer(a.answer), nil
}

func newTestServer(t *testing.T) (*Server, core.ConversationStore) {
	t.Helper()
	store := conversation.NewInMemoryStore()
	orch, err := orchestrator.New(store, tool.NewRegistry(), []core.Agent{fixedAgent{answer: "all quiet"}})
	require.NoError(t, err)
	return New(orch, store), store
}

func postMessage(t *testing.T, s *Server, conv, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+conv+"/messages", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func fullHeaders() map[string]string {
	return map[string]string{
		HeaderOrgID:  "acme",
		HeaderRoleID: "analyst",
		HeaderUserID: "u1",
	}
}

func TestPostMessage(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postMessage(t, s, "c1", `{"message":"status?"}`, fullHeaders())

	require.Equal(t, http.StatusOK, rec.Code)
	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "all quiet", res.Answer)
	assert.Equal(t, "c1", res.ConversationID)
	assert.Empty(t, res.ErrKind)
}

func TestPostMessageMissingAttribute(t *testing.T) {
	s, _ := newTestServer(t)
	headers := fullHeaders()
	delete(headers, HeaderOrgID)
	rec := postMessage(t, s, "c1", `{"message":"hi"}`, headers)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(core.KindMissingAttribute), resp.Kind)
	assert.Contains(t, resp.Error, core.AttrOrgID)
}

func TestPostMessageEmptyBody(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postMessage(t, s, "c1", `{}`, fullHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func getTurns(t *testing.T, s *Server, conv string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/"+conv+"/turns", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestGetTurns(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.AppendTurn("c1", core.NewUserTurn("hello")))
	require.NoError(t, store.AppendTurn("c1", core.NewAgentTurn("research", "hi")))
	require.NoError(t, store.SetOwner("c1", "acme"))

	rec := getTurns(t, s, "c1", fullHeaders())

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		ConversationID string      `json:"conversation_id"`
		Turns          []core.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "c1", payload.ConversationID)
	require.Len(t, payload.Turns, 2)
	assert.Equal(t, "hello", payload.Turns[0].Content)
}

func TestGetTurnsRequiresIdentity(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.AppendTurn("c-secret", core.NewUserTurn("acme confidential incident")))
	require.NoError(t, store.SetOwner("c-secret", "acme"))

	rec := getTurns(t, s, "c-secret", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(core.KindMissingAttribute), resp.Kind)
	assert.NotContains(t, rec.Body.String(), "confidential")
}

func TestGetTurnsCrossOrgForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, postMessage(t, s, "c1", `{"message":"status?"}`, fullHeaders()).Code)

	headers := fullHeaders()
	headers[HeaderOrgID] = "globex"
	rec := getTurns(t, s, "c1", headers)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(core.KindGuardRailViolation), resp.Kind)
	assert.NotContains(t, rec.Body.String(), "status?")
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind core.ErrorKind
		want int
	}{
		{core.KindMissingAttribute, http.StatusBadRequest},
		{core.KindGuardRailViolation, http.StatusForbidden},
		{core.KindUnauthorizedHandoff, http.StatusForbidden},
		{core.KindConversationBusy, http.StatusConflict},
		{core.KindRetrievalUnavailable, http.StatusServiceUnavailable},
		{core.KindIterationLimitExceeded, http.StatusTooManyRequests},
		{core.ErrorKind(""), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForKind(tt.kind), string(tt.kind))
	}
}
