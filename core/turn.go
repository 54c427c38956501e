package core

import (
	"time"

	"github.com/google/uuid"
)

// TurnRole identifies the author class of a turn.
type TurnRole string

const (
	// RoleUser marks the inbound user request.
	RoleUser TurnRole = "user"
	// RoleAgent marks agent output (answers and tool-call requests).
	RoleAgent TurnRole = "agent"
	// RoleTool marks tool execution results.
	RoleTool TurnRole = "tool"
	// RoleSystem marks orchestrator audit records (routing decisions,
	// handoffs, terminal errors). System turns are excluded from the
	// conversational view handed to agents.
	RoleSystem TurnRole = "system"
)

// ToolCall captures an agent's request to execute a named tool.
type ToolCall struct {
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult captures the outcome of a tool invocation. Error holds the
// message when the invocation failed; Output is nil in that case.
type ToolResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Turn is the immutable record of one step in a conversation. Turns are
// append-only: once created and appended to a conversation they are never
// edited. Exactly one of ToolCall / ToolResult is set for tool-related turns;
// plain message turns carry only Content.
type Turn struct {
	ID         string      `json:"id"`
	Role       TurnRole    `json:"role"`
	Agent      string      `json:"agent,omitempty"` // authoring agent for agent/tool turns
	Content    string      `json:"content,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	ErrorKind  ErrorKind   `json:"error_kind,omitempty"` // set on error audit turns
	Timestamp  time.Time   `json:"timestamp"`
}

// NewID generates a unique identifier for turns and runs.
func NewID() string { return uuid.NewString() }

func newTurn(role TurnRole) Turn {
	return Turn{ID: NewID(), Role: role, Timestamp: time.Now().UTC()}
}

// NewUserTurn creates the inbound user message turn.
func NewUserTurn(content string) Turn {
	t := newTurn(RoleUser)
	t.Content = content
	return t
}

// NewAgentTurn creates an agent answer turn.
func NewAgentTurn(agent, content string) Turn {
	t := newTurn(RoleAgent)
	t.Agent = agent
	t.Content = content
	return t
}

// NewToolCallTurn records an agent requesting a tool execution.
func NewToolCallTurn(agent string, call ToolCall) Turn {
	t := newTurn(RoleAgent)
	t.Agent = agent
	t.ToolCall = &call
	return t
}

// NewToolResultTurn records the outcome of a tool execution.
func NewToolResultTurn(agent string, result ToolResult) Turn {
	t := newTurn(RoleTool)
	t.Agent = agent
	t.ToolResult = &result
	return t
}

// NewAuditTurn records an orchestrator state transition for observability.
func NewAuditTurn(content string) Turn {
	t := newTurn(RoleSystem)
	t.Content = content
	return t
}

// NewErrorTurn records a failure, preserving conversation history integrity
// even on error paths.
func NewErrorTurn(kind ErrorKind, content string) Turn {
	t := newTurn(RoleSystem)
	t.ErrorKind = kind
	t.Content = content
	return t
}

// IsConversational reports whether the turn belongs in the view handed to
// agents (user/agent/tool turns; audit records are orchestrator-internal).
func (t Turn) IsConversational() bool { return t.Role != RoleSystem }
