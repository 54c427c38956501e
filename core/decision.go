package core

import "fmt"

// DecisionKind discriminates the closed set of outcomes an agent step can
// produce.
type DecisionKind string

const (
	// DecisionFinalAnswer terminates the agent's turn with an answer.
	DecisionFinalAnswer DecisionKind = "final_answer"
	// DecisionToolCall requests execution of a registered tool.
	DecisionToolCall DecisionKind = "tool_call"
	// DecisionHandoff returns control to the orchestrator with a target
	// agent. Agents never transfer control to each other directly.
	DecisionHandoff DecisionKind = "handoff"
)

// Decision is the tagged variant an agent emits per reasoning step. It is a
// closed type: construct values only through FinalAnswer, CallTool and
// Handoff so every decision carries exactly the payload its kind requires.
type Decision struct {
	kind   DecisionKind
	answer string
	call   *ToolCall
	target string
	reason string
}

// FinalAnswer builds a terminal answer decision.
func FinalAnswer(text string) Decision {
	return Decision{kind: DecisionFinalAnswer, answer: text}
}

// CallTool builds a tool-call decision.
func CallTool(call ToolCall) Decision {
	if call.CallID == "" {
		call.CallID = NewID()
	}
	return Decision{kind: DecisionToolCall, call: &call}
}

// Handoff builds a handoff decision naming the target agent plus a
// human-readable reason. The reason is recorded for audit only; it never
// influences control flow.
func Handoff(target, reason string) Decision {
	return Decision{kind: DecisionHandoff, target: target, reason: reason}
}

// Kind returns the variant tag.
func (d Decision) Kind() DecisionKind { return d.kind }

// Answer returns the final answer text; ok is false for other variants.
func (d Decision) Answer() (string, bool) {
	return d.answer, d.kind == DecisionFinalAnswer
}

// Call returns the requested tool call; ok is false for other variants.
func (d Decision) Call() (ToolCall, bool) {
	if d.kind != DecisionToolCall || d.call == nil {
		return ToolCall{}, false
	}
	return *d.call, true
}

// Target returns the handoff target and reason; ok is false for other
// variants.
func (d Decision) Target() (target, reason string, ok bool) {
	return d.target, d.reason, d.kind == DecisionHandoff
}

func (d Decision) String() string {
	switch d.kind {
	case DecisionFinalAnswer:
		return "final_answer"
	case DecisionToolCall:
		return fmt.Sprintf("tool_call(%s)", d.call.Name)
	case DecisionHandoff:
		return fmt.Sprintf("handoff(%s)", d.target)
	default:
		return "invalid"
	}
}
