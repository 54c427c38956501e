package core

import "context"

// Agent is a bounded reasoning component: given a read-only conversation view
// and the request's guard-rail context it produces exactly one Decision.
//
// Implementations must:
//   - Respect context cancellation and deadlines (the orchestrator applies a
//     per-step timeout)
//   - Treat the view as immutable
//   - Never invoke another agent; inter-agent transfer happens only through
//     Handoff decisions mediated by the orchestrator
//
// Agents are stateless between steps: all conversational state lives in the
// view, which the orchestrator refreshes after every tool result.
type Agent interface {
	Name() string
	Description() string
	Step(ctx context.Context, view ConversationView, guard GuardRailContext) (Decision, error)
}
