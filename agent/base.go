// Package agent provides the agent implementations that plug into the
// orchestrator: a model-driven LLMAgent plus the prebuilt observability
// agents (research, insights, alerting).
package agent

// BaseAgent carries the identity shared by all agent implementations.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent creates the embeddable identity part of an agent.
func NewBaseAgent(name, description string) BaseAgent {
	return BaseAgent{name: name, description: description}
}

// Name returns the unique agent name used for routing and handoffs.
func (a BaseAgent) Name() string { return a.name }

// Description returns the routing description shown to policies and peers.
func (a BaseAgent) Description() string { return a.description }
