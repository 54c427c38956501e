package orchestrator

import "time"

// Config bounds one orchestration run.
type Config struct {
	// MaxIterations is the hard ceiling on agent activations per run.
	MaxIterations int `yaml:"max_iterations"`
	// StepTimeout bounds each agent step and tool invocation.
	StepTimeout time.Duration `yaml:"step_timeout"`
	// QueueOnBusy makes concurrent requests for one conversation wait for
	// the writer instead of failing with ConversationBusy.
	QueueOnBusy bool `yaml:"queue_on_busy"`
	// RolePermissions maps a role id to the agent names it may reach. A
	// missing or empty entry allows all agents.
	RolePermissions map[string][]string `yaml:"role_permissions"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 8,
		StepTimeout:   30 * time.Second,
	}
}

// permits reports whether the role may activate the named agent.
func (c Config) permits(roleID, agent string) bool {
	allowed, ok := c.RolePermissions[roleID]
	if !ok || len(allowed) == 0 {
		return true
	}
	for _, name := range allowed {
		if name == agent {
			return true
		}
	}
	return false
}
