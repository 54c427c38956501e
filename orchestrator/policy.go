package orchestrator

import "strings"

// Candidate describes one agent available for routing.
type Candidate struct {
	Name        string
	Description string
}

// RoutingPolicy picks the first agent for a new turn. Policies only see the
// user query and the candidate list; conversation state stays with the
// orchestrator.
type RoutingPolicy interface {
	Route(query string, candidates []Candidate) string
}

// KeywordRule maps trigger substrings to an agent.
type KeywordRule struct {
	Keywords []string
	Agent    string
}

// KeywordPolicy routes on case-insensitive substring matches, falling back
// to Default. Rules are evaluated in order; the first match wins.
type KeywordPolicy struct {
	Rules   []KeywordRule
	Default string
}

var _ RoutingPolicy = (*KeywordPolicy)(nil)

// NewDefaultPolicy routes alerting phrasing to the alerting agent, listing
// phrasing to insights, and everything else to research.
func NewDefaultPolicy() *KeywordPolicy {
	return &KeywordPolicy{
		Rules: []KeywordRule{
			{Keywords: []string{"alert", "notify", "escalate"}, Agent: "alerting"},
			{Keywords: []string{"recent", "latest", "list", "count", "how many"}, Agent: "insights"},
		},
		Default: "research",
	}
}

// Route implements RoutingPolicy.
func (p *KeywordPolicy) Route(query string, candidates []Candidate) string {
	available := map[string]bool{}
	for _, c := range candidates {
		available[c.Name] = true
	}

	lowered := strings.ToLower(query)
	for _, rule := range p.Rules {
		if !available[rule.Agent] {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Agent
			}
		}
	}
	if available[p.Default] {
		return p.Default
	}
	if len(candidates) > 0 {
		return candidates[0].Name
	}
	return ""
}
