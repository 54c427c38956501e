package core

import (
	"sync"
	"time"
)

// Conversation tracks the ordered turn history and routing metadata for one
// conversation id. It is safe for concurrent access, but by contract only a
// single orchestration run mutates a given conversation at a time; the
// orchestrator enforces that single-writer discipline.
//
// Contract:
//   - Turns are append-only; Append never reorders or rewrites history
//   - History returns a defensive copy
//   - Clone performs deep copies for safe divergence
type Conversation struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id,omitempty"` // owning tenant, set on first run
	Turns        []Turn    `json:"turns"`
	CurrentAgent string    `json:"current_agent"`
	Iterations   int       `json:"iterations"` // cumulative AgentActive entries
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	mu           sync.RWMutex
}

// NewConversation creates an empty conversation with the given id.
func NewConversation(id string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{ID: id, Turns: []Turn{}, Created: now, Updated: now}
}

// Append adds a turn to the history, updating the Updated timestamp.
func (c *Conversation) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Turns = append(c.Turns, t)
	c.Updated = time.Now().UTC()
}

// History returns a copy of the full turn sequence in append order.
func (c *Conversation) History() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]Turn, len(c.Turns))
	copy(turns, c.Turns)
	return turns
}

// ConversationHistory returns the turns suitable for agent context: user,
// agent and tool turns, excluding orchestrator audit records.
func (c *Conversation) ConversationHistory() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]Turn, 0, len(c.Turns))
	for _, t := range c.Turns {
		if t.IsConversational() {
			res = append(res, t)
		}
	}
	return res
}

// Len returns the number of turns recorded.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Turns)
}

// SetOwner records the owning org. Ownership is claimed by the first run and
// never changes afterwards; callers compare it before serving history.
func (c *Conversation) SetOwner(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OrgID = orgID
}

// SetMeta updates routing metadata (current agent, cumulative iterations).
func (c *Conversation) SetMeta(currentAgent string, iterations int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentAgent = currentAgent
	c.Iterations = iterations
	c.Updated = time.Now().UTC()
}

// Clone returns a deep copy of the conversation safe for independent use.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{
		ID:           c.ID,
		OrgID:        c.OrgID,
		Turns:        make([]Turn, len(c.Turns)),
		CurrentAgent: c.CurrentAgent,
		Iterations:   c.Iterations,
		Created:      c.Created,
		Updated:      c.Updated,
	}
	copy(clone.Turns, c.Turns)
	return clone
}

// View produces the read-only snapshot handed to agents for one reasoning
// step. Audit turns are filtered out.
func (c *Conversation) View() ConversationView {
	return ConversationView{
		ID:           c.ID,
		Turns:        c.ConversationHistory(),
		CurrentAgent: c.CurrentAgent,
	}
}

// ConversationView is the read-only snapshot an agent receives. Mutating the
// slice has no effect on stored state.
type ConversationView struct {
	ID           string
	Turns        []Turn
	CurrentAgent string
}

// LastUserMessage returns the content of the most recent user turn ("" when
// no user turn exists).
func (v ConversationView) LastUserMessage() string {
	for i := len(v.Turns) - 1; i >= 0; i-- {
		if v.Turns[i].Role == RoleUser {
			return v.Turns[i].Content
		}
	}
	return ""
}

// ConversationStore persists conversations keyed by conversation id.
// Implementations must preserve append order of turns; they do not need to
// provide cross-conversation transactions.
type ConversationStore interface {
	// Get returns the conversation, creating it lazily when absent.
	Get(id string) (*Conversation, error)
	// Create forces creation (or reset) of a conversation.
	Create(id string) (*Conversation, error)
	// AppendTurn appends a turn to the conversation's history.
	AppendTurn(id string, t Turn) error
	// SetOwner records the org the conversation belongs to.
	SetOwner(id string, orgID string) error
	// SetMeta updates the routing metadata for the conversation.
	SetMeta(id string, currentAgent string, iterations int) error
	// History returns the full ordered turn sequence.
	History(id string) ([]Turn, error)
}
