// Package conversation provides ConversationStore implementations: an
// in-memory store for single-process deployments and tests, and a Redis
// store for deployments that need persistence across restarts.
package conversation

import (
	"sync"

	"github.com/obsmesh/obsmesh/core"
)

// InMemoryStore keeps conversations in process memory. Reads return deep
// copies so callers can never mutate stored history directly.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*core.Conversation
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: map[string]*core.Conversation{}}
}

// Get returns a copy of the conversation, creating it lazily when absent.
func (s *InMemoryStore) Get(id string) (*core.Conversation, error) {
	return s.getOrCreate(id).Clone(), nil
}

// Create forces creation (or reset) of a conversation.
func (s *InMemoryStore) Create(id string) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := core.NewConversation(id)
	s.convs[id] = conv
	return conv.Clone(), nil
}

// AppendTurn appends a turn to the conversation's history.
func (s *InMemoryStore) AppendTurn(id string, t core.Turn) error {
	s.getOrCreate(id).Append(t)
	return nil
}

// SetOwner records the owning org for the conversation.
func (s *InMemoryStore) SetOwner(id string, orgID string) error {
	s.getOrCreate(id).SetOwner(orgID)
	return nil
}

// SetMeta updates the routing metadata for the conversation.
func (s *InMemoryStore) SetMeta(id string, currentAgent string, iterations int) error {
	s.getOrCreate(id).SetMeta(currentAgent, iterations)
	return nil
}

// History returns the full ordered turn sequence.
func (s *InMemoryStore) History(id string) ([]core.Turn, error) {
	return s.getOrCreate(id).History(), nil
}

func (s *InMemoryStore) getOrCreate(id string) *core.Conversation {
	s.mu.RLock()
	conv, ok := s.convs[id]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok = s.convs[id]; ok {
		return conv
	}
	conv = core.NewConversation(id)
	s.convs[id] = conv
	return conv
}
