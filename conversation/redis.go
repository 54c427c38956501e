package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/obsmesh/obsmesh/core"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix namespaces all keys (default "obsmesh").
	Prefix string
	// TTL expires idle conversations; zero keeps them forever.
	TTL time.Duration
}

// RedisStore persists conversations in Redis. Turns live in a list (append
// order is the list order); routing metadata lives in a hash next to it.
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
}

var _ core.ConversationStore = (*RedisStore)(nil)

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{Prefix: "obsmesh"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) func(o *RedisOptions) {
	return func(o *RedisOptions) { o.Prefix = prefix }
}

// WithTTL expires idle conversations after d.
func WithTTL(d time.Duration) func(o *RedisOptions) {
	return func(o *RedisOptions) { o.TTL = d }
}

func (s *RedisStore) turnsKey(id string) string {
	return fmt.Sprintf("%s:conv:%s:turns", s.opts.Prefix, id)
}

func (s *RedisStore) metaKey(id string) string {
	return fmt.Sprintf("%s:conv:%s:meta", s.opts.Prefix, id)
}

// Get returns the conversation, creating it lazily when absent.
func (s *RedisStore) Get(id string) (*core.Conversation, error) {
	ctx := context.Background()

	conv := core.NewConversation(id)
	meta, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get meta: %w", err)
	}
	if agent, ok := meta["current_agent"]; ok {
		iterations, _ := strconv.Atoi(meta["iterations"])
		conv.SetMeta(agent, iterations)
	}
	if org, ok := meta["org_id"]; ok {
		conv.SetOwner(org)
	}
	if created, ok := meta["created"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			conv.Created = ts
		}
	}
	if updated, ok := meta["updated"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			conv.Updated = ts
		}
	}

	turns, err := s.History(id)
	if err != nil {
		return nil, err
	}
	for _, t := range turns {
		conv.Append(t)
	}
	return conv, nil
}

// Create forces creation (or reset) of a conversation.
func (s *RedisStore) Create(id string) (*core.Conversation, error) {
	ctx := context.Background()
	if err := s.client.Del(ctx, s.turnsKey(id), s.metaKey(id)).Err(); err != nil {
		return nil, fmt.Errorf("redis reset: %w", err)
	}
	if err := s.client.HSet(ctx, s.metaKey(id), "created", time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return nil, fmt.Errorf("redis create: %w", err)
	}
	return core.NewConversation(id), nil
}

// AppendTurn appends a turn to the conversation's history.
func (s *RedisStore) AppendTurn(id string, t core.Turn) error {
	ctx := context.Background()
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	if err := s.client.RPush(ctx, s.turnsKey(id), payload).Err(); err != nil {
		return fmt.Errorf("redis append turn: %w", err)
	}
	if err := s.touch(ctx, id); err != nil {
		return err
	}
	return s.expire(ctx, id)
}

// SetOwner records the owning org for the conversation.
func (s *RedisStore) SetOwner(id string, orgID string) error {
	ctx := context.Background()
	if err := s.client.HSet(ctx, s.metaKey(id), "org_id", orgID).Err(); err != nil {
		return fmt.Errorf("redis set owner: %w", err)
	}
	if err := s.touch(ctx, id); err != nil {
		return err
	}
	return s.expire(ctx, id)
}

// touch maintains the meta timestamps: created is written once, updated on
// every mutation.
func (s *RedisStore) touch(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSetNX(ctx, s.metaKey(id), "created", now).Err(); err != nil {
		return fmt.Errorf("redis touch meta: %w", err)
	}
	if err := s.client.HSet(ctx, s.metaKey(id), "updated", now).Err(); err != nil {
		return fmt.Errorf("redis touch meta: %w", err)
	}
	return nil
}

// SetMeta updates the routing metadata for the conversation.
func (s *RedisStore) SetMeta(id string, currentAgent string, iterations int) error {
	ctx := context.Background()
	err := s.client.HSet(ctx, s.metaKey(id),
		"current_agent", currentAgent,
		"iterations", iterations,
	).Err()
	if err != nil {
		return fmt.Errorf("redis set meta: %w", err)
	}
	if err := s.touch(ctx, id); err != nil {
		return err
	}
	return s.expire(ctx, id)
}

// History returns the full ordered turn sequence.
func (s *RedisStore) History(id string) ([]core.Turn, error) {
	ctx := context.Background()
	raw, err := s.client.LRange(ctx, s.turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history: %w", err)
	}
	turns := make([]core.Turn, 0, len(raw))
	for _, item := range raw {
		var t core.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) expire(ctx context.Context, id string) error {
	if s.opts.TTL <= 0 {
		return nil
	}
	if err := s.client.Expire(ctx, s.turnsKey(id), s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return s.client.Expire(ctx, s.metaKey(id), s.opts.TTL).Err()
}
