package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/memory"
)

// ConversationStore keeps each conversation as one JSON value whose
// expiry is refreshed on every save.
type ConversationStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewConversationStore creates a store on an existing client.
func NewConversationStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *ConversationStore {
	return &ConversationStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *ConversationStore) key(id string) string {
	return s.keyPrefix + memory.ConversationKey(id)
}

// Load returns the stored state or conversation.ErrNotFound.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	if id == "" {
		return nil, conversation.ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, conversation.ErrNotFound
		}
		return nil, err
	}

	var st conversation.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	st.Normalize()
	return &st, nil
}

// Save writes the state with the configured TTL.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	if st == nil || st.ID == "" {
		return conversation.ErrInvalidID
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(st.ID), data, s.ttl).Err()
}

// Delete removes the conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

var _ conversation.Store = (*ConversationStore)(nil)
