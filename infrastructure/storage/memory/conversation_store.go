package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
)

// conversationEntry holds a serialized copy of a conversation.
type conversationEntry struct {
	data      []byte
	expiresAt time.Time
}

// ConversationStore is an in-memory implementation of conversation.Store.
// Conversations idle longer than the TTL are treated as missing.
type ConversationStore struct {
	entries map[string]*conversationEntry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
}

// NewConversationStore creates a store. A ttl <= 0 keeps conversations forever.
func NewConversationStore(ttl time.Duration) *ConversationStore {
	return &ConversationStore{
		entries: make(map[string]*conversationEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load returns a copy of the stored state.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, conversation.ErrInvalidID
	}

	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || s.expired(entry) {
		return nil, conversation.ErrNotFound
	}

	var st conversation.State
	if err := json.Unmarshal(entry.data, &st); err != nil {
		return nil, err
	}
	st.Normalize()
	return &st, nil
}

// Save replaces the stored state and refreshes its TTL.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st == nil || st.ID == "" {
		return conversation.ErrInvalidID
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	entry := &conversationEntry{data: data}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[st.ID] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired conversations and returns how many were removed.
func (s *ConversationStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

func (s *ConversationStore) expired(entry *conversationEntry) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}

var _ conversation.Store = (*ConversationStore)(nil)
