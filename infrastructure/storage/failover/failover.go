// Package failover pairs a primary store with a fallback so a backend outage
// degrades persistence instead of failing the turn.
package failover

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/memory"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// isDomainError reports errors that describe the data rather than the
// backend, which the fallback would answer the same way.
func isDomainError(err error) bool {
	return errors.Is(err, conversation.ErrNotFound) ||
		errors.Is(err, conversation.ErrInvalidID) ||
		errors.Is(err, memory.ErrNotFound) ||
		errors.Is(err, memory.ErrInvalidRecord) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func warnFallback(store, op string, err error) {
	logging.Warn().
		Add(logging.Component(store)).
		Add(logging.Str("op", op)).
		Add(logging.ErrorField(err)).
		Msg("primary store failed, using fallback")
}

// MemoryStore writes to the primary and falls back on backend errors.
// Queries that fail or come back empty on the primary are retried on the
// fallback, which may hold records written during an outage.
type MemoryStore struct {
	primary  memory.Store
	fallback memory.Store
}

// NewMemoryStore pairs two memory stores. A nil fallback disables failover.
func NewMemoryStore(primary, fallback memory.Store) *MemoryStore {
	return &MemoryStore{primary: primary, fallback: fallback}
}

// Save stores the record in the primary, or the fallback if that fails.
func (s *MemoryStore) Save(ctx context.Context, r memory.Record) error {
	err := s.primary.Save(ctx, r)
	if err == nil || s.fallback == nil || isDomainError(err) {
		return err
	}
	warnFallback("memory", "save", err)
	if ferr := s.fallback.Save(ctx, r); ferr != nil {
		return errors.Join(err, ferr)
	}
	return nil
}

// Query reads from the primary first.
func (s *MemoryStore) Query(ctx context.Context, q memory.Query) ([]memory.Record, error) {
	records, err := s.primary.Query(ctx, q)
	if s.fallback == nil {
		return records, err
	}
	if err != nil && isDomainError(err) {
		return nil, err
	}
	if err != nil {
		warnFallback("memory", "query", err)
	}
	if err != nil || len(records) == 0 {
		fallback, ferr := s.fallback.Query(ctx, q)
		if ferr != nil {
			if err != nil {
				return nil, errors.Join(err, ferr)
			}
			return records, nil
		}
		return fallback, nil
	}
	return records, nil
}

// Delete removes the record from both stores. It succeeds if either held it.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	err := s.primary.Delete(ctx, id)
	if s.fallback == nil {
		return err
	}
	ferr := s.fallback.Delete(ctx, id)
	if err == nil || ferr == nil {
		return nil
	}
	if errors.Is(err, memory.ErrNotFound) {
		return ferr
	}
	return err
}

var _ memory.Store = (*MemoryStore)(nil)

// ConversationStore loads from the primary and falls back on backend errors.
type ConversationStore struct {
	primary  conversation.Store
	fallback conversation.Store
}

// NewConversationStore pairs two conversation stores. A nil fallback
// disables failover.
func NewConversationStore(primary, fallback conversation.Store) *ConversationStore {
	return &ConversationStore{primary: primary, fallback: fallback}
}

// Load tries the primary, then the fallback when the primary is unreachable
// or does not hold the conversation.
func (s *ConversationStore) Load(ctx context.Context, id string) (*conversation.State, error) {
	st, err := s.primary.Load(ctx, id)
	if err == nil || s.fallback == nil || errors.Is(err, conversation.ErrInvalidID) || ctx.Err() != nil {
		return st, err
	}
	if !errors.Is(err, conversation.ErrNotFound) {
		warnFallback("conversation", "load", err)
	}
	fst, ferr := s.fallback.Load(ctx, id)
	if ferr != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return nil, ferr
		}
		return nil, errors.Join(err, ferr)
	}
	return fst, nil
}

// Save writes to the primary, or the fallback if that fails.
func (s *ConversationStore) Save(ctx context.Context, st *conversation.State) error {
	err := s.primary.Save(ctx, st)
	if err == nil || s.fallback == nil || isDomainError(err) {
		return err
	}
	warnFallback("conversation", "save", err)
	if ferr := s.fallback.Save(ctx, st); ferr != nil {
		return errors.Join(err, ferr)
	}
	return nil
}

// Delete removes the conversation from both stores.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	err := s.primary.Delete(ctx, id)
	if s.fallback != nil {
		if ferr := s.fallback.Delete(ctx, id); ferr != nil {
			return errors.Join(err, ferr)
		}
	}
	return err
}

var _ conversation.Store = (*ConversationStore)(nil)
