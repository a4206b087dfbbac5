package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-router/domain/event"
)

// EventStore is an in-memory implementation of event.Store.
type EventStore struct {
	events      map[string][]event.Event // conversationID -> events
	subscribers map[string][]chan event.Event
	sequences   map[string]uint64
	mu          sync.RWMutex
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		events:      make(map[string][]event.Event),
		subscribers: make(map[string][]chan event.Event),
		sequences:   make(map[string]uint64),
	}
}

// Append persists events atomically. Nothing is stored if any event is invalid.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		s.sequences[e.ConversationID]++
		e.Sequence = s.sequences[e.ConversationID]
		s.events[e.ConversationID] = append(s.events[e.ConversationID], e)

		for _, sub := range s.subscribers[e.ConversationID] {
			select {
			case sub <- e:
			default:
				// slow subscriber, drop
			}
		}
	}
	return nil
}

// Load retrieves all events for a conversation in sequence order.
func (s *EventStore) Load(ctx context.Context, conversationID string) ([]event.Event, error) {
	return s.LoadFrom(ctx, conversationID, 0)
}

// LoadFrom retrieves events starting at a sequence number.
func (s *EventStore) LoadFrom(ctx context.Context, conversationID string, fromSeq uint64) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []event.Event{}
	for _, e := range s.events[conversationID] {
		if e.Sequence >= fromSeq {
			result = append(result, e)
		}
	}
	return result, nil
}

// Subscribe returns a channel that receives new events for a conversation.
func (s *EventStore) Subscribe(ctx context.Context, conversationID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan event.Event, 100)
	s.subscribers[conversationID] = append(s.subscribers[conversationID], ch)

	go func() {
		<-ctx.Done()
		s.unsubscribe(conversationID, ch)
	}()

	return ch, nil
}

func (s *EventStore) unsubscribe(conversationID string, ch chan event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[conversationID]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[conversationID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(s.subscribers[conversationID]) == 0 {
		delete(s.subscribers, conversationID)
	}
}

var _ event.Store = (*EventStore)(nil)
