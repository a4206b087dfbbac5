// Package nats provides a NATS JetStream turn-event store.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/agent-router/domain/event"
)

// Client defines the interface for NATS JetStream operations.
// This allows for mock implementations in testing.
type Client interface {
	// Publish publishes a message to a subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe subscribes to a subject with a durable consumer.
	Subscribe(ctx context.Context, subject string, handler func([]byte) error) (Subscription, error)

	// GetMessages retrieves all messages from a stream for a subject.
	GetMessages(ctx context.Context, subject string) ([][]byte, error)

	// GetMessagesFrom retrieves messages from a specific sequence.
	GetMessagesFrom(ctx context.Context, subject string, fromSeq uint64) ([][]byte, error)

	// Close closes the client connection.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops the subscription.
	Unsubscribe() error
}

// EventStore implements event.Store using NATS JetStream. Each
// conversation publishes to its own subject under the prefix.
type EventStore struct {
	client        Client
	subjectPrefix string
	mu            sync.Mutex
	sequences     map[string]*uint64
}

// Config holds configuration for the NATS event store.
type Config struct {
	// Client is the NATS JetStream client to use.
	Client Client

	// SubjectPrefix is the prefix for all event subjects.
	SubjectPrefix string
}

// NewEventStore creates a new NATS event store.
func NewEventStore(cfg Config) (*EventStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("nats client is required")
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "router.events"
	}

	return &EventStore{
		client:        cfg.Client,
		subjectPrefix: prefix,
		sequences:     make(map[string]*uint64),
	}, nil
}

// Append validates every event before publishing any of them.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	for i := range events {
		seq, err := s.nextSequence(ctx, events[i].ConversationID)
		if err != nil {
			return err
		}
		events[i].Sequence = seq

		if events[i].ID == "" {
			events[i].ID = fmt.Sprintf("%s-%d", events[i].ConversationID, seq)
		}

		data, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		subject := s.subject(events[i].ConversationID)
		if err := s.client.Publish(ctx, subject, data); err != nil {
			return errors.Join(event.ErrConnectionFailed, fmt.Errorf("failed to publish event: %w", err))
		}
	}

	return nil
}

// Load retrieves all events for a conversation in sequence order.
func (s *EventStore) Load(ctx context.Context, conversationID string) ([]event.Event, error) {
	subject := s.subject(conversationID)
	messages, err := s.client.GetMessages(ctx, subject)
	if err != nil {
		return nil, errors.Join(event.ErrConnectionFailed, fmt.Errorf("failed to get messages: %w", err))
	}

	events := make([]event.Event, 0, len(messages))
	for _, data := range messages {
		var evt event.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, evt)
	}

	return events, nil
}

// LoadFrom retrieves events starting from a specific sequence number.
func (s *EventStore) LoadFrom(ctx context.Context, conversationID string, fromSeq uint64) ([]event.Event, error) {
	subject := s.subject(conversationID)
	messages, err := s.client.GetMessagesFrom(ctx, subject, fromSeq)
	if err != nil {
		return nil, errors.Join(event.ErrConnectionFailed, fmt.Errorf("failed to get messages: %w", err))
	}

	events := make([]event.Event, 0, len(messages))
	for _, data := range messages {
		var evt event.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		if evt.Sequence >= fromSeq {
			events = append(events, evt)
		}
	}

	return events, nil
}

// Subscribe returns a channel that receives new events for a conversation.
// The channel closes when ctx is done.
func (s *EventStore) Subscribe(ctx context.Context, conversationID string) (<-chan event.Event, error) {
	subject := s.subject(conversationID)
	ch := make(chan event.Event, 100)

	var (
		chMu   sync.Mutex
		closed bool
	)
	sub, err := s.client.Subscribe(ctx, subject, func(data []byte) error {
		var evt event.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			return err
		}

		chMu.Lock()
		defer chMu.Unlock()
		if closed {
			return nil
		}
		select {
		case ch <- evt:
		default:
			// slow subscriber, drop
		}
		return nil
	})
	if err != nil {
		close(ch)
		return nil, errors.Join(event.ErrConnectionFailed, fmt.Errorf("failed to subscribe: %w", err))
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		chMu.Lock()
		closed = true
		close(ch)
		chMu.Unlock()
	}()

	return ch, nil
}

// subject constructs the NATS subject for a conversation.
func (s *EventStore) subject(conversationID string) string {
	return s.subjectPrefix + "." + conversationID
}

// nextSequence returns the next sequence number for a conversation. The
// counter is seeded from the stream the first time a conversation is seen,
// so a restarted process continues where the stream left off.
func (s *EventStore) nextSequence(ctx context.Context, conversationID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[conversationID]
	if !ok {
		existing, err := s.client.GetMessages(ctx, s.subject(conversationID))
		if err != nil {
			return 0, errors.Join(event.ErrConnectionFailed, err)
		}
		start := uint64(len(existing))
		seq = &start
		s.sequences[conversationID] = seq
	}

	return atomic.AddUint64(seq, 1), nil
}

// Ensure EventStore implements event.Store
var _ event.Store = (*EventStore)(nil)

