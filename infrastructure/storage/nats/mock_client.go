package nats

import (
	"context"
	"sync"
)

// MockClient is an in-process Client for tests and single-node runs.
type MockClient struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	subs     map[string]map[int]func([]byte) error
	nextID   int
}

// NewMockClient creates a new mock NATS client.
func NewMockClient() *MockClient {
	return &MockClient{
		messages: make(map[string][][]byte),
		subs:     make(map[string]map[int]func([]byte) error),
	}
}

// Publish implements Client.Publish.
func (c *MockClient) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.Lock()
	c.messages[subject] = append(c.messages[subject], data)
	handlers := make([]func([]byte) error, 0, len(c.subs[subject]))
	for _, h := range c.subs[subject] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(data); err != nil {
			return err
		}
	}

	return nil
}

// Subscribe implements Client.Subscribe.
func (c *MockClient) Subscribe(_ context.Context, subject string, handler func([]byte) error) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs[subject] == nil {
		c.subs[subject] = make(map[int]func([]byte) error)
	}
	c.nextID++
	c.subs[subject][c.nextID] = handler

	return &mockSubscription{client: c, subject: subject, id: c.nextID}, nil
}

// GetMessages implements Client.GetMessages.
func (c *MockClient) GetMessages(_ context.Context, subject string) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result, nil
}

// GetMessagesFrom implements Client.GetMessagesFrom. Filtering by event
// sequence is left to the EventStore.
func (c *MockClient) GetMessagesFrom(ctx context.Context, subject string, _ uint64) ([][]byte, error) {
	return c.GetMessages(ctx, subject)
}

// Close implements Client.Close.
func (c *MockClient) Close() error {
	return nil
}

// MessageCount returns the number of messages for a subject.
func (c *MockClient) MessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

var _ Client = (*MockClient)(nil)

type mockSubscription struct {
	client  *MockClient
	subject string
	id      int
}

func (s *mockSubscription) Unsubscribe() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()

	delete(s.client.subs[s.subject], s.id)
	return nil
}
