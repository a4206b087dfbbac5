package event

import "context"

// Store persists conversation event streams.
type Store interface {
	// Append persists events. Events are assigned sequence numbers per
	// conversation in order of appearance.
	Append(ctx context.Context, events ...Event) error

	// Load retrieves all events for a conversation in sequence order.
	Load(ctx context.Context, conversationID string) ([]Event, error)

	// LoadFrom retrieves events starting at a sequence number.
	LoadFrom(ctx context.Context, conversationID string, fromSeq uint64) ([]Event, error)

	// Subscribe returns a channel that receives new events for a conversation.
	// The channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, conversationID string) (<-chan Event, error)
}

// TurnLoader is implemented by stores that can read one turn without
// scanning the whole conversation.
type TurnLoader interface {
	// LoadTurn retrieves the events of one turn in sequence order.
	LoadTurn(ctx context.Context, conversationID, turnID string) ([]Event, error)
}
