package event

import "errors"

// Domain errors for event store operations.
var (
	// ErrConversationNotFound is returned when no events exist for a conversation.
	ErrConversationNotFound = errors.New("conversation not found in event store")

	// ErrTurnNotFound is returned when a conversation has no events for a turn.
	ErrTurnNotFound = errors.New("turn not found in event store")

	// ErrInvalidEvent is returned when an event is malformed.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrConnectionFailed is returned when connection to the store backend fails.
	ErrConnectionFailed = errors.New("event store connection failed")

	// ErrSubscriptionClosed is returned when a subscription channel is closed.
	ErrSubscriptionClosed = errors.New("event subscription closed")
)
