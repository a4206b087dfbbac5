package conversation

import (
	"context"
	"errors"
)

// Domain errors for conversation persistence.
var (
	// ErrNotFound indicates the conversation does not exist or has expired.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidID indicates an empty or malformed conversation id.
	ErrInvalidID = errors.New("invalid conversation id")
)

// Store persists conversation state. Implementations expire idle
// conversations according to their own TTL policy.
type Store interface {
	// Load returns the state for the id or ErrNotFound.
	Load(ctx context.Context, id string) (*State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, state *State) error

	// Delete removes the conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}
