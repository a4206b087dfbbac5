// Package event provides the turn event stream recorded for every conversation.
package event

import (
	"encoding/json"
	"time"
)

// Event is one entry in a conversation's event stream.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// ConversationID keys the stream the event belongs to.
	ConversationID string `json:"conversation_id"`

	// TurnID groups the events of one ProcessMessage call.
	TurnID string `json:"turn_id"`

	// Type classifies the event.
	Type Type `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Payload contains the event-specific data.
	Payload json.RawMessage `json:"payload"`

	// Sequence is the ordering number within the conversation's stream.
	Sequence uint64 `json:"sequence"`

	// Version is the event schema version for forward compatibility.
	Version int `json:"version,omitempty"`
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(conversationID, turnID string, eventType Type, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ConversationID: conversationID,
		TurnID:         turnID,
		Type:           eventType,
		Timestamp:      time.Now(),
		Payload:        data,
		Version:        1,
	}, nil
}

// Validate reports whether the event can be appended.
func (e Event) Validate() error {
	if e.ConversationID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	return nil
}

// UnmarshalPayload decodes the event payload into the given value.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}
