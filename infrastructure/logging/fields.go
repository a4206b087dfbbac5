package logging

import (
	"strconv"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/pipeline"
	"github.com/felixgeelhaar/agent-router/domain/tooling"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// ConversationID adds a conversation ID field.
func ConversationID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("conversation_id", id)
	}
}

// TurnID adds a turn ID field.
func TurnID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("turn_id", id)
	}
}

// UserID adds a user ID field.
func UserID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("user_id", id)
	}
}

// Intent adds the classified intent type.
func Intent(t intent.Type) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("intent", string(t))
	}
}

// Confidence adds a confidence score with two decimals.
func Confidence(c float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("confidence", strconv.FormatFloat(c, 'f', 2, 64))
	}
}

// State adds a state field.
func State(s pipeline.State) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("state", string(s))
	}
}

// FromState adds a from_state field for transitions.
func FromState(s pipeline.State) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", string(s))
	}
}

// ToState adds a to_state field for transitions.
func ToState(s pipeline.State) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_state", string(s))
	}
}

// SubtaskID adds a subtask ID field.
func SubtaskID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("subtask_id", id)
	}
}

// Specialist adds a specialist name field.
func Specialist(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("specialist", name)
	}
}

// ToolKind adds a capability kind field.
func ToolKind(k tooling.Kind) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool_kind", string(k))
	}
}

// ToolName adds a command tool name field.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Attempt adds a retry attempt number.
func Attempt(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("attempt", n)
	}
}

// Count adds a named count.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Degraded marks a turn that finished in the degraded state.
func Degraded(degraded bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("degraded", degraded)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
