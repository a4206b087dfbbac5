// Package conversation provides the per-conversation state persisted across turns.
package conversation

import (
	"time"

	"github.com/felixgeelhaar/agent-router/domain/intent"
	"github.com/felixgeelhaar/agent-router/domain/plan"
)

// Role tags who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged message.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Clarification records what a previous turn asked the user for, so the next
// turn resumes the pending request instead of classifying from scratch.
type Clarification struct {
	Request  string        `json:"request"`
	Intent   intent.Intent `json:"intent"`
	Missing  []string      `json:"missing"`
	Question string        `json:"question"`
	AskedAt  time.Time     `json:"asked_at"`
}

// State is everything the orchestrator remembers about one conversation.
type State struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id,omitempty"`
	Turns       []Turn                 `json:"turns"`
	Preferences map[string]string      `json:"preferences"`
	ActivePlan  *plan.TaskPlan         `json:"active_plan,omitempty"`
	Results     map[string]plan.Result `json:"results"`
	TurnCount   int64                  `json:"turn_count"`
	Pending     *Clarification         `json:"pending,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// New creates an empty conversation state.
func New(id, userID string) *State {
	now := time.Now()
	return &State{
		ID:          id,
		UserID:      userID,
		Preferences: make(map[string]string),
		Results:     make(map[string]plan.Result),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Append adds a turn to the history.
func (s *State) Append(role Role, content string, at time.Time) {
	s.Turns = append(s.Turns, Turn{Role: role, Content: content, Timestamp: at})
	s.UpdatedAt = at
}

// Recent returns up to n of the most recent turns, oldest first.
func (s *State) Recent(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	start := len(s.Turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.Turns)-start)
	copy(out, s.Turns[start:])
	return out
}

// Clone returns a deep copy. The orchestrator mutates a clone during a turn
// and commits it only when the turn ends.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = append([]Turn(nil), s.Turns...)
	out.Preferences = make(map[string]string, len(s.Preferences))
	for k, v := range s.Preferences {
		out.Preferences[k] = v
	}
	out.Results = make(map[string]plan.Result, len(s.Results))
	for k, v := range s.Results {
		v.ToolCalls = append(v.ToolCalls[:0:0], v.ToolCalls...)
		out.Results[k] = v
	}
	if s.ActivePlan != nil {
		p := s.ActivePlan.Clone()
		out.ActivePlan = &p
	}
	if s.Pending != nil {
		c := *s.Pending
		c.Missing = append([]string(nil), s.Pending.Missing...)
		c.Intent = intent.New(s.Pending.Intent.Type, s.Pending.Intent.Confidence, s.Pending.Intent.Entities, s.Pending.Intent.RawText)
		out.Pending = &c
	}
	return &out
}

// Normalize fills nil maps after decoding from storage.
func (s *State) Normalize() {
	if s.Preferences == nil {
		s.Preferences = make(map[string]string)
	}
	if s.Results == nil {
		s.Results = make(map[string]plan.Result)
	}
}
