package event

import (
	"time"

	"github.com/felixgeelhaar/agent-router/domain/pipeline"
)

// Type classifies turn events.
type Type string

// Event types for the turn pipeline.
const (
	TypeTurnReceived      Type = "turn.received"
	TypeStateTransitioned Type = "state.transitioned"
	TypeIntentClassified  Type = "intent.classified"
	TypeToolCalled        Type = "tool.called"
	TypePlanCreated       Type = "plan.created"
	TypeSubtaskCompleted  Type = "subtask.completed"
	TypeTurnResponded     Type = "turn.responded"
	TypeTurnDegraded      Type = "turn.degraded"
	TypeClarification     Type = "turn.clarification"
)

// TurnReceivedPayload contains data for turn.received events.
type TurnReceivedPayload struct {
	UserID string `json:"user_id,omitempty"`
	Text   string `json:"text"`
}

// StateTransitionedPayload contains data for state.transitioned events.
type StateTransitionedPayload struct {
	FromState pipeline.State `json:"from_state"`
	ToState   pipeline.State `json:"to_state"`
	Reason    string         `json:"reason,omitempty"`
}

// IntentClassifiedPayload contains data for intent.classified events.
type IntentClassifiedPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ToolCalledPayload contains data for tool.called events.
type ToolCalledPayload struct {
	Kind    string `json:"tool_kind"`
	Name    string `json:"name,omitempty"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PlanCreatedPayload contains data for plan.created events.
type PlanCreatedPayload struct {
	Subtasks  []string `json:"subtasks"`
	Fallback  bool     `json:"fallback,omitempty"`
	Truncated int      `json:"truncated,omitempty"`
}

// SubtaskCompletedPayload contains data for subtask.completed events.
type SubtaskCompletedPayload struct {
	SubtaskID  string        `json:"subtask_id"`
	Specialist string        `json:"specialist"`
	Confidence float64       `json:"confidence"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// TurnFinishedPayload contains data for turn.responded, turn.degraded and
// turn.clarification events.
type TurnFinishedPayload struct {
	State      pipeline.State `json:"state"`
	Confidence float64        `json:"confidence"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}
