package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/pipeline"
)

// Replay rebuilds turn records from the event store.
type Replay struct {
	eventStore event.Store
}

// NewReplay creates a new replay over eventStore.
func NewReplay(eventStore event.Store) *Replay {
	return &Replay{eventStore: eventStore}
}

// TurnRecord is one turn as reconstructed from its events.
type TurnRecord struct {
	TurnID     string                          `json:"turn_id"`
	UserID     string                          `json:"user_id,omitempty"`
	Text       string                          `json:"text"`
	Intent     string                          `json:"intent,omitempty"`
	Confidence float64                         `json:"confidence"`
	State      pipeline.State                  `json:"state"`
	Error      string                          `json:"error,omitempty"`
	Trace      pipeline.Trace                  `json:"trace"`
	ToolCalls  []event.ToolCalledPayload       `json:"tool_calls,omitempty"`
	Subtasks   []event.SubtaskCompletedPayload `json:"subtasks,omitempty"`
	Plan       *event.PlanCreatedPayload       `json:"plan,omitempty"`
	StartedAt  time.Time                       `json:"started_at"`
	Duration   time.Duration                   `json:"duration"`
}

// Finished reports whether the turn reached a terminal state.
func (t TurnRecord) Finished() bool {
	return t.State.IsTerminal()
}

// Turns reconstructs every turn of a conversation in order.
func (r *Replay) Turns(ctx context.Context, conversationID string) ([]TurnRecord, error) {
	events, err := r.eventStore.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil, event.ErrConversationNotFound
	}
	return applyEvents(events)
}

// TurnsFrom reconstructs the turns whose events start at fromSeq.
func (r *Replay) TurnsFrom(ctx context.Context, conversationID string, fromSeq uint64) ([]TurnRecord, error) {
	events, err := r.eventStore.LoadFrom(ctx, conversationID, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil, event.ErrConversationNotFound
	}
	return applyEvents(events)
}

// Turn reconstructs a single turn. Stores implementing event.TurnLoader
// answer it directly; others are filtered from the full stream.
func (r *Replay) Turn(ctx context.Context, conversationID, turnID string) (TurnRecord, error) {
	var (
		events []event.Event
		err    error
	)
	if tl, ok := r.eventStore.(event.TurnLoader); ok {
		events, err = tl.LoadTurn(ctx, conversationID, turnID)
	} else {
		var all []event.Event
		all, err = r.eventStore.Load(ctx, conversationID)
		for _, e := range all {
			if e.TurnID == turnID {
				events = append(events, e)
			}
		}
	}
	if err != nil {
		return TurnRecord{}, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return TurnRecord{}, event.ErrTurnNotFound
	}
	turns, err := applyEvents(events)
	if err != nil {
		return TurnRecord{}, err
	}
	return turns[0], nil
}

// applyEvents folds events into turn records, grouped by turn id in order
// of first appearance.
func applyEvents(events []event.Event) ([]TurnRecord, error) {
	var order []string
	turns := make(map[string]*TurnRecord)
	get := func(e event.Event) *TurnRecord {
		t, ok := turns[e.TurnID]
		if !ok {
			t = &TurnRecord{TurnID: e.TurnID, State: pipeline.StateReceived, StartedAt: e.Timestamp}
			turns[e.TurnID] = t
			order = append(order, e.TurnID)
		}
		return t
	}

	for _, e := range events {
		t := get(e)
		switch e.Type {
		case event.TypeTurnReceived:
			var p event.TurnReceivedPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.UserID = p.UserID
			t.Text = p.Text
			t.StartedAt = e.Timestamp

		case event.TypeIntentClassified:
			var p event.IntentClassifiedPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.Intent = p.Intent
			t.Confidence = p.Confidence

		case event.TypeStateTransitioned:
			var p event.StateTransitionedPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.Trace = append(t.Trace, pipeline.Transition{From: p.FromState, To: p.ToState, Reason: p.Reason, At: e.Timestamp})
			t.State = p.ToState

		case event.TypeToolCalled:
			var p event.ToolCalledPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.ToolCalls = append(t.ToolCalls, p)

		case event.TypePlanCreated:
			var p event.PlanCreatedPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.Plan = &p

		case event.TypeSubtaskCompleted:
			var p event.SubtaskCompletedPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.Subtasks = append(t.Subtasks, p)

		case event.TypeTurnResponded, event.TypeTurnDegraded, event.TypeClarification:
			var p event.TurnFinishedPayload
			if err := e.UnmarshalPayload(&p); err != nil {
				return nil, fmt.Errorf("unmarshal %s: %w", e.Type, err)
			}
			t.State = p.State
			t.Confidence = p.Confidence
			t.Error = p.Error
			t.Duration = p.Duration
		}
	}

	out := make([]TurnRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *turns[id])
	}
	return out, nil
}

// Timeline provides a time-based view of a conversation's events.
type Timeline struct {
	events []event.Event
}

// NewTimeline creates a timeline from the stored events.
func (r *Replay) NewTimeline(ctx context.Context, conversationID string) (*Timeline, error) {
	events, err := r.eventStore.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return &Timeline{events: events}, nil
}

// Len returns the number of events.
func (tl *Timeline) Len() int {
	return len(tl.events)
}

// Duration returns the span between the first and last event.
func (tl *Timeline) Duration() time.Duration {
	if len(tl.events) < 2 {
		return 0
	}
	return tl.events[len(tl.events)-1].Timestamp.Sub(tl.events[0].Timestamp)
}

// EventsInRange returns events within a time range. Zero bounds are open.
func (tl *Timeline) EventsInRange(from, to time.Time) []event.Event {
	var result []event.Event
	for _, e := range tl.events {
		if (from.IsZero() || !e.Timestamp.Before(from)) &&
			(to.IsZero() || !e.Timestamp.After(to)) {
			result = append(result, e)
		}
	}
	return result
}

// EventsByType returns events of a specific type.
func (tl *Timeline) EventsByType(eventType event.Type) []event.Event {
	var result []event.Event
	for _, e := range tl.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// EventsForTurn returns the events of one turn.
func (tl *Timeline) EventsForTurn(turnID string) []event.Event {
	var result []event.Event
	for _, e := range tl.events {
		if e.TurnID == turnID {
			result = append(result, e)
		}
	}
	return result
}
