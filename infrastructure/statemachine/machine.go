// Package statemachine drives the per-turn lifecycle with statekit.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-router/domain/pipeline"
)

// Context carries turn state through the state machine.
type Context struct {
	ConversationID string
	TurnID         string
	Current        pipeline.State
	// Complex selects the planned branch after tool resolution.
	Complex bool
	Trace   pipeline.Trace
	// OnTransition observes every accepted transition.
	OnTransition func(pipeline.Transition)
	now          func() time.Time
}

// NewContext creates a machine context for one turn.
func NewContext(conversationID, turnID string) *Context {
	return &Context{
		ConversationID: conversationID,
		TurnID:         turnID,
		Current:        pipeline.StateReceived,
		now:            time.Now,
	}
}

// State IDs as StateID type for statekit.
const (
	stateReceived           = statekit.StateID(pipeline.StateReceived)
	stateIntentClassified   = statekit.StateID(pipeline.StateIntentClassified)
	stateContextReady       = statekit.StateID(pipeline.StateContextReady)
	stateToolsResolved      = statekit.StateID(pipeline.StateToolsResolved)
	statePlanned            = statekit.StateID(pipeline.StatePlanned)
	stateCoordinated        = statekit.StateID(pipeline.StateCoordinated)
	stateResponded          = statekit.StateID(pipeline.StateResponded)
	stateNeedsClarification = statekit.StateID(pipeline.StateNeedsClarification)
	stateDegraded           = statekit.StateID(pipeline.StateDegraded)
)

// Event types. Each target state has exactly one event.
const (
	EventClassify   statekit.EventType = "CLASSIFY"
	EventAssemble   statekit.EventType = "ASSEMBLE"
	EventResolve    statekit.EventType = "RESOLVE"
	EventPlan       statekit.EventType = "PLAN"
	EventCoordinate statekit.EventType = "COORDINATE"
	EventRespond    statekit.EventType = "RESPOND"
	EventClarify    statekit.EventType = "CLARIFY"
	EventDegrade    statekit.EventType = "DEGRADE"
)

// NewTurnMachine creates the turn statechart.
func NewTurnMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("turn").
		WithInitial(stateReceived).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithGuard("canTransition", guardCanTransition).
		WithGuard("complexTurn", guardComplexTurn).
		WithGuard("simpleTurn", guardSimpleTurn).
		State(stateReceived).
			On(EventClassify).Target(stateIntentClassified).Guard("canTransition").Do("recordTransition").
			On(EventDegrade).Target(stateDegraded).Do("recordTransition").
			Done().
		State(stateIntentClassified).
			On(EventAssemble).Target(stateContextReady).Guard("canTransition").Do("recordTransition").
			On(EventClarify).Target(stateNeedsClarification).Guard("canTransition").Do("recordTransition").
			On(EventDegrade).Target(stateDegraded).Do("recordTransition").
			Done().
		State(stateContextReady).
			On(EventResolve).Target(stateToolsResolved).Guard("canTransition").Do("recordTransition").
			On(EventDegrade).Target(stateDegraded).Do("recordTransition").
			Done().
		State(stateToolsResolved).
			On(EventPlan).Target(statePlanned).Guard("complexTurn").Do("recordTransition").
			On(EventCoordinate).Target(stateCoordinated).Guard("simpleTurn").Do("recordTransition").
			On(EventDegrade).Target(stateDegraded).Do("recordTransition").
			Done().
		State(statePlanned).
			On(EventCoordinate).Target(stateCoordinated).Guard("canTransition").Do("recordTransition").
			On(EventClarify).Target(stateNeedsClarification).Guard("canTransition").Do("recordTransition").
			On(EventDegrade).Target(stateDegraded).Do("recordTransition").
			Done().
		State(stateCoordinated).
			On(EventRespond).Target(stateResponded).Guard("canTransition").Do("recordTransition").
			On(EventDegrade).Target(stateDegraded).Do("recordTransition").
			Done().
		State(stateResponded).
			Final().
			Done().
		State(stateNeedsClarification).
			Final().
			Done().
		State(stateDegraded).
			Final().
			Done().
		Build()
}

// EventForTransition returns the event that moves a turn into the target state.
func EventForTransition(to pipeline.State) statekit.EventType {
	switch to {
	case pipeline.StateIntentClassified:
		return EventClassify
	case pipeline.StateContextReady:
		return EventAssemble
	case pipeline.StateToolsResolved:
		return EventResolve
	case pipeline.StatePlanned:
		return EventPlan
	case pipeline.StateCoordinated:
		return EventCoordinate
	case pipeline.StateResponded:
		return EventRespond
	case pipeline.StateNeedsClarification:
		return EventClarify
	case pipeline.StateDegraded:
		return EventDegrade
	default:
		return statekit.EventType(to)
	}
}

// stateFromEventType derives the target state from an event type.
func stateFromEventType(eventType statekit.EventType) pipeline.State {
	switch eventType {
	case EventClassify:
		return pipeline.StateIntentClassified
	case EventAssemble:
		return pipeline.StateContextReady
	case EventResolve:
		return pipeline.StateToolsResolved
	case EventPlan:
		return pipeline.StatePlanned
	case EventCoordinate:
		return pipeline.StateCoordinated
	case EventRespond:
		return pipeline.StateResponded
	case EventClarify:
		return pipeline.StateNeedsClarification
	case EventDegrade:
		return pipeline.StateDegraded
	default:
		return pipeline.State(eventType)
	}
}
