package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-router/domain/pipeline"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState pipeline.State
	Reason  string
}

// targetOf returns the state an event is heading to.
func targetOf(event statekit.Event) pipeline.State {
	if payload, ok := event.Payload.(TransitionPayload); ok && payload.ToState != "" {
		return payload.ToState
	}
	return stateFromEventType(event.Type)
}

// guardCanTransition checks the edge against the turn graph.
// Guards receive the context by value; our context is *Context.
func guardCanTransition(ctx *Context, event statekit.Event) bool {
	if ctx == nil {
		return false
	}
	return pipeline.CanTransition(ctx.Current, targetOf(event))
}

// guardComplexTurn admits the planned branch only for complex turns.
func guardComplexTurn(ctx *Context, event statekit.Event) bool {
	return guardCanTransition(ctx, event) && ctx.Complex
}

// guardSimpleTurn lets non-complex turns skip planning.
func guardSimpleTurn(ctx *Context, event statekit.Event) bool {
	return guardCanTransition(ctx, event) && !ctx.Complex
}
