package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-router/domain/pipeline"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// recordTransition appends the edge to the turn trace and logs it.
// Actions receive a pointer to the context; our context is *Context.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	tr := pipeline.Transition{
		From: c.Current,
		To:   targetOf(event),
		At:   c.clock(),
	}
	if payload, ok := event.Payload.(TransitionPayload); ok {
		tr.Reason = payload.Reason
	}

	c.Trace = append(c.Trace, tr)
	c.Current = tr.To

	logging.Debug().
		Add(logging.ConversationID(c.ConversationID)).
		Add(logging.TurnID(c.TurnID)).
		Add(logging.FromState(tr.From)).
		Add(logging.ToState(tr.To)).
		Add(logging.Reason(tr.Reason)).
		Msg("turn transition")

	if c.OnTransition != nil {
		c.OnTransition(tr)
	}
}
