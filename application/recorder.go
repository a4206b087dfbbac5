package application

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/infrastructure/logging"
)

// recorder appends the events of one turn to the event store. It travels
// on the turn's context so shared components can report into it.
type recorder struct {
	store          event.Store
	conversationID string
	turnID         string

	mu     sync.Mutex
	failed bool
}

type recorderKey struct{}

func withRecorder(ctx context.Context, r *recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// record appends one event for the turn on ctx. Store failures are logged
// once per turn and otherwise ignored.
func record(ctx context.Context, t event.Type, payload any) {
	r, ok := ctx.Value(recorderKey{}).(*recorder)
	if !ok || r == nil || r.store == nil {
		return
	}
	e, err := event.NewEvent(r.conversationID, r.turnID, t, payload)
	if err == nil {
		err = r.store.Append(context.WithoutCancel(ctx), e)
	}
	if err == nil {
		return
	}

	r.mu.Lock()
	first := !r.failed
	r.failed = true
	r.mu.Unlock()
	if first {
		logging.Warn().
			Add(logging.ConversationID(r.conversationID)).
			Add(logging.TurnID(r.turnID)).
			Add(logging.ErrorField(err)).
			Msg("event store append failed")
	}
}
