package statemachine

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-router/domain/pipeline"
)

// ErrTransitionRejected is returned when the machine refuses a transition.
var ErrTransitionRejected = errors.New("transition rejected")

func (c *Context) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Interpreter wraps the statekit interpreter for one turn.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter bound to ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the received state.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Current = pipeline.State(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() pipeline.State {
	return pipeline.State(i.interp.State().Value)
}

// Transition moves the turn to the target state. A transition the graph
// does not allow, or that a guard refuses, leaves the state unchanged.
func (i *Interpreter) Transition(to pipeline.State, reason string) error {
	from := i.State()
	if !i.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionRejected, from, to)
	}

	i.interp.Send(statekit.Event{
		Type:    EventForTransition(to),
		Payload: TransitionPayload{ToState: to, Reason: reason},
	})

	if now := i.State(); now != to {
		return fmt.Errorf("%w: %s -> %s (guard)", ErrTransitionRejected, from, to)
	}
	return nil
}

// Degrade moves any non-terminal turn to degraded.
func (i *Interpreter) Degrade(reason string) error {
	return i.Transition(pipeline.StateDegraded, reason)
}

// CanTransition reports whether the turn graph allows the edge.
func (i *Interpreter) CanTransition(to pipeline.State) bool {
	return pipeline.CanTransition(i.State(), to)
}

// IsTerminal returns true once the turn reached a final state.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Matches checks if the current state matches the given state.
func (i *Interpreter) Matches(state pipeline.State) bool {
	return i.interp.Matches(statekit.StateID(state))
}

// SetComplex selects the planned branch once the intent is known.
func (i *Interpreter) SetComplex(isComplex bool) {
	i.ctx.Complex = isComplex
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Trace returns the transitions taken so far.
func (i *Interpreter) Trace() pipeline.Trace {
	return append(pipeline.Trace(nil), i.ctx.Trace...)
}

// Begin builds a fresh turn machine and starts an interpreter on it.
func Begin(conversationID, turnID string) (*Interpreter, error) {
	machine, err := NewTurnMachine()
	if err != nil {
		return nil, fmt.Errorf("build turn machine: %w", err)
	}
	interp := NewInterpreter(machine, NewContext(conversationID, turnID))
	interp.Start()
	return interp, nil
}
