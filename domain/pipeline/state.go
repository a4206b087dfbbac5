// Package pipeline defines the states a single turn moves through.
package pipeline

// State identifies a stage of the per-turn orchestration pipeline.
type State string

const (
	StateReceived           State = "received"
	StateIntentClassified   State = "intent_classified"
	StateContextReady       State = "context_ready"
	StateToolsResolved      State = "tools_resolved"
	StatePlanned            State = "planned"
	StateCoordinated        State = "coordinated"
	StateResponded          State = "responded"
	StateNeedsClarification State = "needs_clarification"
	StateDegraded           State = "degraded"
)

// IsTerminal reports whether the turn ends in this state.
func (s State) IsTerminal() bool {
	return s == StateResponded || s == StateNeedsClarification || s == StateDegraded
}

// IsValid returns true if the state is a recognized pipeline state.
func (s State) IsValid() bool {
	switch s {
	case StateReceived, StateIntentClassified, StateContextReady, StateToolsResolved,
		StatePlanned, StateCoordinated, StateResponded, StateNeedsClarification, StateDegraded:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// AllStates returns every pipeline state in forward order, escapes last.
func AllStates() []State {
	return []State{
		StateReceived,
		StateIntentClassified,
		StateContextReady,
		StateToolsResolved,
		StatePlanned,
		StateCoordinated,
		StateResponded,
		StateNeedsClarification,
		StateDegraded,
	}
}

// TerminalStates returns the states that end a turn.
func TerminalStates() []State {
	return []State{StateResponded, StateNeedsClarification, StateDegraded}
}

// transitions lists the forward edges of the turn graph. Every non-terminal
// state may additionally escape to degraded.
var transitions = map[State][]State{
	StateReceived:         {StateIntentClassified},
	StateIntentClassified: {StateContextReady, StateNeedsClarification},
	StateContextReady:     {StateToolsResolved},
	StateToolsResolved:    {StatePlanned, StateCoordinated},
	StatePlanned:          {StateCoordinated, StateNeedsClarification},
	StateCoordinated:      {StateResponded},
}

// CanTransition reports whether the turn graph has an edge from one state to another.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateDegraded {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
