package pipeline

import "time"

// Transition is one recorded edge of a turn's lifecycle.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Trace is the ordered list of transitions taken by a turn.
type Trace []Transition

// States returns the visited states, starting with the first From.
func (t Trace) States() []State {
	if len(t) == 0 {
		return nil
	}
	states := make([]State, 0, len(t)+1)
	states = append(states, t[0].From)
	for _, tr := range t {
		states = append(states, tr.To)
	}
	return states
}

// Visited reports whether the trace passed through s.
func (t Trace) Visited(s State) bool {
	for _, st := range t.States() {
		if st == s {
			return true
		}
	}
	return false
}
