package pipeline

import "testing"

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range AllStates() {
		want := s == StateResponded || s == StateNeedsClarification || s == StateDegraded
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
		if !s.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", s)
		}
	}
	if State("bogus").IsValid() {
		t.Error("bogus state should be invalid")
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateReceived, StateIntentClassified, true},
		{StateReceived, StateContextReady, false},
		{StateIntentClassified, StateNeedsClarification, true},
		{StateToolsResolved, StateCoordinated, true},
		{StateToolsResolved, StatePlanned, true},
		{StatePlanned, StateNeedsClarification, true},
		{StateCoordinated, StateResponded, true},
		{StateContextReady, StateDegraded, true},
		{StateResponded, StateDegraded, false},
		{StateDegraded, StateResponded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTrace_States(t *testing.T) {
	var empty Trace
	if empty.States() != nil {
		t.Error("empty trace should have no states")
	}

	trace := Trace{
		{From: StateReceived, To: StateIntentClassified},
		{From: StateIntentClassified, To: StateNeedsClarification},
	}
	got := trace.States()
	want := []State{StateReceived, StateIntentClassified, StateNeedsClarification}
	if len(got) != len(want) {
		t.Fatalf("States() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("States()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if !trace.Visited(StateIntentClassified) {
		t.Error("trace should have visited intent_classified")
	}
	if trace.Visited(StatePlanned) {
		t.Error("trace should not have visited planned")
	}
}
