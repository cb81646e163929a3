package session

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateSetup:   "setup",
		StateActive:  "active",
		StateSummary: "summary",
		State(99):    "state(99)",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("String(%d) = %q, want %q", int(state), got, want)
		}
	}
}

func TestStateTransitionTable(t *testing.T) {
	states := []State{StateSetup, StateActive, StateSummary}
	allowed := map[State]State{
		StateSetup:   StateActive,
		StateActive:  StateSummary,
		StateSummary: StateSetup,
	}
	for _, from := range states {
		for _, to := range states {
			want := allowed[from] == to
			if got := from.canTransition(to); got != want {
				t.Fatalf("canTransition(%v -> %v) = %v, want %v", from, to, got, want)
			}
		}
	}
	if State(99).canTransition(StateSetup) {
		t.Fatal("unknown states must not transition anywhere")
	}
}
