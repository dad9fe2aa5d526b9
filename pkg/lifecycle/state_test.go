package lifecycle

import "testing"

// ===========================================================================
// State Tests
// ===========================================================================

func TestState_Valid(t *testing.T) {
	for _, s := range []State{StateUnknown, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed} {
		if !s.Valid() {
			t.Errorf("State(%q).Valid() = false, want true", s)
		}
	}
	for _, s := range []State{"", "paused", "RUNNING"} {
		if s.Valid() {
			t.Errorf("State(%q).Valid() = true, want false", s)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateUnknown, false},
		{StateStarting, false},
		{StateRunning, false},
		{StateStopping, false},
		{StateStopped, true},
		{StateFailed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("State(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

// ===========================================================================
// ValidTransition Tests
// ===========================================================================

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUnknown, StateStarting, true},
		{StateUnknown, StateRunning, false},
		{StateStarting, StateRunning, true},
		{StateStarting, StateStopping, true},
		{StateRunning, StateStopping, true},
		{StateRunning, StateStarting, false},
		{StateStopping, StateStopped, true},
		{StateStopped, StateStarting, true},
		{StateStopped, StateRunning, false},
		{StateFailed, StateStarting, true},
		{StateRunning, StateRunning, false},
		{"bogus", StateStarting, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
