package lifecycle

import "testing"

func TestCurrent_DefaultStarting(t *testing.T) {
	if Current() != Starting {
		t.Errorf("Current() = %v, want starting by default", Current())
	}
}

func TestSet_Transitions(t *testing.T) {
	defer Set(Starting)

	Set(Ready)
	if Current() != Ready || IsShuttingDown() {
		t.Errorf("after Set(Ready): Current() = %v, IsShuttingDown() = %v", Current(), IsShuttingDown())
	}
	Set(Draining)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after Set(Draining), want true")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{Starting: "starting", Ready: "ready", Draining: "draining", State(9): "unknown"}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
