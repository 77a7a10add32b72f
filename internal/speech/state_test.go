package speech

import "testing"

// pathTo 列出从 Idle 到达各状态的合法转换序列。
var pathTo = map[State][]State{
	StateIdle:          nil,
	StateSynthesizing:  {StateSynthesizing},
	StateArtifactReady: {StateSynthesizing, StateArtifactReady},
	StatePlaying:       {StateSynthesizing, StateArtifactReady, StatePlaying},
	StateError:         {StateSynthesizing, StateError},
	StateCancelled:     {StateSynthesizing, StateCancelled},
}

func advanceTo(t *testing.T, sm *StateMachine, target State) {
	t.Helper()
	for _, s := range pathTo[target] {
		if !sm.Transition(s) {
			t.Fatalf("failed to advance to %s", s)
		}
	}
}

func TestNewStateMachine_InitialStateIsIdle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("expected initial state Idle, got %s", sm.Current())
	}
}

func TestStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StateSynthesizing},
		{StateSynthesizing, StateArtifactReady},
		{StateSynthesizing, StateError},
		{StateArtifactReady, StatePlaying},
		{StateArtifactReady, StateError},
		{StatePlaying, StateSynthesizing},
		{StatePlaying, StateError},
		{StateError, StateSynthesizing},
		{StateError, StatePlaying},
		{StatePlaying, StateCancelled},
		{StateCancelled, StateIdle},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if !sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be valid", tt.from, tt.to)
		}
		if sm.Current() != tt.to {
			t.Errorf("expected state %s, got %s", tt.to, sm.Current())
		}
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StatePlaying},
		{StateIdle, StateArtifactReady},
		{StateIdle, StateError},
		{StateIdle, StateCancelled},
		{StateSynthesizing, StatePlaying},
		{StateSynthesizing, StateSynthesizing},
		{StatePlaying, StatePlaying},
		{StateCancelled, StateSynthesizing},
		{StateCancelled, StateCancelled},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be invalid", tt.from, tt.to)
		}
		if sm.Current() != tt.from {
			t.Errorf("state should remain %s after invalid transition, got %s", tt.from, sm.Current())
		}
	}
}

func TestStateMachine_AnyStateToIdle(t *testing.T) {
	for s := range pathTo {
		sm := NewStateMachine()
		advanceTo(t, sm, s)

		if !sm.Transition(StateIdle) {
			t.Errorf("transition %s → Idle should always be valid", s)
		}
		if sm.Current() != StateIdle {
			t.Errorf("expected Idle, got %s", sm.Current())
		}
	}
}

func TestStateMachine_ForceIdle(t *testing.T) {
	for s := range pathTo {
		sm := NewStateMachine()
		advanceTo(t, sm, s)

		sm.ForceIdle()
		if sm.Current() != StateIdle {
			t.Errorf("ForceIdle from %s: expected Idle, got %s", s, sm.Current())
		}
	}
}

func TestStateMachine_OnChangeCallback(t *testing.T) {
	sm := NewStateMachine()

	var calledFrom, calledTo State
	callCount := 0
	sm.SetOnChange(func(from, to State) {
		calledFrom = from
		calledTo = to
		callCount++
	})

	sm.Transition(StateSynthesizing)
	if callCount != 1 {
		t.Fatalf("expected onChange called once, got %d", callCount)
	}
	if calledFrom != StateIdle || calledTo != StateSynthesizing {
		t.Errorf("expected callback with Idle→Synthesizing, got %s→%s", calledFrom, calledTo)
	}

	sm.Transition(StatePlaying) // invalid from Synthesizing
	if callCount != 1 {
		t.Errorf("expected onChange not called on invalid transition, got %d calls", callCount)
	}
}

func TestStateMachine_ForceIdleNoCallbackWhenAlreadyIdle(t *testing.T) {
	sm := NewStateMachine()

	callCount := 0
	sm.SetOnChange(func(from, to State) {
		callCount++
	})

	sm.ForceIdle()
	if callCount != 0 {
		t.Errorf("expected no onChange when ForceIdle from Idle, got %d calls", callCount)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "Idle"},
		{StateSynthesizing, "Synthesizing"},
		{StateArtifactReady, "ArtifactReady"},
		{StatePlaying, "Playing"},
		{StateError, "Error"},
		{StateCancelled, "Cancelled"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
