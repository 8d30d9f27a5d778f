package call

import (
	"errors"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()
	if lc.State() != StateAwaitingStart {
		t.Errorf("expected AWAITING_START, got %v", lc.State())
	}
	if lc.IsClosed() {
		t.Error("expected IsClosed to be false")
	}
}

func TestLifecycle_FullCycle(t *testing.T) {
	lc := NewLifecycle()
	steps := []State{StateBuffering, StateProcessing, StateTransmitting, StateBuffering, StateProcessing, StateBuffering, StateProcessing, StateClosed}
	for _, next := range steps {
		if err := lc.Transition(next); err != nil {
			t.Fatalf("transition to %v: %v", next, err)
		}
	}
	if !lc.IsClosed() {
		t.Fatal("expected closed")
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from []State
		to   State
	}{
		{"transmit before start", nil, StateTransmitting},
		{"process before start", nil, StateProcessing},
		{"buffering to transmitting", []State{StateBuffering}, StateTransmitting},
		{"transmitting to processing", []State{StateBuffering, StateProcessing, StateTransmitting}, StateProcessing},
		{"back to awaiting start", []State{StateBuffering}, StateAwaitingStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle()
			for _, s := range tt.from {
				if err := lc.Transition(s); err != nil {
					t.Fatalf("setup transition to %v: %v", s, err)
				}
			}
			before := lc.State()
			err := lc.Transition(tt.to)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
			if lc.State() != before {
				t.Fatalf("state changed to %v on rejected transition", lc.State())
			}
		})
	}
}

func TestLifecycle_ClosedIsTerminal(t *testing.T) {
	lc := NewLifecycle()
	if err := lc.Transition(StateClosed); err != nil {
		t.Fatal(err)
	}
	for _, s := range []State{StateBuffering, StateProcessing, StateClosed} {
		if err := lc.Transition(s); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("transition to %v from CLOSED: err = %v", s, err)
		}
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateAwaitingStart: "AWAITING_START",
		StateBuffering:     "BUFFERING",
		StateProcessing:    "PROCESSING",
		StateTransmitting:  "TRANSMITTING",
		StateClosed:        "CLOSED",
		State(42):          "UNKNOWN(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
