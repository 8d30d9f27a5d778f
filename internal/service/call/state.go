package call

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a call session.
type State int

const (
	// StateAwaitingStart - connection accepted, no stream identifier yet.
	StateAwaitingStart State = iota
	// StateBuffering - collecting caller audio.
	StateBuffering
	// StateProcessing - transcribe, reply, extract and persist are running.
	StateProcessing
	// StateTransmitting - sending the reply audio and its mark.
	StateTransmitting
	// StateClosed - terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "AWAITING_START"
	case StateBuffering:
		return "BUFFERING"
	case StateProcessing:
		return "PROCESSING"
	case StateTransmitting:
		return "TRANSMITTING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

var (
	ErrSessionClosed     = errors.New("call session is closed")
	ErrInvalidTransition = errors.New("invalid call state transition")
)

// transitions lists the allowed targets per state. Every live state may
// close.
//
//	AWAITING_START → BUFFERING → PROCESSING → TRANSMITTING → BUFFERING …
//	                     ↑            │
//	                     └────────────┘ (nothing to transmit)
var transitions = map[State][]State{
	StateAwaitingStart: {StateBuffering, StateClosed},
	StateBuffering:     {StateProcessing, StateClosed},
	StateProcessing:    {StateTransmitting, StateBuffering, StateClosed},
	StateTransmitting:  {StateBuffering, StateClosed},
}

// Lifecycle guards the session state machine. Safe for concurrent reads
// (e.g. stats) while the session goroutine transitions.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle starts in AWAITING_START.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateAwaitingStart}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed reports whether the session reached CLOSED.
func (l *Lifecycle) IsClosed() bool {
	return l.State().IsTerminal()
}

// Transition moves to next, or returns an error leaving the state unchanged.
func (l *Lifecycle) Transition(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrSessionClosed
	}
	for _, allowed := range transitions[l.state] {
		if allowed == next {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, l.state, next)
}
