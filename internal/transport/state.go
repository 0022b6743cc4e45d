package transport

import (
	"fmt"
	"slices"
	"sync"
)

// State represents a transport connection state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Closed     State = "CLOSED"
	Errored    State = "ERROR"
)

// validTransitions defines allowed state transitions. Errored is treated
// identically to Closed for reconnection purposes.
var validTransitions = map[State][]State{
	Idle:       {Connecting},
	Connecting: {Open, Closed, Errored},
	Open:       {Closed, Errored},
	Closed:     {Connecting, Idle},
	Errored:    {Connecting, Closed, Idle},
}

// Machine tracks and enforces transport state transitions. Holding the
// current state in one authoritative field (rather than implicit timer
// recursion) is what prevents overlapping reconnect attempts.
type Machine struct {
	mu      sync.RWMutex
	current State
}

// NewMachine creates a state machine starting in Idle.
func NewMachine() *Machine {
	return &Machine{current: Idle}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}
