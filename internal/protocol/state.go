package protocol

import (
	"sync"

	"github.com/scribelab/scribed/internal/fault"
)

type State string

const (
	StateConnecting  State = "connecting"
	StateHandshaking State = "handshaking"
	StateActive      State = "active"
	StateClosing     State = "closing"
	StateClosed      State = "closed"
)

// Machine tracks one connection through its lifecycle. Only a handshake frame
// is admissible before Active; everything else is rejected until the handshake
// exchange completes.
type Machine struct {
	mu        sync.Mutex
	state     State
	meetingID string
}

func NewMachine() *Machine {
	return &Machine{state: StateConnecting}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) MeetingID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meetingID
}

// Admit validates an inbound message type against the current state. In
// Connecting/Handshaking only HANDSHAKE passes; in Active a second HANDSHAKE
// is rejected; Closing and Closed admit nothing.
func (m *Machine) Admit(t Type) error {
	const op = "protocol.admit"
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateConnecting, StateHandshaking:
		if t != TypeHandshake {
			return fault.Newf(fault.InputRejected, op, "%s received before handshake", t)
		}
		m.state = StateHandshaking
		return nil
	case StateActive:
		if t == TypeHandshake {
			return fault.Newf(fault.InputRejected, op, "duplicate handshake on active connection")
		}
		return nil
	default:
		return fault.Newf(fault.StateConflict, op, "message on %s connection", m.state)
	}
}

// Activate completes the handshake and binds the connection to a meeting.
func (m *Machine) Activate(meetingID string) error {
	const op = "protocol.activate"
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateHandshaking {
		return fault.Newf(fault.StateConflict, op, "activate from %s", m.state)
	}
	m.state = StateActive
	m.meetingID = meetingID
	return nil
}

// BeginClose enters the Closing state; idempotent.
func (m *Machine) BeginClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateClosed {
		m.state = StateClosing
	}
}

func (m *Machine) MarkClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateClosed
}
