package session

import "fmt"

// State is the connection state of a Session.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateClosing      State = "CLOSING"
)

// Event drives state transitions and is reported to status observers.
type Event string

const (
	EventDial           Event = "dial"
	EventConnected      Event = "connected"
	EventConnectFailed  Event = "connect-failed"
	EventUnauthorized   Event = "unauthorized"
	EventConnectionLost Event = "connection-lost"
	EventReconnecting   Event = "reconnecting"
	EventExhausted      Event = "exhausted"
	EventClose          Event = "close"
	EventDisconnected   Event = "disconnected"
)

// transitions lists every legal (state, event) pair. Anything missing is
// rejected with a TransitionError.
var transitions = map[State]map[Event]State{
	StateDisconnected: {
		EventDial:         StateConnecting,
		EventReconnecting: StateConnecting,
		EventExhausted:    StateDisconnected,
		EventClose:        StateClosing,
	},
	StateConnecting: {
		EventConnected:     StateConnected,
		EventConnectFailed: StateDisconnected,
		EventUnauthorized:  StateDisconnected,
		EventClose:         StateClosing,
	},
	StateConnected: {
		EventConnectionLost: StateDisconnected,
		EventClose:          StateClosing,
	},
	StateClosing: {
		EventDisconnected: StateDisconnected,
	},
}

// TransitionError reports an event that is not valid in the current state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: event %q not allowed in state %s", e.Event, e.From)
}

// Transition returns the state reached by applying ev in from.
func Transition(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{From: from, Event: ev}
}

// Status is delivered to observers after every state change.
type Status struct {
	State   State
	Event   Event
	Attempt int
	Err     error
}
