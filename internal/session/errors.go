package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Publish when the session is not CONNECTED.
	// Nothing is queued.
	ErrNotConnected = errors.New("session: not connected")

	// ErrReconnectExhausted is carried by the terminal EventExhausted status.
	ErrReconnectExhausted = errors.New("session: reconnection attempts exhausted")

	// ErrDisconnected is returned by Connect when Disconnect ran before the
	// handshake finished.
	ErrDisconnected = errors.New("session: disconnected during connect")

	ErrInvalidHandler = errors.New("session: destination, name and handler are required")
)

type ConnectErrorKind int

const (
	KindTransport ConnectErrorKind = iota
	KindUnauthorized
)

func (k ConnectErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transport"
	}
}

// ConnectError is returned by Connect. Unauthorized errors are terminal;
// transport errors start the reconnect policy.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// HandlerError records a handler that returned an error or panicked. It is
// logged at the dispatch boundary and never propagated.
type HandlerError struct {
	Destination string
	Handler     string
	Err         error
	Panic       any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler %q on %s panicked: %v", e.Handler, e.Destination, e.Panic)
	}
	return fmt.Sprintf("handler %q on %s: %v", e.Handler, e.Destination, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
