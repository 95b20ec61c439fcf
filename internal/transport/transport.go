// Package transport carries STOMP frames over a WebSocket to the push server.
// The session package depends only on the interfaces declared here.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized means the server rejected the credential. Retrying with
	// the same credential will not help.
	ErrUnauthorized = errors.New("transport: unauthorized")

	// ErrTransport covers network, handshake and protocol failures.
	ErrTransport = errors.New("transport: connection failed")
)

// Frame is one inbound MESSAGE frame.
type Frame struct {
	Destination string
	MessageID   string
	ContentType string
	Body        []byte
}

// Subscription delivers frames for one destination until Unsubscribe is
// called or the connection ends, after which C is closed.
type Subscription interface {
	Destination() string
	C() <-chan Frame
	Unsubscribe() error
}

// Conn is an established, authenticated connection.
type Conn interface {
	Subscribe(destination string) (Subscription, error)
	Send(destination, contentType string, body []byte) error
	// Done is closed once the connection is lost or closed.
	Done() <-chan struct{}
	// Err reports why Done was closed. It is nil for a local Close.
	Err() error
	Close() error
}

// Dialer opens connections with the given bearer credential. Errors wrap
// ErrUnauthorized or ErrTransport.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, credential string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, credential string) (Conn, error) {
	return f(ctx, credential)
}
