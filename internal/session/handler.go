package session

import (
	"encoding/json"
	"fmt"
)

// Message is an inbound frame as seen by handlers.
type Message struct {
	Destination string
	ID          string
	ContentType string
	Body        []byte
}

// Handler consumes messages for one destination. Returned errors and panics
// are logged and do not affect other handlers.
type Handler func(Message) error

// Typed wraps fn in a Handler that decodes the JSON body into T first.
func Typed[T any](fn func(T) error) Handler {
	return func(m Message) error {
		var v T
		if err := json.Unmarshal(m.Body, &v); err != nil {
			return fmt.Errorf("decode %s payload: %w", m.Destination, err)
		}
		return fn(v)
	}
}

type namedHandler struct {
	name string
	fn   Handler
}
