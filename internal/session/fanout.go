package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/transport"
)

// AddHandler registers fn under name for destination and subscribes to the
// destination if this is its first handler. Registering an existing name
// replaces its callback and keeps its position.
func (s *Session) AddHandler(destination, name string, fn Handler) error {
	if destination == "" || name == "" || fn == nil {
		return ErrInvalidHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hs := s.handlers[destination]
	if len(hs) == 0 {
		s.destinations = append(s.destinations, destination)
	}
	if i := slices.IndexFunc(hs, func(h namedHandler) bool { return h.name == name }); i >= 0 {
		hs[i].fn = fn
	} else {
		hs = append(hs, namedHandler{name: name, fn: fn})
	}
	s.handlers[destination] = hs

	if err := s.ensureSubscribedLocked(destination); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// RemoveHandler removes the named handler and unsubscribes from destination
// when it was the last one. It reports whether a handler was removed.
func (s *Session) RemoveHandler(destination, name string) bool {
	s.mu.Lock()
	hs := s.handlers[destination]
	i := slices.IndexFunc(hs, func(h namedHandler) bool { return h.name == name })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	hs = slices.Delete(slices.Clone(hs), i, i+1)
	if len(hs) > 0 {
		s.handlers[destination] = hs
		s.mu.Unlock()
		return true
	}

	delete(s.handlers, destination)
	s.destinations = slices.DeleteFunc(s.destinations, func(d string) bool { return d == destination })
	sub := s.detachLocked(destination)
	s.mu.Unlock()

	if err := s.unsubscribe(destination, sub); err != nil {
		s.logger.Warn("unsubscribe failed", logging.Destination(destination), logging.Err(err))
	}
	return true
}

// Handlers lists handler names for destination in invocation order.
func (s *Session) Handlers(destination string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.handlers[destination]))
	for i, h := range s.handlers[destination] {
		names[i] = h.name
	}
	return names
}

// dispatch delivers f to every handler of its subscription's destination,
// synchronously and in registration order. Frames from a subscription that is
// no longer current are dropped.
func (s *Session) dispatch(gen uint64, sub transport.Subscription, f transport.Frame) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	dest := sub.Destination()
	s.mu.Lock()
	if s.gen != gen || s.subs[dest] != sub {
		s.mu.Unlock()
		return
	}
	hs := slices.Clone(s.handlers[dest])
	s.mu.Unlock()

	msg := Message{
		Destination: dest,
		ID:          f.MessageID,
		ContentType: f.ContentType,
		Body:        f.Body,
	}
	for _, h := range hs {
		if err := invoke(msg, h); err != nil {
			var herr *HandlerError
			errors.As(err, &herr)
			s.logger.LogAttrs(context.Background(), slog.LevelError, "handler failed",
				logging.Destination(herr.Destination),
				logging.Handler(herr.Handler),
				logging.Err(herr),
			)
		}
	}
}

// invoke runs one handler and converts an error or panic into a HandlerError.
func invoke(msg Message, h namedHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				Destination: msg.Destination,
				Handler:     h.name,
				Err:         fmt.Errorf("panic: %v", r),
				Panic:       r,
			}
		}
	}()
	if herr := h.fn(msg); herr != nil {
		return &HandlerError{Destination: msg.Destination, Handler: h.name, Err: herr}
	}
	return nil
}
