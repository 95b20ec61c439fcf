package session

import (
	"fmt"
	"slices"

	"github.com/dukerupert/healthnotify/internal/transport"
)

// ensureSubscribedLocked subscribes to dest if it has no live subscription
// and the session is CONNECTED. It must be called with s.mu held.
func (s *Session) ensureSubscribedLocked(dest string) error {
	if _, ok := s.subs[dest]; ok {
		return nil
	}
	if s.state != StateConnected || s.conn == nil {
		return ErrNotConnected
	}
	sub, err := s.conn.Subscribe(dest)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", dest, err)
	}
	s.subs[dest] = sub
	go s.pump(s.gen, sub)
	return nil
}

// detachLocked removes the subscription for dest from the registry and
// returns it, or nil if there was none. It must be called with s.mu held; the
// caller unsubscribes after releasing the lock, since the transport may wait
// for a broker receipt.
func (s *Session) detachLocked(dest string) transport.Subscription {
	sub, ok := s.subs[dest]
	if !ok {
		return nil
	}
	delete(s.subs, dest)
	return sub
}

// unsubscribe ends a detached subscription. Safe with a nil sub.
func (s *Session) unsubscribe(dest string, sub transport.Subscription) error {
	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", dest, err)
	}
	return nil
}

// Subscribed reports whether dest has a live subscription.
func (s *Session) Subscribed(dest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[dest]
	return ok
}

// Destinations lists destinations with at least one handler, in the order
// they were first registered.
func (s *Session) Destinations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.destinations)
}

// pump feeds frames from one subscription into the fan-out until the
// subscription ends.
func (s *Session) pump(gen uint64, sub transport.Subscription) {
	for f := range sub.C() {
		s.dispatch(gen, sub, f)
	}
}
