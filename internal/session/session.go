// Package session owns the push connection: one authenticated transport
// connection, a bounded fixed-delay reconnect supervisor, the per-destination
// subscription registry and the handler fan-out.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/healthnotify/internal/credential"
	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/transport"
)

const (
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// Session is safe for concurrent use. Handlers run on the connection's pump
// goroutines, one frame at a time per Session.
type Session struct {
	id          string
	dialer      transport.Dialer
	logger      *slog.Logger
	delay       time.Duration
	maxAttempts int
	now         func() time.Time

	mu           sync.Mutex
	state        State
	conn         transport.Conn
	gen          uint64
	credential   string
	attempt      int
	backoff      retry.Backoff
	timer        *time.Timer
	dialCancel   context.CancelFunc
	destinations []string
	handlers     map[string][]namedHandler
	subs         map[string]transport.Subscription

	dispatchMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]func(Status)
	nextObs   int
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReconnectDelay sets the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithMaxReconnectAttempts bounds consecutive failed reconnect attempts.
func WithMaxReconnectAttempts(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock sets the time source for local credential expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a disconnected Session.
func New(dialer transport.Dialer, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		dialer:      dialer,
		logger:      slog.Default(),
		delay:       DefaultReconnectDelay,
		maxAttempts: DefaultMaxReconnectAttempts,
		now:         time.Now,
		state:       StateDisconnected,
		handlers:    make(map[string][]namedHandler),
		subs:        make(map[string]transport.Subscription),
		observers:   make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("session"), logging.SessionID(s.id))
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is CONNECTED over a live connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		return false
	}
	select {
	case <-conn.Done():
		return false
	default:
		return true
	}
}

// Connect opens a connection with cred and blocks until the handshake
// completes. On success every destination that has handlers is subscribed in
// registration order. An unauthorized credential is terminal; a transport
// failure returns an error and also starts the reconnect policy.
func (s *Session) Connect(ctx context.Context, cred string) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	// A reconnect attempt already in flight keeps running.
	if _, err := Transition(s.state, EventDial); err != nil {
		s.mu.Unlock()
		return err
	}
	s.stopReconnectLocked()
	s.fireLocked(EventDial)
	s.credential = cred
	s.attempt = 0
	s.backoff = s.newBackoff()
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.dialCancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.emit(Status{State: StateConnecting, Event: EventDial})
	return s.dial(ctx, gen, cred)
}

// Disconnect cancels any pending reconnect, drops every subscription, clears
// all handlers and closes the connection. Subscriptions end with the
// connection, so no per-destination UNSUBSCRIBE is sent. It is idempotent and
// may be called from inside a handler.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	pending := s.stopReconnectLocked()
	supervising := s.backoff != nil
	s.gen++
	conn := s.conn
	s.subs = make(map[string]transport.Subscription)
	s.handlers = make(map[string][]namedHandler)
	s.destinations = nil
	s.conn = nil
	s.attempt = 0
	s.backoff = nil

	if s.state == StateClosing || (s.state == StateDisconnected && !pending && !supervising) {
		s.mu.Unlock()
		return nil
	}
	if _, err := s.fireLocked(EventClose); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	s.mu.Lock()
	s.fireLocked(EventDisconnected)
	s.mu.Unlock()

	s.logger.Info("disconnected")
	s.emit(Status{State: StateDisconnected, Event: EventDisconnected})
	return err
}

// Publish sends body to destination. It fails with ErrNotConnected unless
// the session is CONNECTED and never queues.
func (s *Session) Publish(destination, contentType string, body []byte) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	if err := conn.Send(destination, contentType, body); err != nil {
		return fmt.Errorf("publish %s: %w", destination, err)
	}
	return nil
}

// PublishJSON encodes v and publishes it as application/json.
func (s *Session) PublishJSON(destination string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", destination, err)
	}
	return s.Publish(destination, "application/json", body)
}

// OnStatus registers cb for status changes and returns a function that
// removes it. Observers are called outside the session lock, in registration
// order.
func (s *Session) OnStatus(cb func(Status)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = cb
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) emit(statuses ...Status) {
	if len(statuses) == 0 {
		return
	}
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cbs := make([]func(Status), len(ids))
	for i, id := range ids {
		cbs[i] = s.observers[id]
	}
	s.obsMu.Unlock()

	for _, st := range statuses {
		for _, cb := range cbs {
			cb(st)
		}
	}
}

// dial runs one connection attempt for generation gen.
func (s *Session) dial(ctx context.Context, gen uint64, cred string) error {
	var conn transport.Conn
	err := credential.Check(cred, s.now())
	if err != nil {
		err = fmt.Errorf("%w: %w", transport.ErrUnauthorized, err)
	} else {
		conn, err = s.dialer.Dial(ctx, cred)
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateConnecting {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrDisconnected
	}
	s.dialCancel = nil

	if err != nil {
		kind, ev := KindTransport, EventConnectFailed
		if errors.Is(err, transport.ErrUnauthorized) {
			kind, ev = KindUnauthorized, EventUnauthorized
		}
		s.fireLocked(ev)
		cerr := &ConnectError{Kind: kind, Err: err}
		statuses := []Status{{State: s.state, Event: ev, Attempt: s.attempt, Err: cerr}}

		var arm func()
		if kind == KindTransport {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "connect failed", logging.Attempt(s.attempt), logging.Err(err))
			var exhausted []Status
			arm, exhausted = s.scheduleLocked()
			statuses = append(statuses, exhausted...)
		} else {
			s.logger.LogAttrs(ctx, slog.LevelError, "credential rejected", logging.Err(err))
			s.backoff = nil
		}
		s.mu.Unlock()

		s.emit(statuses...)
		if arm != nil {
			arm()
		}
		return cerr
	}

	s.fireLocked(EventConnected)
	s.conn = conn
	attempt := s.attempt
	s.attempt = 0
	s.backoff = s.newBackoff()
	for _, dest := range s.destinations {
		if err := s.ensureSubscribedLocked(dest); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "resubscribe failed", logging.Destination(dest), logging.Err(err))
		}
	}
	s.mu.Unlock()

	go s.watch(gen, conn)
	s.logger.Info("connected", logging.Attempt(attempt))
	s.emit(Status{State: StateConnected, Event: EventConnected, Attempt: attempt})
	return nil
}

// watch waits for the connection of generation gen to end. Unless the session
// closed it, that is an unsolicited close and starts the reconnect policy.
func (s *Session) watch(gen uint64, conn transport.Conn) {
	<-conn.Done()

	s.mu.Lock()
	if s.gen != gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	cause := conn.Err()
	s.fireLocked(EventConnectionLost)
	s.gen++
	s.conn = nil
	s.subs = make(map[string]transport.Subscription)
	statuses := []Status{{State: s.state, Event: EventConnectionLost, Err: cause}}
	arm, exhausted := s.scheduleLocked()
	statuses = append(statuses, exhausted...)
	s.mu.Unlock()

	conn.Close()
	s.logger.Warn("connection lost", logging.Err(cause))
	s.emit(statuses...)
	if arm != nil {
		arm()
	}
}

// scheduleLocked consumes one step of the backoff. It returns either a
// function that arms the reconnect timer or the terminal exhausted status.
func (s *Session) scheduleLocked() (arm func(), statuses []Status) {
	if s.backoff == nil {
		s.backoff = s.newBackoff()
	}
	delay, stop := s.backoff.Next()
	if stop {
		s.backoff = nil
		s.fireLocked(EventExhausted)
		err := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, s.attempt)
		s.logger.LogAttrs(context.Background(), slog.LevelError, "reconnection exhausted", logging.Attempt(s.attempt))
		return nil, []Status{{State: s.state, Event: EventExhausted, Attempt: s.attempt, Err: err}}
	}

	gen := s.gen
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.state != StateDisconnected {
			return
		}
		s.timer = time.AfterFunc(delay, func() { s.reconnect(gen) })
	}, nil
}

func (s *Session) reconnect(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if _, err := s.fireLocked(EventReconnecting); err != nil {
		s.mu.Unlock()
		return
	}
	s.attempt++
	s.gen++
	gen = s.gen
	attempt, cred := s.attempt, s.credential
	ctx, cancel := context.WithCancel(context.Background())
	s.dialCancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("reconnecting", logging.Attempt(attempt))
	s.emit(Status{State: StateConnecting, Event: EventReconnecting, Attempt: attempt})
	s.dial(ctx, gen, cred)
}

// stopReconnectLocked cancels a pending timer or in-flight dial and reports
// whether there was one.
func (s *Session) stopReconnectLocked() bool {
	pending := false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		pending = true
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
		pending = true
	}
	return pending
}

func (s *Session) fireLocked(ev Event) (State, error) {
	to, err := Transition(s.state, ev)
	if err != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "rejected state transition",
			slog.String("state", string(s.state)),
			slog.String("event", string(ev)),
		)
		return s.state, err
	}
	s.state = to
	return to, nil
}

func (s *Session) newBackoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(s.maxAttempts), retry.NewConstant(s.delay))
}
