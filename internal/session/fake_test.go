package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dukerupert/healthnotify/internal/transport"
)

// fakeDialer hands out in-memory connections. Dial results are taken from
// errs in order; once errs is empty, fallback is used.
type fakeDialer struct {
	mu       sync.Mutex
	errs     []error
	fallback error
	conns    []*fakeConn
	creds    []string
}

func (d *fakeDialer) Dial(ctx context.Context, cred string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, cred)

	err := d.fallback
	if len(d.errs) > 0 {
		err, d.errs = d.errs[0], d.errs[1:]
	}
	if err != nil {
		return nil, err
	}
	c := &fakeConn{done: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setFallback(err error, queued ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = err
	d.errs = queued
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.creds)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type sentFrame struct {
	destination string
	contentType string
	body        string
}

type fakeConn struct {
	mu     sync.Mutex
	subs   []*fakeSub
	sent   []sentFrame
	done   chan struct{}
	err    error
	closed bool

	// When gate is set, Unsubscribe reports the destination on unsubscribing
	// and then waits for gate to close, like a broker slow to send a receipt.
	gate          chan struct{}
	unsubscribing chan string
}

// holdUnsubscribes makes every later Unsubscribe block until the returned
// release func is called.
func (c *fakeConn) holdUnsubscribes() (started <-chan string, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	c.unsubscribing = make(chan string, 16)
	var once sync.Once
	gate := c.gate
	return c.unsubscribing, func() { once.Do(func() { close(gate) }) }
}

func (c *fakeConn) Subscribe(dest string) (transport.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrTransport
	}
	s := &fakeSub{conn: c, dest: dest, c: make(chan transport.Frame, fakeSubBuffer)}
	c.subs = append(c.subs, s)
	return s, nil
}

func (c *fakeConn) Send(dest, contentType string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrTransport
	}
	c.sent = append(c.sent, sentFrame{dest, contentType, string(body)})
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.shutdown(nil)
	return nil
}

// drop simulates an unsolicited close by the server.
func (c *fakeConn) drop() {
	c.shutdown(errors.New("connection reset by peer"))
}

func (c *fakeConn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if err != nil {
		c.err = errors.Join(transport.ErrTransport, err)
	}
	for _, s := range c.subs {
		s.closeLocked()
	}
	close(c.done)
}

// live returns the destinations with an active subscription, in subscribe
// order.
func (c *fakeConn) live() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.subs {
		if !s.closed {
			out = append(out, s.dest)
		}
	}
	return out
}

func (c *fakeConn) subscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeConn) sentFrames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentFrame(nil), c.sent...)
}

// deliver pushes body to every live subscription for dest and reports how
// many received it.
func (c *fakeConn) deliver(dest, body string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.subs {
		if s.dest == dest && !s.closed {
			s.c <- transport.Frame{Destination: dest, ContentType: "application/json", Body: []byte(body)}
			n++
		}
	}
	return n
}

// fakeSubBuffer is large enough that deliver, which sends while holding the
// connection lock, never blocks in tests.
const fakeSubBuffer = 1024

type fakeSub struct {
	conn   *fakeConn
	dest   string
	c      chan transport.Frame
	closed bool
}

func (s *fakeSub) Destination() string { return s.dest }

func (s *fakeSub) C() <-chan transport.Frame { return s.c }

func (s *fakeSub) Unsubscribe() error {
	s.conn.mu.Lock()
	gate, started := s.conn.gate, s.conn.unsubscribing
	s.conn.mu.Unlock()
	if gate != nil {
		started <- s.dest
		<-gate
	}

	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *fakeSub) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.c)
	}
}
