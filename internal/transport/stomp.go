package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3"

	"github.com/dukerupert/healthnotify/internal/credential"
	"github.com/dukerupert/healthnotify/internal/logging"
)

const (
	defaultReadLimit          = 1 << 20
	defaultUnsubscribeTimeout = 2 * time.Second
	disconnectTimeout         = 2 * time.Second
	subscriptionBuffer        = 16
)

var errClosedByProtocol = errors.New("connection closed by protocol layer")

// StompDialer opens STOMP 1.2 sessions over a WebSocket. The credential is
// sent both on the HTTP upgrade and in the CONNECT frame, since servers differ
// in where they authenticate.
type StompDialer struct {
	URL        string
	Host       string
	HeartBeat  time.Duration
	HTTPClient *http.Client
	ReadLimit  int64
	// UnsubscribeTimeout bounds the wait for an UNSUBSCRIBE receipt.
	UnsubscribeTimeout time.Duration
	Logger             *slog.Logger
}

func (d *StompDialer) Dial(ctx context.Context, token string) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.Component("transport"))

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", credential.Header(token))
	}
	c, resp, err := ws.Dial(ctx, d.URL, &ws.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   header,
		Subprotocols: []string{"v12.stomp", "v11.stomp"},
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake returned %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, d.URL, err)
	}
	readLimit := d.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	c.SetReadLimit(readLimit)

	// The net.Conn outlives the dial context, so it gets its own.
	connCtx, cancel := context.WithCancel(context.Background())
	wc := &watchedConn{Conn: ws.NetConn(connCtx, c, ws.MessageText), done: make(chan struct{})}

	unsubTimeout := d.UnsubscribeTimeout
	if unsubTimeout <= 0 {
		unsubTimeout = defaultUnsubscribeTimeout
	}
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(d.HeartBeat, d.HeartBeat),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(unsubTimeout),
	}
	if d.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(d.Host))
	}
	if token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", credential.Header(token)))
	}

	stop := context.AfterFunc(ctx, func() { wc.Close() })
	sc, err := stomp.Connect(wc, opts...)
	if !stop() {
		cancel()
		if err == nil {
			sc.MustDisconnect()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
	}
	if err != nil {
		wc.closing.Store(true)
		wc.Close()
		cancel()
		return nil, connectError(err)
	}

	logger.Debug("stomp session established", slog.String("url", d.URL))
	return &stompConn{conn: sc, wc: wc, cancel: cancel, logger: logger}, nil
}

// connectError maps a rejected CONNECT to ErrUnauthorized. STOMP servers
// report auth failures only as free text in an ERROR frame.
func connectError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unauthor", "401", "403", "forbidden", "authenticat", "access denied", "expired"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: stomp connect: %w", ErrTransport, err)
}

// watchedConn closes done on the first read or write failure so callers can
// observe connection loss without polling the STOMP layer.
type watchedConn struct {
	net.Conn
	closing atomic.Bool
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	err     error
}

func (w *watchedConn) Read(p []byte) (int, error) {
	n, err := w.Conn.Read(p)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

func (w *watchedConn) Write(p []byte) (int, error) {
	n, err := w.Conn.Write(p)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

func (w *watchedConn) Close() error {
	w.fail(errClosedByProtocol)
	return w.Conn.Close()
}

func (w *watchedConn) fail(err error) {
	w.once.Do(func() {
		if w.closing.Load() {
			err = nil
		}
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		close(w.done)
	})
}

func (w *watchedConn) cause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

type stompConn struct {
	conn      *stomp.Conn
	wc        *watchedConn
	cancel    context.CancelFunc
	logger    *slog.Logger
	closeOnce sync.Once
}

func (c *stompConn) Subscribe(destination string) (Subscription, error) {
	sub, err := c.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %w", ErrTransport, destination, err)
	}
	s := &stompSubscription{
		sub:  sub,
		dest: destination,
		conn: c,
		c:    make(chan Frame, subscriptionBuffer),
		done: make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

func (c *stompConn) Send(destination, contentType string, body []byte) error {
	if err := c.conn.Send(destination, contentType, body); err != nil {
		return fmt.Errorf("%w: send %s: %w", ErrTransport, destination, err)
	}
	return nil
}

func (c *stompConn) Done() <-chan struct{} { return c.wc.done }

func (c *stompConn) Err() error {
	select {
	case <-c.wc.done:
	default:
		return nil
	}
	if err := c.wc.cause(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// Close sends DISCONNECT and waits briefly for the receipt before dropping
// the socket.
func (c *stompConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		defer c.cancel()
		select {
		case <-c.wc.done:
			c.conn.MustDisconnect()
			return
		default:
		}
		c.wc.closing.Store(true)

		result := make(chan error, 1)
		go func() { result <- c.conn.Disconnect() }()
		select {
		case err = <-result:
		case <-time.After(disconnectTimeout):
			c.logger.Warn("disconnect receipt timed out")
			err = c.conn.MustDisconnect()
		}
		c.wc.Close()
	})
	return err
}

// fail records a STOMP-level error as connection loss.
func (c *stompConn) fail(err error) {
	c.wc.fail(err)
	c.wc.Conn.Close()
}

type stompSubscription struct {
	sub  *stomp.Subscription
	dest string
	conn *stompConn
	c    chan Frame
	done chan struct{}
	once sync.Once
}

func (s *stompSubscription) Destination() string { return s.dest }

func (s *stompSubscription) C() <-chan Frame { return s.c }

func (s *stompSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		select {
		case <-s.conn.Done():
			return
		default:
		}
		if e := s.sub.Unsubscribe(); e != nil {
			err = fmt.Errorf("%w: unsubscribe %s: %w", ErrTransport, s.dest, e)
		}
	})
	return err
}

func (s *stompSubscription) unsubscribed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *stompSubscription) forward() {
	defer close(s.c)
	defer func() {
		// Keep the STOMP reader from blocking on an abandoned channel.
		go func() {
			for range s.sub.C {
			}
		}()
	}()

	for {
		select {
		case msg, ok := <-s.sub.C:
			if !ok {
				return
			}
			if msg.Err != nil {
				// Subscriptions end with an error frame when we close the
				// connection or an unsubscribe receipt times out.
				if s.conn.wc.closing.Load() || s.unsubscribed() {
					return
				}
				s.conn.logger.Warn("subscription error", logging.Destination(s.dest), logging.Err(msg.Err))
				s.conn.fail(msg.Err)
				return
			}
			f := Frame{
				Destination: msg.Destination,
				ContentType: msg.ContentType,
				Body:        msg.Body,
			}
			if msg.Header != nil {
				f.MessageID = msg.Header.Get("message-id")
			}
			if f.Destination == "" {
				f.Destination = s.dest
			}
			select {
			case s.c <- f:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}
