package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/healthnotify/internal/logging"
	"github.com/dukerupert/healthnotify/internal/transport"
	"github.com/dukerupert/healthnotify/internal/transport/stomptest"
)

const brokerToken = "broker-token"

// newBrokerSession connects a Session to an in-process STOMP broker that
// never acknowledges UNSUBSCRIBE.
func newBrokerSession(t *testing.T, unsubscribeTimeout time.Duration) (*Session, *stomptest.Server) {
	t.Helper()
	b := stomptest.Start(t, &stomptest.Server{Token: brokerToken, IgnoreUnsubscribe: true})
	d := &transport.StompDialer{
		URL:                b.URL(),
		UnsubscribeTimeout: unsubscribeTimeout,
		Logger:             logging.Discard(),
	}
	s := New(d, WithLogger(logging.Discard()), WithMaxReconnectAttempts(0))
	t.Cleanup(func() { s.Disconnect() })
	return s, b
}

func TestStompRemoveHandlerReleasesSession(t *testing.T) {
	const unsubscribeTimeout = 500 * time.Millisecond
	s, b := newBrokerSession(t, unsubscribeTimeout)
	c := &calls{}
	require.NoError(t, s.AddHandler(notifications, "a", c.handler("a")))
	require.NoError(t, s.AddHandler(restock, "b", c.handler("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx, brokerToken))
	c.waitLen(t, 2)

	removed := make(chan struct{})
	go func() {
		defer close(removed)
		s.RemoveHandler(notifications, "a")
	}()
	select {
	case <-b.Unsubscribed:
	case <-time.After(waitTimeout):
		t.Fatal("broker did not receive UNSUBSCRIBE")
	}

	// The receipt never comes, yet the session stays usable meanwhile.
	returnsWithin(t, 100*time.Millisecond, "IsConnected", func() { assert.True(t, s.IsConnected()) })
	returnsWithin(t, 100*time.Millisecond, "Publish", func() {
		assert.NoError(t, s.Publish("/app/ping", "text/plain", []byte("x")))
	})

	select {
	case <-removed:
	case <-time.After(unsubscribeTimeout + waitTimeout):
		t.Fatal("RemoveHandler not bounded by the unsubscribe timeout")
	}
	assert.True(t, s.IsConnected())
	assert.Equal(t, []string{restock}, s.Destinations())
}

func TestStompDisconnectWithLiveSubscriptions(t *testing.T) {
	s, b := newBrokerSession(t, 0)
	c := &calls{}
	require.NoError(t, s.AddHandler(notifications, "a", c.handler("a")))
	require.NoError(t, s.AddHandler(restock, "b", c.handler("b")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx, brokerToken))
	c.waitLen(t, 2)

	start := time.Now()
	require.NoError(t, s.Disconnect())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, s.IsConnected())
	assert.Empty(t, b.Unsubscribed, "DISCONNECT ends subscriptions without UNSUBSCRIBE")
}
