// Package stomptest runs a minimal in-process STOMP 1.2 broker over a
// WebSocket for tests.
package stomptest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ws "github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
)

// Server answers CONNECT, replies to every SUBSCRIBE with one MESSAGE and
// acknowledges UNSUBSCRIBE and DISCONNECT receipts.
type Server struct {
	// Token is the bearer credential the broker accepts.
	Token string
	// CheckHandshake rejects the HTTP upgrade without the bearer token.
	CheckHandshake bool
	// RejectConnect answers CONNECT with an ERROR frame.
	RejectConnect bool
	// DropAfterSubscribe closes the socket after the first MESSAGE.
	DropAfterSubscribe bool
	// IgnoreUnsubscribe never sends the RECEIPT for an UNSUBSCRIBE.
	IgnoreUnsubscribe bool

	// Sent receives every SEND frame.
	Sent chan *frame.Frame
	// Unsubscribed receives the subscription id of every UNSUBSCRIBE.
	Unsubscribed chan string

	srv *httptest.Server
}

// Start serves s until the test ends.
func Start(t testing.TB, s *Server) *Server {
	t.Helper()
	s.Sent = make(chan *frame.Frame, 16)
	s.Unsubscribed = make(chan string, 16)
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the broker's ws:// endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *Server) authorized(value string) bool {
	return value == "Bearer "+s.Token
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.CheckHandshake && !s.authorized(r.Header.Get("Authorization")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c, err := ws.Accept(w, r, &ws.AcceptOptions{Subprotocols: []string{"v12.stomp"}})
	if err != nil {
		return
	}
	nc := ws.NetConn(r.Context(), c, ws.MessageText)
	defer nc.Close()

	rd := frame.NewReader(nc)
	wr := frame.NewWriter(nc)

	connect, err := rd.Read()
	if err != nil || connect == nil {
		return
	}
	if s.RejectConnect || !s.authorized(connect.Header.Get("Authorization")) {
		wr.Write(frame.New("ERROR", "message", "Access denied: unauthorized"))
		return
	}
	if err := wr.Write(frame.New("CONNECTED", "version", "1.2", "heart-beat", "0,0")); err != nil {
		return
	}

	for {
		f, err := rd.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case "SUBSCRIBE":
			msg := frame.New("MESSAGE",
				"destination", f.Header.Get("destination"),
				"message-id", "m-1",
				"subscription", f.Header.Get("id"),
				"content-type", "application/json",
			)
			msg.Body = []byte(`{"id":1}`)
			if err := wr.Write(msg); err != nil {
				return
			}
			if s.DropAfterSubscribe {
				return
			}
		case "UNSUBSCRIBE":
			select {
			case s.Unsubscribed <- f.Header.Get("id"):
			default:
			}
			if s.IgnoreUnsubscribe {
				continue
			}
			if receipt := f.Header.Get("receipt"); receipt != "" {
				if err := wr.Write(frame.New("RECEIPT", "receipt-id", receipt)); err != nil {
					return
				}
			}
		case "SEND":
			select {
			case s.Sent <- f:
			default:
			}
		case "DISCONNECT":
			if receipt := f.Header.Get("receipt"); receipt != "" {
				wr.Write(frame.New("RECEIPT", "receipt-id", receipt))
			}
			return
		}
	}
}
