package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// testServer is a websocket arena server stand-in.
type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	autoPong atomic.Bool
	reject   atomic.Bool

	mu      sync.Mutex
	conns   []*websocket.Conn
	queries []url.Values

	received   chan *wire.Message
	closeCodes chan int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		t:          t,
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		received:   make(chan *wire.Message, 100),
		closeCodes: make(chan int, 10),
	}
	s.autoPong.Store(true)
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.close)
	return s
}

func (s *testServer) handle(w http.ResponseWriter, r *http.Request) {
	if s.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.queries = append(s.queries, r.URL.Query())
	s.mu.Unlock()

	go s.readLoop(conn)
}

func (s *testServer) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				s.closeCodes <- ce.Code
			}
			return
		}
		codec := wire.JSON
		if mt == websocket.BinaryMessage {
			codec = wire.CBOR
		}
		msg, err := codec.Decode(data)
		if err != nil {
			continue
		}
		if msg.Type == wire.TypePing && s.autoPong.Load() {
			pong, _ := wire.NewMessage(codec, wire.TypePong, wire.Heartbeat{PingID: msg.MessageID})
			pong.MessageID = "pong-" + msg.MessageID
			s.write(conn, pong)
			continue
		}
		if msg.Type == wire.TypePing {
			continue
		}
		s.received <- msg
	}
}

func (s *testServer) write(conn *websocket.Conn, msg *wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := wire.JSON.Encode(msg)
	require.NoError(s.t, err)
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *testServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *testServer) latest() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.conns)
	return s.conns[len(s.conns)-1]
}

func (s *testServer) lastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.queries)
	return s.queries[len(s.queries)-1]
}

// push sends a server message on the latest connection.
func (s *testServer) push(typ wire.MessageType, id string, payload any) {
	msg, err := wire.NewMessage(wire.JSON, typ, payload)
	require.NoError(s.t, err)
	msg.MessageID = id
	s.write(s.latest(), msg)
}

// closeLatest closes the latest connection with a close frame.
func (s *testServer) closeLatest(code int, reason string) {
	conn := s.latest()
	s.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	s.mu.Unlock()
	_ = conn.Close()
}

// dropLatest closes the latest connection without a close frame.
func (s *testServer) dropLatest() {
	_ = s.latest().Close()
}

func (s *testServer) next(t *testing.T) *wire.Message {
	t.Helper()
	select {
	case msg := <-s.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func (s *testServer) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-s.received:
		t.Fatalf("unexpected message %s", msg.Type)
	case <-time.After(d):
	}
}

func (s *testServer) close() {
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}

// recorder collects channel events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(ch *Channel, types ...EventType) *recorder {
	r := &recorder{}
	for _, t := range types {
		ch.On(t, func(e Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		})
	}
	return r
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) all(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		HeartbeatInterval:    time.Hour,
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 40 * time.Millisecond,
		BackoffFactor:        2,
		MaxReconnectAttempts: 5,
		ConnectTimeout:       time.Second,
		WriteTimeout:         time.Second,
	}
}

func newTestChannel(t *testing.T, cfg Config, opts ...Option) *Channel {
	t.Helper()
	ch, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)
	return ch
}

func waitState(t *testing.T, ch *Channel, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state = %v, want %v", ch.State(), want)
}

// blockingDialer never completes a dial before the context ends.
type blockingDialer struct{}

func (blockingDialer) Dial(ctx context.Context, _ string, _ http.Header, _ []string) (Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
