package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial/h3grid"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/transport"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

var home = spatial.LatLng{Lat: 37.7749, Lng: -122.4194}

// arenaServer accepts one connection at a time and records what it
// receives.
type arenaServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	// reject refuses new connections when set.
	reject atomic.Bool

	received chan *wire.Message
}

func newArenaServer(t *testing.T) *arenaServer {
	t.Helper()
	s := &arenaServer{
		t:        t,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		received: make(chan *wire.Message, 100),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(func() {
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
	})
	return s
}

func (s *arenaServer) handle(w http.ResponseWriter, r *http.Request) {
	if s.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wire.JSON.Decode(data)
		if err != nil || msg.Type == wire.TypePing {
			continue
		}
		s.received <- msg
	}
}

func (s *arenaServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *arenaServer) push(typ wire.MessageType, id string, payload any) {
	msg, err := wire.NewMessage(wire.JSON, typ, payload)
	require.NoError(s.t, err)
	msg.MessageID = id
	msg.PlayerID = "server"
	data, err := wire.JSON.Encode(msg)
	require.NoError(s.t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(s.t, s.conn)
	require.NoError(s.t, s.conn.WriteMessage(websocket.TextMessage, data))
}

// closeWith sends a close frame and drops the connection.
func (s *arenaServer) closeWith(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(s.t, s.conn)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = s.conn.Close()
}

// drop closes the connection without a close frame.
func (s *arenaServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotNil(s.t, s.conn)
	_ = s.conn.Close()
}

// next returns the next received message of type typ.
func (s *arenaServer) next(t *testing.T, typ wire.MessageType) *wire.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.received:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

// events collects service events.
type events struct {
	mu  sync.Mutex
	all []Event
}

func (e *events) record(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) find(typ EventType) (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.all {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

func (e *events) wait(t *testing.T, typ EventType) Event {
	t.Helper()
	var got Event
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = e.find(typ)
		return ok
	}, 2*time.Second, 5*time.Millisecond, "no %s event", typ)
	return got
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.Transport.PlayerID = "p1"
	cfg.Transport.HeartbeatInterval = time.Hour
	cfg.Geofence.DebounceDuration = 10 * time.Millisecond
	cfg.Geofence.RefractoryWindow = 0
	cfg.Geofence.EnableProximity = false
	return cfg
}

func newTestService(t *testing.T, cfg Config) (*PlayerService, *events) {
	t.Helper()
	svc, err := NewPlayerService(cfg)
	require.NoError(t, err)
	rec := &events{}
	svc.OnEvent(rec.record)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })
	return svc, rec
}

func homeCell(t *testing.T) string {
	t.Helper()
	cell, err := h3grid.New().CellAt(home, testConfig("").Geofence.Resolution)
	require.NoError(t, err)
	return cell
}

func TestServiceStateString(t *testing.T) {
	tests := []struct {
		state ServiceState
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateStarting, "STARTING"},
		{StateRunning, "RUNNING"},
		{StateStopping, "STOPPING"},
		{StateStopped, "STOPPED"},
		{ServiceState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
	assert.Equal(t, "ZONE_ENTERED", EventZoneEntered.String())
	assert.Equal(t, "TRANSPORT_ERROR", EventTransportError.String())
	assert.Equal(t, "UNKNOWN", EventType(99).String())
}

func TestLifecycle(t *testing.T) {
	svc, err := NewPlayerService(testConfig(""))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, svc.State())

	assert.ErrorIs(t, svc.Connect(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, svc.Stop(), ErrNotStarted)

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
	assert.True(t, svc.Monitor().IsMonitoring())
	assert.True(t, svc.Synchronizer().IsRunning())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, svc.Stop())
	assert.Equal(t, StateStopped, svc.State())
	assert.False(t, svc.Monitor().IsMonitoring())
	assert.False(t, svc.Synchronizer().IsRunning())
	assert.ErrorIs(t, svc.Move(home), ErrNotStarted)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.Geofence.Resolution = 16
	_, err := NewPlayerService(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig("")
	cfg.Sync.Policy = zonesync.Policy(42)
	_, err = NewPlayerService(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestZoneChangeWatchesUnionOfCells(t *testing.T) {
	svc, rec := newTestService(t, testConfig(""))

	cell := homeCell(t)
	require.NoError(t, svc.Synchronizer().InitializeZone(&wire.Zone{ID: "z1", Cells: []string{cell}}))
	require.NoError(t, svc.Synchronizer().InitializeZone(&wire.Zone{ID: "z2", Cells: []string{"8a283082a677fff", cell}}))

	ev := rec.wait(t, EventZoneChanged)
	assert.Equal(t, "z1", ev.ZoneID)
	assert.ElementsMatch(t, []string{cell, "8a283082a677fff"}, svc.Monitor().State().ActiveZoneIndices)

	require.NoError(t, svc.Move(home))
	entered := rec.wait(t, EventZoneEntered)
	assert.Equal(t, cell, entered.Geofence.Cell)

	st := svc.Status()
	assert.Equal(t, 2, st.Zones)
	assert.Equal(t, cell, st.CurrentCell)
	assert.True(t, st.Monitoring)
}

func TestMoveRejectsInvalidCoordinate(t *testing.T) {
	svc, _ := newTestService(t, testConfig(""))
	assert.ErrorIs(t, svc.Move(spatial.LatLng{Lat: 91}), spatial.ErrInvalidLatLng)
}

func TestPositionReportedWhileConnected(t *testing.T) {
	srv := newArenaServer(t)
	svc, rec := newTestService(t, testConfig(srv.url()))

	// Not connected: nothing is queued.
	require.NoError(t, svc.Move(home))
	assert.Zero(t, svc.Channel().QueueLen())

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	require.NoError(t, svc.Move(home))
	msg := srv.next(t, wire.TypePlayerMove)
	assert.Equal(t, "p1", msg.PlayerID)

	var move wire.PlayerMove
	require.NoError(t, msg.DecodeData(&move))
	assert.InDelta(t, home.Lat, move.Lat, 1e-9)
	assert.Equal(t, homeCell(t), move.Cell)
	assert.NotZero(t, move.Timestamp)
}

func TestReportPositionDisabled(t *testing.T) {
	srv := newArenaServer(t)
	cfg := testConfig(srv.url())
	cfg.ReportPosition = false
	svc, rec := newTestService(t, cfg)

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	require.NoError(t, svc.Move(home))
	_, err := svc.SendChat("gg")
	require.NoError(t, err)
	msg := srv.next(t, wire.TypeChatMessage)
	assert.Equal(t, wire.TypeChatMessage, msg.Type, "the move was never sent")
}

func TestChatQueuedWhileDisconnected(t *testing.T) {
	srv := newArenaServer(t)
	svc, rec := newTestService(t, testConfig(srv.url()))

	_, err := svc.SendChat("")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	id, err := svc.SendChat("hello arena")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, svc.Status().Queued)

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	msg := srv.next(t, wire.TypeChatMessage)
	assert.Equal(t, id, msg.MessageID)
	assert.Zero(t, svc.Status().Queued)
}

func TestServerPushesBecomeEvents(t *testing.T) {
	srv := newArenaServer(t)
	svc, rec := newTestService(t, testConfig(srv.url()))

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	srv.push(wire.TypeChatMessage, "m-1", wire.ChatMessage{Message: "welcome"})
	chat := rec.wait(t, EventChat)
	assert.Equal(t, "welcome", chat.Message)
	assert.Equal(t, "server", chat.PlayerID)

	srv.push(wire.TypeError, "m-2", wire.ErrorPayload{Code: "bad_move", Message: "out of bounds"})
	assert.Equal(t, "out of bounds", rec.wait(t, EventServerError).Message)

	srv.push(wire.TypeArenaZoneUpdate, "m-3", wire.ZoneUpdate{
		ZoneID:    "z9",
		Timestamp: wire.Now(),
		Zone:      &wire.Zone{ID: "z9", Cells: []string{homeCell(t)}, Version: 1},
	})
	require.Eventually(t, func() bool {
		return svc.Synchronizer().Zone("z9") != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, svc.Monitor().State().ActiveZoneIndices, homeCell(t))
}

func TestRequestSync(t *testing.T) {
	srv := newArenaServer(t)
	svc, rec := newTestService(t, testConfig(srv.url()))
	require.NoError(t, svc.Synchronizer().InitializeZone(&wire.Zone{ID: "z1"}))

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	_, err := svc.RequestSync()
	require.NoError(t, err)

	msg := srv.next(t, wire.TypeGameStateSync)
	var req wire.GameStateSyncRequest
	require.NoError(t, msg.DecodeData(&req))
	assert.Equal(t, []string{"z1"}, req.ZoneIDs)
}

func TestDisconnectEvents(t *testing.T) {
	srv := newArenaServer(t)
	svc, rec := newTestService(t, testConfig(srv.url()))
	require.NoError(t, svc.Synchronizer().InitializeZone(&wire.Zone{ID: "z1"}))

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	svc.Disconnect()
	rec.wait(t, EventDisconnected)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, ev := range rec.all {
			if ev.Type == EventZoneStatus && ev.ZoneID == "z1" && ev.Status == zonesync.StatusDisconnected {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTerminalCloseIsFatalTransportError(t *testing.T) {
	srv := newArenaServer(t)
	svc, rec := newTestService(t, testConfig(srv.url()))

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	srv.closeWith(4001, "banned")

	ev := rec.wait(t, EventTransportError)
	assert.True(t, ev.Fatal)
	var cerr *transport.CloseError
	require.ErrorAs(t, ev.Error, &cerr)
	assert.Equal(t, 4001, cerr.Code)
	assert.Equal(t, "banned", cerr.Reason)
	assert.Equal(t, connection.StateError, svc.Channel().State())

	_, reconnecting := rec.find(EventReconnecting)
	assert.False(t, reconnecting)
}

func TestReconnectExhaustedIsFatalTransportError(t *testing.T) {
	srv := newArenaServer(t)
	cfg := testConfig(srv.url())
	cfg.Transport.ReconnectInterval = 5 * time.Millisecond
	cfg.Transport.MaxReconnectInterval = 10 * time.Millisecond
	cfg.Transport.MaxReconnectAttempts = 2
	svc, rec := newTestService(t, cfg)

	require.NoError(t, svc.Connect(context.Background()))
	rec.wait(t, EventConnected)

	srv.reject.Store(true)
	srv.drop()

	var fatal Event
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, ev := range rec.all {
			if ev.Type == EventTransportError && ev.Fatal {
				fatal = ev
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, fatal.Error, transport.ErrReconnectExhausted)
	assert.Equal(t, connection.StateError, svc.Channel().State())
}

// lockedBuffer is written by service goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDebugSwitchIsIndependent(t *testing.T) {
	for _, debug := range []bool{false, true} {
		t.Run(fmt.Sprint(debug), func(t *testing.T) {
			out := &lockedBuffer{}
			cfg := testConfig("")
			cfg.Debug = debug
			cfg.Transport.Debug = !debug
			cfg.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
			svc, _ := newTestService(t, cfg)

			require.NoError(t, svc.Synchronizer().InitializeZone(&wire.Zone{ID: "z1", Cells: []string{homeCell(t)}}))

			if debug {
				require.Eventually(t, func() bool {
					return strings.Contains(out.String(), "watched cells updated")
				}, 2*time.Second, 5*time.Millisecond)
			} else {
				time.Sleep(20 * time.Millisecond)
				assert.NotContains(t, out.String(), "watched cells updated")
			}
		})
	}
}

func TestStoreRestoresZonesOnStart(t *testing.T) {
	cfg := testConfig("")
	cfg.StorePath = filepath.Join(t.TempDir(), "zones.db")
	cell := homeCell(t)

	first, err := NewPlayerService(cfg)
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, first.Synchronizer().InitializeZone(&wire.Zone{ID: "z1", Cells: []string{cell}, Version: 3}))
	require.NoError(t, first.Stop())

	second, _ := newTestService(t, cfg)
	z := second.Synchronizer().Zone("z1")
	require.NotNil(t, z)
	assert.Equal(t, []string{cell}, z.Cells)
	assert.Equal(t, []string{cell}, second.Monitor().State().ActiveZoneIndices)
}
