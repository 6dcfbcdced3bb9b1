package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

func chat(t *testing.T, msg *wire.Message) string {
	t.Helper()
	require.Equal(t, wire.TypeChatMessage, msg.Type)
	var c wire.ChatMessage
	require.NoError(t, msg.DecodeData(&c))
	return c.Message
}

func TestChannelSendWhileDisconnectedFlushesOnConnect(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))

	id, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, ch.QueueLen())
	assert.Equal(t, connection.StateDisconnected, ch.State())

	require.NoError(t, ch.Connect(context.Background(), "session-1"))
	assert.True(t, ch.IsConnected())

	msg := srv.next(t)
	assert.Equal(t, "hello", chat(t, msg))
	assert.Equal(t, id, msg.MessageID)
	assert.Equal(t, 0, ch.QueueLen())
	srv.expectNone(t, 100*time.Millisecond)
}

func TestChannelQueueOrderAndEviction(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.QueueCapacity = 3
	ch := newTestChannel(t, cfg)

	var ids []string
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		id, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: text})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	queued := ch.Queued()
	require.Len(t, queued, 3)
	assert.Equal(t, ids[2], queued[0].Message.MessageID)
	assert.Equal(t, ids[4], queued[2].Message.MessageID)

	require.NoError(t, ch.Connect(context.Background(), ""))
	assert.Equal(t, "c", chat(t, srv.next(t)))
	assert.Equal(t, "d", chat(t, srv.next(t)))
	assert.Equal(t, "e", chat(t, srv.next(t)))
	srv.expectNone(t, 50*time.Millisecond)
}

func TestChannelSendConnectedIsDirect(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.GameID = "game-9"
	cfg.PlayerID = "player-1"
	ch := newTestChannel(t, cfg)
	require.NoError(t, ch.Connect(context.Background(), ""))

	id, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: "now"})
	require.NoError(t, err)

	msg := srv.next(t)
	assert.Equal(t, id, msg.MessageID)
	assert.Equal(t, "player-1", msg.PlayerID)
	assert.Equal(t, "game-9", msg.GameID)
	assert.NotZero(t, msg.Timestamp)
	assert.Equal(t, 0, ch.QueueLen())
}

func TestChannelSendRequiresType(t *testing.T) {
	ch := newTestChannel(t, testConfig("ws://127.0.0.1:1"))
	_, err := ch.Send("", nil)
	assert.ErrorIs(t, err, wire.ErrMissingType)
	assert.Equal(t, 0, ch.QueueLen())
}

func TestChannelSessionTokenIdentifiesPlayer(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "player-7"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	require.NoError(t, ch.Connect(context.Background(), token))
	assert.Equal(t, token, srv.lastQuery().Get("sessionId"))
	assert.Equal(t, "player-7", ch.PlayerID())

	_, err = ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "player-7", srv.next(t).PlayerID)
}

func TestChannelConnectTwice(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))
	require.NoError(t, ch.Connect(context.Background(), ""))

	err := ch.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, 1, srv.connCount())
}

func TestChannelConnectWithoutURL(t *testing.T) {
	ch := newTestChannel(t, testConfig(""))
	err := ch.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoURL)
	assert.Equal(t, connection.StateDisconnected, ch.State())
}

func TestChannelConnectTimeout(t *testing.T) {
	cfg := testConfig("ws://arena.invalid/ws")
	cfg.ConnectTimeout = 30 * time.Millisecond
	ch := newTestChannel(t, cfg, WithDialer(blockingDialer{}))
	rec := record(ch, EventError, EventStateChange)

	err := ch.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Equal(t, connection.StateDisconnected, ch.State())

	errs := rec.all(EventError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, ErrConnectTimeout)

	changes := rec.all(EventStateChange)
	require.Len(t, changes, 2)
	assert.Equal(t, connection.StateConnecting, changes[0].State)
	assert.Equal(t, connection.StateDisconnected, changes[1].State)
}

func TestChannelDisconnect(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))
	rec := record(ch, EventDisconnect, EventReconnecting)
	require.NoError(t, ch.Connect(context.Background(), ""))

	ch.Disconnect()
	assert.Equal(t, connection.StateDisconnected, ch.State())

	select {
	case code := <-srv.closeCodes:
		assert.Equal(t, CloseNormal, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no close frame")
	}

	disconnects := rec.all(EventDisconnect)
	require.Len(t, disconnects, 1)
	assert.Equal(t, CloseNormal, disconnects[0].Code)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count(EventReconnecting))
	assert.Equal(t, 1, srv.connCount())

	// A second disconnect is silent.
	ch.Disconnect()
	assert.Equal(t, 1, rec.count(EventDisconnect))
}

func TestChannelClosePolicy(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantState connection.State
		reconnect bool
	}{
		{name: "normal", code: CloseNormal, wantState: connection.StateDisconnected},
		{name: "application", code: 4001, wantState: connection.StateError},
		{name: "going away", code: 1001, wantState: connection.StateConnected, reconnect: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			ch := newTestChannel(t, testConfig(srv.url()))
			rec := record(ch, EventDisconnect, EventError, EventReconnecting, EventReconnected)
			require.NoError(t, ch.Connect(context.Background(), ""))

			srv.closeLatest(tt.code, "closing")

			require.Eventually(t, func() bool { return rec.count(EventDisconnect) == 1 },
				2*time.Second, 5*time.Millisecond)
			disconnect := rec.all(EventDisconnect)[0]
			assert.Equal(t, tt.code, disconnect.Code)
			assert.Equal(t, "closing", disconnect.Reason)

			if tt.reconnect {
				require.Eventually(t, func() bool { return rec.count(EventReconnected) == 1 },
					2*time.Second, 5*time.Millisecond)
				assert.Equal(t, 2, srv.connCount())
			} else {
				time.Sleep(50 * time.Millisecond)
				assert.Equal(t, 0, rec.count(EventReconnecting))
				assert.Equal(t, 1, srv.connCount())
			}
			waitState(t, ch, tt.wantState)

			if tt.wantState == connection.StateError {
				errs := rec.all(EventError)
				require.Len(t, errs, 1)
				var cerr *CloseError
				require.True(t, errors.As(errs[0].Err, &cerr))
				assert.Equal(t, tt.code, cerr.Code)
				assert.Equal(t, "closing", cerr.Reason)
			}
		})
	}
}

func TestChannelReconnectFlushesQueued(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.MaxReconnectAttempts = -1
	ch := newTestChannel(t, cfg)
	rec := record(ch, EventReconnecting, EventReconnected)
	require.NoError(t, ch.Connect(context.Background(), "session-1"))

	srv.reject.Store(true)
	srv.dropLatest()
	require.Eventually(t, func() bool { return rec.count(EventReconnecting) >= 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, connection.StateReconnecting, ch.State())

	_, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: "while away"})
	require.NoError(t, err)
	assert.Equal(t, 1, ch.QueueLen())

	srv.reject.Store(false)
	require.Eventually(t, func() bool { return rec.count(EventReconnected) == 1 },
		2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "while away", chat(t, srv.next(t)))
	assert.Equal(t, 0, ch.QueueLen())
	assert.Equal(t, "session-1", srv.lastQuery().Get("sessionId"))
	assert.Equal(t, 0, ch.Status().ReconnectAttempts)
}

func TestChannelReconnectCeiling(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.MaxReconnectAttempts = 2
	ch := newTestChannel(t, cfg)
	rec := record(ch, EventReconnecting, EventError)
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.reject.Store(true)
	srv.dropLatest()

	waitState(t, ch, connection.StateError)

	reconnecting := rec.all(EventReconnecting)
	require.Len(t, reconnecting, 2)
	assert.Equal(t, 1, reconnecting[0].Attempt)
	assert.Equal(t, 10*time.Millisecond, reconnecting[0].Delay)
	assert.Equal(t, 2, reconnecting[1].Attempt)
	assert.Equal(t, 20*time.Millisecond, reconnecting[1].Delay)

	errs := rec.all(EventError)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[len(errs)-1].Err, ErrReconnectExhausted)

	status := ch.Status()
	assert.Equal(t, 2, status.ReconnectAttempts)
	assert.Equal(t, 2, status.MaxReconnectAttempts)
}

func TestChannelConnectAfterError(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.closeLatest(4003, "kicked")
	waitState(t, ch, connection.StateError)

	require.NoError(t, ch.Connect(context.Background(), ""))
	assert.True(t, ch.IsConnected())
	assert.Equal(t, 2, srv.connCount())
}

func TestChannelHeartbeatLatency(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.HeartbeatInterval = 20 * time.Millisecond
	ch := newTestChannel(t, cfg)
	require.NoError(t, ch.Connect(context.Background(), ""))

	require.Eventually(t, func() bool { return ch.Latency() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ch.Latency(), ch.Status().Latency)
	assert.True(t, ch.IsConnected())
}

func TestChannelHeartbeatTimeout(t *testing.T) {
	srv := newTestServer(t)
	srv.autoPong.Store(false)
	cfg := testConfig(srv.url())
	cfg.HeartbeatInterval = 10 * time.Millisecond
	cfg.PongTimeout = 5 * time.Millisecond
	cfg.MaxMissedPongs = 2
	ch := newTestChannel(t, cfg)
	rec := record(ch, EventDisconnect, EventReconnecting)
	require.NoError(t, ch.Connect(context.Background(), ""))

	require.Eventually(t, func() bool { return rec.count(EventReconnecting) >= 1 },
		2*time.Second, 5*time.Millisecond)

	disconnect := rec.all(EventDisconnect)[0]
	assert.Equal(t, CloseAbnormal, disconnect.Code)
	assert.Equal(t, ErrHeartbeatTimeout.Error(), disconnect.Reason)
}

func TestChannelAnswersServerPing(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))
	var messages atomic.Int32
	ch.On(EventMessage, func(Event) { messages.Add(1) })
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.push(wire.TypePing, "srv-ping", wire.Heartbeat{Seq: 4})

	msg := srv.next(t)
	require.Equal(t, wire.TypePong, msg.Type)
	var hb wire.Heartbeat
	require.NoError(t, msg.DecodeData(&hb))
	assert.Equal(t, "srv-ping", hb.PingID)
	assert.Equal(t, uint64(4), hb.Seq)
	assert.Zero(t, messages.Load())
}

func TestChannelInboundDispatchAndDedup(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))

	got := make(chan string, 10)
	ch.Handle(wire.TypeChatMessage, func(msg *wire.Message) {
		var c wire.ChatMessage
		_ = msg.DecodeData(&c)
		got <- c.Message
	})
	var events atomic.Int32
	ch.On(EventMessage, func(Event) { events.Add(1) })
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.push(wire.TypeChatMessage, "dup-1", wire.ChatMessage{Message: "first"})
	srv.push(wire.TypeChatMessage, "dup-1", wire.ChatMessage{Message: "again"})
	srv.push(wire.TypeChatMessage, "msg-2", wire.ChatMessage{Message: "second"})

	var texts []string
	for len(texts) < 2 {
		select {
		case text := <-got:
			texts = append(texts, text)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}
	assert.Equal(t, []string{"first", "second"}, texts)
	assert.Equal(t, int32(2), events.Load())
}

func TestChannelDedupDisabled(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.DedupWindow = -1
	ch := newTestChannel(t, cfg)

	var count atomic.Int32
	ch.Handle(wire.TypeSystemAnnouncement, func(*wire.Message) { count.Add(1) })
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.push(wire.TypeSystemAnnouncement, "same", nil)
	srv.push(wire.TypeSystemAnnouncement, "same", nil)

	require.Eventually(t, func() bool { return count.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestChannelListenerPanicIsolated(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))

	ch.On(EventMessage, func(Event) { panic("boom") })
	var delivered atomic.Int32
	ch.On(EventMessage, func(Event) { delivered.Add(1) })
	ch.Handle(wire.TypeChatMessage, func(*wire.Message) { panic("boom") })
	var handled atomic.Int32
	ch.Handle(wire.TypeChatMessage, func(*wire.Message) { handled.Add(1) })
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.push(wire.TypeChatMessage, "m1", wire.ChatMessage{Message: "x"})
	srv.push(wire.TypeChatMessage, "m2", wire.ChatMessage{Message: "y"})

	require.Eventually(t, func() bool { return handled.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), delivered.Load())
	assert.True(t, ch.IsConnected())
}

func TestChannelUnsubscribe(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))

	var first, second atomic.Int32
	off := ch.Handle(wire.TypeChatMessage, func(*wire.Message) { first.Add(1) })
	ch.Handle(wire.TypeChatMessage, func(*wire.Message) { second.Add(1) })
	off()
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.push(wire.TypeChatMessage, "m1", wire.ChatMessage{Message: "x"})
	require.Eventually(t, func() bool { return second.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, first.Load())
}

func TestChannelServerRateLimitPausesSends(t *testing.T) {
	srv := newTestServer(t)
	ch := newTestChannel(t, testConfig(srv.url()))
	limited := make(chan struct{}, 1)
	ch.Handle(wire.TypeRateLimit, func(*wire.Message) { limited <- struct{}{} })
	require.NoError(t, ch.Connect(context.Background(), ""))

	srv.push(wire.TypeRateLimit, "rl-1", wire.RateLimit{RetryAfterMs: 150})
	select {
	case <-limited:
	case <-time.After(2 * time.Second):
		t.Fatal("rate limit not delivered")
	}
	start := time.Now()

	_, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: "later"})
	require.NoError(t, err)
	assert.Equal(t, 1, ch.QueueLen())
	srv.expectNone(t, 50*time.Millisecond)

	assert.Equal(t, "later", chat(t, srv.next(t)))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, ch.QueueLen())
}

func TestChannelSendRateLimit(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.SendRateLimit = 20
	ch := newTestChannel(t, cfg)
	require.NoError(t, ch.Connect(context.Background(), ""))

	for _, text := range []string{"1", "2", "3"} {
		_, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: text})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ch.QueueLen())

	assert.Equal(t, "1", chat(t, srv.next(t)))
	assert.Equal(t, "2", chat(t, srv.next(t)))
	assert.Equal(t, "3", chat(t, srv.next(t)))
	require.Eventually(t, func() bool { return ch.QueueLen() == 0 }, time.Second, 5*time.Millisecond)
}

func TestChannelCBORFrames(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(srv.url())
	cfg.Codec = "cbor"
	ch := newTestChannel(t, cfg)
	got := make(chan string, 1)
	ch.Handle(wire.TypeChatMessage, func(msg *wire.Message) {
		var c wire.ChatMessage
		_ = msg.DecodeData(&c)
		got <- c.Message
	})
	require.NoError(t, ch.Connect(context.Background(), ""))

	_, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: "binary"})
	require.NoError(t, err)
	msg := srv.next(t)
	assert.Equal(t, "cbor", msg.Codec().Name())
	assert.Equal(t, "binary", chat(t, msg))

	// Text frames are still understood.
	srv.push(wire.TypeChatMessage, "t1", wire.ChatMessage{Message: "text"})
	select {
	case text := <-got:
		assert.Equal(t, "text", text)
	case <-time.After(2 * time.Second):
		t.Fatal("text frame not dispatched")
	}
}

func TestChannelUpdateConfig(t *testing.T) {
	ch := newTestChannel(t, testConfig("ws://127.0.0.1:1"))
	for _, text := range []string{"a", "b", "c"} {
		_, err := ch.Send(wire.TypeChatMessage, wire.ChatMessage{Message: text})
		require.NoError(t, err)
	}

	require.NoError(t, ch.UpdateConfig(func(c *Config) {
		c.QueueCapacity = 1
		c.MaxReconnectAttempts = 7
		c.Debug = true
	}))
	queued := ch.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, "c", chat(t, queued[0].Message))
	assert.Equal(t, 7, ch.Config().MaxReconnectAttempts)
	assert.Equal(t, 7, ch.Status().MaxReconnectAttempts)

	err := ch.UpdateConfig(func(c *Config) { c.Codec = "xml" })
	assert.Error(t, err)
	assert.Equal(t, "", ch.Config().Codec)
	assert.Equal(t, 1, ch.Config().QueueCapacity)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{name: "codec", mod: func(c *Config) { c.Codec = "xml" }},
		{name: "intervals", mod: func(c *Config) {
			c.ReconnectInterval = time.Minute
			c.MaxReconnectInterval = time.Second
		}},
		{name: "rate", mod: func(c *Config) { c.SendRateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("ws://127.0.0.1:1")
			tt.mod(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("wss://arena.example/ws")
	assert.Equal(t, "wss://arena.example/ws", cfg.URL)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, connection.DefaultReconnectInterval, cfg.ReconnectInterval)
	assert.Equal(t, connection.DefaultMaxReconnectInterval, cfg.MaxReconnectInterval)
	assert.Equal(t, float64(connection.DefaultBackoffFactor), cfg.BackoffFactor)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultDedupWindow, cfg.DedupWindow)
	assert.Zero(t, cfg.SendBurst)
}
