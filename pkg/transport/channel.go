package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// ConnectionState is a snapshot of the channel's connection bookkeeping.
type ConnectionState struct {
	Status               connection.State
	ReconnectAttempts    int
	MaxReconnectAttempts int
	Latency              time.Duration
	LastConnected        time.Time
	LastDisconnected     time.Time
	ConnectionID         string
}

// session is one live websocket connection.
type session struct {
	conn         Conn
	id           string
	codec        wire.Codec
	writeTimeout time.Duration
	keepAlive    *KeepAlive
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// close stops the heartbeat and closes the socket. A non-zero code sends a
// close frame first.
func (s *session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.keepAlive.Stop()
		s.cancel()
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		}
		_ = s.conn.Close()
	})
}

// Channel owns the single live connection to the arena server.
type Channel struct {
	mu sync.Mutex

	cfg    Config
	codec  wire.Codec
	dialer Dialer
	logger *slog.Logger
	plog   log.Logger
	debug  atomic.Bool

	state            connection.State
	sess             *session
	gen              uint64
	sessionID        string
	playerID         string
	connectionID     string
	latency          time.Duration
	lastConnected    time.Time
	lastDisconnected time.Time

	reconnector  *connection.Reconnector
	backoffDirty bool

	queue       *Queue
	limiter     *rate.Limiter
	pausedUntil time.Time
	drainTimer  *time.Timer

	dedup *lru.Cache[string, struct{}]

	// writeMu serialises frame writes so queued and direct sends never
	// interleave.
	writeMu sync.Mutex

	events *registry
}

// Option configures a Channel.
type Option func(*Channel)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Channel) {
		c.dialer = d
	}
}

// New creates a disconnected channel.
// Logger and ProtocolLogger are fixed at construction.
func New(cfg Config, opts ...Option) (*Channel, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	codec, err := wire.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Channel{
		cfg:         cfg,
		codec:       codec,
		dialer:      WebSocketDialer{},
		logger:      logger,
		plog:        log.OrNoop(cfg.ProtocolLogger),
		state:       connection.StateDisconnected,
		playerID:    cfg.PlayerID,
		reconnector: connection.NewReconnector(cfg.backoff(), cfg.maxAttempts()),
		queue:       NewQueue(cfg.QueueCapacity),
		limiter:     newLimiter(cfg),
		events:      newRegistry(logger),
	}
	c.debug.Store(cfg.Debug)
	c.dedup, err = newDedup(cfg.DedupWindow)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.SendRateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendBurst)
}

func newDedup(window int) (*lru.Cache[string, struct{}], error) {
	if window <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, struct{}](window)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup window: %w", err)
	}
	return cache, nil
}

// On registers a listener for an event type and returns a function that
// removes it.
func (c *Channel) On(t EventType, l Listener) func() {
	return c.events.on(t, l)
}

// Handle registers a handler for inbound messages of one type and returns a
// function that removes it.
func (c *Channel) Handle(t wire.MessageType, h Handler) func() {
	return c.events.handle(t, h)
}

// Connect opens the connection. It returns once the connection is open,
// the connect timeout elapses, or the dial fails.
func (c *Channel) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.state == connection.StateConnected || c.state == connection.StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	target, err := sessionURL(c.cfg.URL, sessionID)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.reconnector.Cancel()
	c.sessionID = sessionID
	c.playerID = c.cfg.PlayerID
	if c.playerID == "" {
		c.playerID = playerFromToken(sessionID)
	}
	c.gen++
	gen := c.gen
	cfg := c.cfg
	evs := c.setStateLocked(connection.StateConnecting, "connect")
	c.mu.Unlock()
	c.emitAll(evs)

	conn, err := c.dial(ctx, target, cfg)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrConnectionClosed
	}
	if err != nil {
		evs = c.setStateLocked(connection.StateDisconnected, err.Error())
		evs = append(evs, Event{Type: EventError, State: c.state, Err: err})
		c.mu.Unlock()
		c.logger.Warn("connect failed", "url", cfg.URL, "error", err)
		c.captureError("connect", err)
		c.emitAll(evs)
		return err
	}
	evs = c.attachLocked(conn, "connected")
	evs = append(evs, Event{Type: EventConnect, State: connection.StateConnected})
	c.mu.Unlock()

	c.flush()
	c.emitAll(evs)
	return nil
}

// Disconnect closes the connection with a normal closure, cancels any
// scheduled reconnect or drain, and resets the reconnect counter.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.reconnector.Reset()
	c.stopDrainLocked()
	s := c.sess
	c.sess = nil
	if s != nil {
		c.lastDisconnected = time.Now()
	}
	prev := c.state
	evs := c.setStateLocked(connection.StateDisconnected, "client disconnect")
	if prev != connection.StateDisconnected {
		evs = append(evs, Event{
			Type:   EventDisconnect,
			State:  connection.StateDisconnected,
			Code:   CloseNormal,
			Reason: "client disconnect",
		})
	}
	c.mu.Unlock()

	if s != nil {
		s.close(CloseNormal, "client disconnect")
		c.captureClose(s.id, log.DirectionOut, CloseNormal)
	}
	c.emitAll(evs)
}

// Send stamps the payload into an envelope and transmits it, or queues it
// if it cannot be written right now. It returns the message id.
func (c *Channel) Send(typ wire.MessageType, payload any) (string, error) {
	if typ == "" {
		return "", wire.ErrMissingType
	}

	c.mu.Lock()
	codec := c.codec
	c.mu.Unlock()

	msg, err := wire.NewMessage(codec, typ, payload)
	if err != nil {
		return "", err
	}
	msg.MessageID = uuid.NewString()

	c.mu.Lock()
	msg.PlayerID = c.playerID
	msg.GameID = c.cfg.GameID
	s := c.sess
	direct := s != nil &&
		c.state == connection.StateConnected &&
		c.queue.Len() == 0 &&
		!c.pausedUntil.After(time.Now()) &&
		(c.limiter == nil || c.limiter.Allow())
	if !direct {
		c.enqueueLocked(msg, 0)
		c.kickDrainLocked()
		c.mu.Unlock()
		return msg.MessageID, nil
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.writeLocked(s, msg)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Warn("send failed, queueing for retry", "type", typ, "message_id", msg.MessageID, "error", err)
		c.mu.Lock()
		c.enqueueLocked(msg, 1)
		c.scheduleDrainLocked(c.cfg.ReconnectInterval)
		c.mu.Unlock()
	}
	return msg.MessageID, nil
}

// State returns the connection status.
func (c *Channel) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if the connection is open.
func (c *Channel) IsConnected() bool {
	return c.State() == connection.StateConnected
}

// Status returns a snapshot of the connection bookkeeping.
func (c *Channel) Status() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionState{
		Status:               c.state,
		ReconnectAttempts:    c.reconnector.Attempts(),
		MaxReconnectAttempts: c.cfg.MaxReconnectAttempts,
		Latency:              c.latency,
		LastConnected:        c.lastConnected,
		LastDisconnected:     c.lastDisconnected,
		ConnectionID:         c.connectionID,
	}
}

// Latency returns the last measured round-trip time.
func (c *Channel) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// PlayerID returns the id stamped on outbound envelopes.
func (c *Channel) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// QueueLen returns the number of queued outbound messages.
func (c *Channel) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Queued returns a copy of the outbound queue in order.
func (c *Channel) Queued() []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Snapshot()
}

// Config returns a copy of the current configuration.
func (c *Channel) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig applies fn to a copy of the configuration and installs the
// result. Codec and heartbeat changes take effect on the next connection,
// backoff changes once the current reconnect sequence ends.
func (c *Channel) UpdateConfig(fn func(*Config)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg
	fn(&next)
	next.Logger = c.cfg.Logger
	next.ProtocolLogger = c.cfg.ProtocolLogger
	next.applyDefaults()
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid transport config: %w", err)
	}

	codec, err := wire.CodecByName(next.Codec)
	if err != nil {
		return err
	}
	if next.DedupWindow != c.cfg.DedupWindow {
		dedup, err := newDedup(next.DedupWindow)
		if err != nil {
			return err
		}
		c.dedup = dedup
	}

	c.codec = codec
	for _, ev := range c.queue.SetCapacity(next.QueueCapacity) {
		c.logger.Warn("outbound queue shrunk, dropping message",
			"type", ev.Message.Type, "message_id", ev.Message.MessageID)
	}
	if next.ReconnectInterval != c.cfg.ReconnectInterval ||
		next.MaxReconnectInterval != c.cfg.MaxReconnectInterval ||
		next.BackoffFactor != c.cfg.BackoffFactor {
		if c.state == connection.StateReconnecting {
			c.backoffDirty = true
		} else {
			c.reconnector.Cancel()
			c.reconnector = connection.NewReconnector(next.backoff(), next.maxAttempts())
		}
	}
	c.reconnector.SetMaxAttempts(next.maxAttempts())
	c.limiter = newLimiter(next)
	if next.PlayerID != "" {
		c.playerID = next.PlayerID
	}
	c.debug.Store(next.Debug)
	c.cfg = next
	return nil
}

func (c *Channel) dial(ctx context.Context, target string, cfg Config) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dctx, target, cfg.Header, cfg.SubProtocols)
	if err != nil {
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %v", ErrConnectTimeout, cfg.ConnectTimeout)
		}
		return nil, err
	}
	return conn, nil
}

// attachLocked installs a freshly dialed connection and starts its read
// loop and heartbeat.
func (c *Channel) attachLocked(conn Conn, reason string) []Event {
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:         conn,
		id:           uuid.NewString(),
		codec:        c.codec,
		writeTimeout: c.cfg.WriteTimeout,
		cancel:       cancel,
	}
	s.keepAlive = NewKeepAlive(c.cfg.keepAliveConfig(),
		func(seq uint64) (string, error) { return c.sendPing(s, seq) },
		func() { c.handleClose(s, ErrHeartbeatTimeout) },
	)
	s.keepAlive.SetPongReceivedCallback(func(d time.Duration) { c.recordLatency(s, d) })

	c.sess = s
	c.connectionID = s.id
	c.lastConnected = time.Now()
	c.pausedUntil = time.Time{}
	if c.backoffDirty {
		c.reconnector = connection.NewReconnector(c.cfg.backoff(), c.cfg.maxAttempts())
		c.backoffDirty = false
	} else {
		c.reconnector.Reset()
	}
	evs := c.setStateLocked(connection.StateConnected, reason)

	go c.readLoop(s)
	s.keepAlive.Start(sctx)
	return evs
}

func (c *Channel) readLoop(s *session) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			c.handleClose(s, err)
			return
		}
		c.handleFrame(s, mt, data)
	}
}

// handleClose applies the close-code policy to a lost session.
func (c *Channel) handleClose(s *session, cause error) {
	code, reason := closeInfo(cause)

	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.lastDisconnected = time.Now()
	c.stopDrainLocked()

	var evs []Event
	disconnect := Event{Type: EventDisconnect, Code: code, Reason: reason}
	switch {
	case code == CloseNormal:
		evs = c.setStateLocked(connection.StateDisconnected, "server closed connection")
		disconnect.State = c.state
		evs = append(evs, disconnect)
	case IsApplicationCode(code):
		cerr := &CloseError{Code: code, Reason: reason}
		evs = c.setStateLocked(connection.StateError, cerr.Error())
		disconnect.State = c.state
		evs = append(evs, disconnect, Event{Type: EventError, State: c.state, Err: cerr, Code: code, Reason: reason})
	default:
		sched := c.scheduleReconnectLocked(reason)
		disconnect.State = c.state
		evs = append([]Event{disconnect}, sched...)
	}
	c.mu.Unlock()

	s.close(0, "")
	c.logger.Info("connection lost", "code", code, "reason", reason)
	c.captureClose(s.id, log.DirectionIn, code)
	c.emitAll(evs)
}

// scheduleReconnectLocked arranges the next reconnect attempt, or moves to
// the terminal error state when the ceiling is reached.
func (c *Channel) scheduleReconnectLocked(reason string) []Event {
	attempt, delay, err := c.reconnector.Schedule(c.reconnect)
	switch {
	case errors.Is(err, connection.ErrAttemptsExhausted):
		rerr := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempt)
		evs := c.setStateLocked(connection.StateError, rerr.Error())
		c.logger.Warn("giving up reconnecting", "attempts", attempt)
		return append(evs, Event{Type: EventError, State: connection.StateError, Err: rerr})
	case errors.Is(err, connection.ErrReconnectPending):
		return nil
	}

	evs := c.setStateLocked(connection.StateReconnecting, reason)
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connectionID,
		Direction:    log.DirectionLocal,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		PlayerID:     c.playerID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			NewState: connection.StateReconnecting.String(),
			Reason:   "reconnect scheduled",
			Attempt:  attempt,
			Delay:    delay,
		},
	})
	c.debugLog("reconnect scheduled", "attempt", attempt, "delay", delay)
	return append(evs, Event{
		Type:    EventReconnecting,
		State:   connection.StateReconnecting,
		Attempt: attempt,
		Delay:   delay,
	})
}

// reconnect runs one scheduled reconnect attempt.
func (c *Channel) reconnect(attempt int) {
	c.mu.Lock()
	if c.state != connection.StateReconnecting {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	cfg := c.cfg
	target, err := sessionURL(cfg.URL, c.sessionID)
	c.mu.Unlock()

	var conn Conn
	if err == nil {
		conn, err = c.dial(context.Background(), target, cfg)
	}

	c.mu.Lock()
	if c.gen != gen || c.state != connection.StateReconnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		evs := c.scheduleReconnectLocked(err.Error())
		c.mu.Unlock()
		c.emitAll(evs)
		return
	}
	evs := c.attachLocked(conn, "reconnected")
	evs = append(evs, Event{Type: EventReconnected, State: connection.StateConnected, Attempt: attempt})
	c.mu.Unlock()

	c.logger.Info("reconnected", "attempt", attempt)
	c.flush()
	c.emitAll(evs)
}

func (c *Channel) enqueueLocked(msg *wire.Message, retries int) {
	evicted := c.queue.Push(QueuedMessage{
		Message:    msg,
		EnqueuedAt: time.Now(),
		RetryCount: retries,
		MaxRetries: c.cfg.MaxRetries,
	})
	if evicted != nil {
		c.logger.Warn("outbound queue full, dropping oldest message",
			"type", evicted.Message.Type,
			"message_id", evicted.Message.MessageID,
			"capacity", c.queue.Capacity())
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connectionID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		PlayerID:     msg.PlayerID,
		GameID:       msg.GameID,
		Message: &log.MessageEvent{
			Type:       string(msg.Type),
			MessageID:  msg.MessageID,
			Queued:     true,
			RetryCount: retries,
		},
	})
}

// kickDrainLocked schedules a drain if the connection can take writes.
func (c *Channel) kickDrainLocked() {
	if c.sess == nil || c.state != connection.StateConnected {
		return
	}
	delay := time.Until(c.pausedUntil)
	if delay < 0 {
		delay = 0
	}
	c.scheduleDrainLocked(delay)
}

func (c *Channel) scheduleDrainLocked(d time.Duration) {
	if c.drainTimer != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		if c.drainTimer == t {
			c.drainTimer = nil
		}
		c.mu.Unlock()
		c.flush()
	})
	c.drainTimer = t
}

func (c *Channel) stopDrainLocked() {
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
}

// flush transmits queued messages in order until the queue is empty, a
// write fails, or sending must wait.
func (c *Channel) flush() {
	for c.flushOne() {
	}
}

func (c *Channel) flushOne() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	s := c.sess
	if s == nil || c.state != connection.StateConnected {
		c.mu.Unlock()
		return false
	}
	item, ok := c.queue.Peek()
	if !ok {
		c.mu.Unlock()
		return false
	}
	now := time.Now()
	if c.pausedUntil.After(now) {
		c.scheduleDrainLocked(c.pausedUntil.Sub(now))
		c.mu.Unlock()
		return false
	}
	if c.limiter != nil {
		r := c.limiter.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			c.scheduleDrainLocked(d)
			c.mu.Unlock()
			return false
		}
	}
	seq, msg := item.seq, item.Message
	c.mu.Unlock()

	err := c.writeLocked(s, msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.queue.remove(seq)
		return true
	}

	item.RetryCount++
	if errors.Is(err, ErrInvalidMessage) || item.Exhausted() {
		c.queue.remove(seq)
		c.logger.Warn("dropping message after failed retransmits",
			"type", msg.Type,
			"message_id", msg.MessageID,
			"retries", item.RetryCount,
			"error", err)
		return true
	}
	c.debugLog("retransmit failed", "type", msg.Type, "retry", item.RetryCount, "error", err)
	c.scheduleDrainLocked(c.cfg.ReconnectInterval)
	return false
}

// writeLocked encodes and writes one frame. The caller holds writeMu.
func (c *Channel) writeLocked(s *session, msg *wire.Message) error {
	data, err := s.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	frameType := websocket.TextMessage
	if s.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(frameType, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Type, err)
	}

	if !msg.Type.IsControl() {
		c.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: s.id,
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			PlayerID:     msg.PlayerID,
			GameID:       msg.GameID,
			Message: &log.MessageEvent{
				Type:      string(msg.Type),
				MessageID: msg.MessageID,
				Size:      len(data),
				Payload:   msg.Data,
			},
		})
	}
	return nil
}

func (c *Channel) handleFrame(s *session, frameType int, data []byte) {
	codec := wire.JSON
	if frameType == websocket.BinaryMessage {
		codec = wire.CBOR
	}
	msg, err := codec.Decode(data)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "size", len(data), "error", err)
		c.captureError("decode", fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		return
	}

	switch msg.Type {
	case wire.TypePing:
		c.sendPong(s, msg)
		return
	case wire.TypePong:
		var hb wire.Heartbeat
		_ = msg.DecodeData(&hb)
		s.keepAlive.PongReceived(hb.PingID)
		return
	}

	duplicate := c.isDuplicate(msg)
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.id,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		PlayerID:     msg.PlayerID,
		GameID:       msg.GameID,
		Message: &log.MessageEvent{
			Type:      string(msg.Type),
			MessageID: msg.MessageID,
			Size:      len(data),
			Duplicate: duplicate,
			Payload:   msg.Data,
		},
	})
	if duplicate {
		c.debugLog("dropping duplicate message", "type", msg.Type, "message_id", msg.MessageID)
		return
	}

	if msg.Type == wire.TypeRateLimit {
		var rl wire.RateLimit
		if err := msg.DecodeData(&rl); err == nil && rl.RetryAfterMs > 0 {
			c.pause(time.Duration(rl.RetryAfterMs) * time.Millisecond)
		}
	}

	c.events.emit(Event{Type: EventMessage, State: connection.StateConnected, Message: msg})
	c.events.dispatch(msg)
}

func (c *Channel) isDuplicate(msg *wire.Message) bool {
	if msg.MessageID == "" {
		return false
	}
	c.mu.Lock()
	dedup := c.dedup
	c.mu.Unlock()
	if dedup == nil {
		return false
	}
	seen, _ := dedup.ContainsOrAdd(msg.MessageID, struct{}{})
	return seen
}

// pause holds back immediate sends for d; messages queue meanwhile and
// drain in order afterwards.
func (c *Channel) pause(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(c.pausedUntil) {
		c.pausedUntil = until
	}
	c.logger.Info("server rate limit, pausing sends", "retry_after", d)
	c.stopDrainLocked()
	if c.sess != nil {
		c.scheduleDrainLocked(time.Until(c.pausedUntil))
	}
}

func (c *Channel) sendPing(s *session, seq uint64) (string, error) {
	c.mu.Lock()
	player, game := c.playerID, c.cfg.GameID
	c.mu.Unlock()

	id := uuid.NewString()
	msg, err := wire.NewMessage(s.codec, wire.TypePing, wire.Heartbeat{PingID: id, Seq: seq})
	if err != nil {
		return "", err
	}
	msg.MessageID = id
	msg.PlayerID = player
	msg.GameID = game

	c.writeMu.Lock()
	err = c.writeLocked(s, msg)
	c.writeMu.Unlock()
	if err != nil {
		return "", err
	}

	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing},
	})
	return id, nil
}

func (c *Channel) sendPong(s *session, ping *wire.Message) {
	var hb wire.Heartbeat
	_ = ping.DecodeData(&hb)
	hb.PingID = ping.MessageID

	msg, err := wire.NewMessage(s.codec, wire.TypePong, hb)
	if err != nil {
		return
	}
	msg.MessageID = uuid.NewString()

	c.writeMu.Lock()
	err = c.writeLocked(s, msg)
	c.writeMu.Unlock()
	if err != nil {
		c.debugLog("pong failed", "error", err)
	}
}

func (c *Channel) recordLatency(s *session, d time.Duration) {
	c.mu.Lock()
	if c.sess == s {
		c.latency = d
	}
	c.mu.Unlock()

	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.id,
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPong, Latency: &d},
	})
	c.debugLog("heartbeat", "latency", d)
}

// setStateLocked records a state transition and returns the state_change
// event to emit once the lock is released.
func (c *Channel) setStateLocked(next connection.State, reason string) []Event {
	prev := c.state
	if prev == next {
		return nil
	}
	c.state = next
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connectionID,
		Direction:    log.DirectionLocal,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.cfg.URL,
		PlayerID:     c.playerID,
		GameID:       c.cfg.GameID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
	c.debugLog("state change", "from", prev, "to", next, "reason", reason)
	return []Event{{Type: EventStateChange, State: next, PrevState: prev, Reason: reason}}
}

func (c *Channel) emitAll(evs []Event) {
	for _, e := range evs {
		c.events.emit(e)
	}
}

func (c *Channel) captureClose(connID string, dir log.Direction, code int) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgClose, CloseCode: &code},
	})
}

func (c *Channel) captureError(op string, err error) {
	c.plog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: op,
		},
	})
}

// debugLog logs a debug message if debug logging is enabled.
func (c *Channel) debugLog(msg string, args ...any) {
	if c.debug.Load() {
		c.logger.Debug(msg, args...)
	}
}
