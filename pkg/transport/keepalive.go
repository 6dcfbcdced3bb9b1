package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Heartbeat defaults.
const (
	// DefaultHeartbeatInterval is the default interval between pings.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 10 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before
	// the connection is considered dead.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures heartbeat behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before timeout.
	MaxMissedPongs int
}

// DetectionDelay calculates the maximum delay before a dead connection is
// detected with this configuration.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// SendPingFunc transmits a ping and returns the message id a matching pong
// will echo.
type SendPingFunc func(seq uint64) (pingID string, err error)

// KeepAlive manages connection liveness monitoring and latency
// measurement.
type KeepAlive struct {
	config KeepAliveConfig

	// Callbacks
	sendPing       SendPingFunc
	onTimeout      func()
	onPongReceived func(latency time.Duration)

	// State
	sequence     atomic.Uint64
	missedPongs  int
	lastPingTime time.Time
	lastPongTime time.Time
	lastLatency  time.Duration
	pendingPing  string
	hasPending   bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	pongCh  chan pong
}

type pong struct {
	id string
	at time.Time
}

// NewKeepAlive creates a new keep-alive manager.
func NewKeepAlive(config KeepAliveConfig, sendPing SendPingFunc, onTimeout func()) *KeepAlive {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultHeartbeatInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan pong, 1),
	}
}

// SetPongReceivedCallback sets a callback for matched pongs.
func (ka *KeepAlive) SetPongReceivedCallback(cb func(latency time.Duration)) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.onPongReceived = cb
}

// Start begins the keep-alive monitoring loop.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stopCh := ka.stopCh
	ka.mu.Unlock()

	go ka.loop(ctx, stopCh)
}

// Stop stops the keep-alive monitoring.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}

	ka.running = false
	close(ka.stopCh)
}

// PongReceived should be called when a pong message is received.
func (ka *KeepAlive) PongReceived(pingID string) {
	select {
	case ka.pongCh <- pong{id: pingID, at: time.Now()}:
	default:
		// A pong is already waiting; the loop will match the next one.
	}
}

// IsRunning returns true if keep-alive monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastPongTime: ka.lastPongTime,
		LastLatency:  ka.lastLatency,
		MissedPongs:  ka.missedPongs,
		CurrentSeq:   ka.sequence.Load(),
	}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
	CurrentSeq   uint64
}

func (ka *KeepAlive) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	// Send initial ping so latency is known early.
	ka.sendPingMessage()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if ka.handleTick() {
				return
			}
		case p := <-ka.pongCh:
			ka.handlePong(p)
		}
	}
}

func (ka *KeepAlive) sendPingMessage() {
	seq := ka.sequence.Add(1)

	sentAt := time.Now()
	id, err := ka.sendPing(seq)

	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.lastPingTime = sentAt
	if err != nil {
		// Send failed - connection is likely dead. Count it as missed.
		ka.pendingPing = ""
		ka.hasPending = true
		return
	}
	ka.pendingPing = id
	ka.hasPending = true
}

// handleTick returns true if the connection timed out.
func (ka *KeepAlive) handleTick() bool {
	ka.mu.Lock()

	if ka.hasPending && time.Since(ka.lastPingTime) >= ka.config.PongTimeout {
		ka.missedPongs++
		ka.hasPending = false

		if ka.missedPongs >= ka.config.MaxMissedPongs {
			ka.running = false
			onTimeout := ka.onTimeout
			ka.mu.Unlock()
			if onTimeout != nil {
				onTimeout()
			}
			return true
		}
	}

	ka.mu.Unlock()

	ka.sendPingMessage()
	return false
}

func (ka *KeepAlive) handlePong(p pong) {
	ka.mu.Lock()

	ka.lastPongTime = p.at

	// Pongs for older pings are ignored.
	if !ka.hasPending || p.id == "" || p.id != ka.pendingPing {
		ka.mu.Unlock()
		return
	}

	latency := p.at.Sub(ka.lastPingTime)
	ka.hasPending = false
	ka.missedPongs = 0
	ka.lastLatency = latency
	cb := ka.onPongReceived
	ka.mu.Unlock()

	if cb != nil {
		cb(latency)
	}
}
