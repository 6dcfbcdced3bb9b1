package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// Channel defaults.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultQueueCapacity        = 100
	DefaultMaxRetries           = 3
	DefaultConnectTimeout       = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultDedupWindow          = 256
)

// Config configures a Channel. It is supplied at construction and may be
// changed later with Channel.UpdateConfig.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://arena.example/ws".
	URL string

	// SubProtocols are offered during the websocket handshake.
	SubProtocols []string

	// Header carries extra handshake headers.
	Header http.Header

	// HeartbeatInterval is the interval between pings.
	HeartbeatInterval time.Duration

	// PongTimeout is how long a ping may go unanswered before it counts
	// as missed.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs that kill the connection.
	MaxMissedPongs int

	// ReconnectInterval is the delay before the first reconnect attempt.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the reconnect delay.
	MaxReconnectInterval time.Duration

	// BackoffFactor multiplies the delay after every attempt.
	BackoffFactor float64

	// MaxReconnectAttempts is the attempt ceiling. Negative means unlimited.
	MaxReconnectAttempts int

	// QueueCapacity bounds the outbound queue.
	QueueCapacity int

	// MaxRetries is the number of failed transmissions after which a
	// queued message is dropped.
	MaxRetries int

	// ConnectTimeout bounds Connect and every reconnect dial.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// Debug enables verbose operational logging.
	Debug bool

	// PlayerID and GameID are stamped on every outbound envelope. When
	// PlayerID is empty and the session id is a JWT, its subject is used.
	PlayerID string
	GameID   string

	// Codec selects the frame format: "json" (default) or "cbor".
	Codec string

	// SendRateLimit is the sustained outbound rate in messages per second.
	// Zero disables rate limiting.
	SendRateLimit float64

	// SendBurst is the limiter bucket size. Defaults to 1 when a rate is set.
	SendBurst int

	// DedupWindow is the number of recent inbound message ids remembered
	// for de-duplication. Negative disables de-duplication.
	DedupWindow int

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default channel configuration for url.
func DefaultConfig(url string) Config {
	cfg := Config{URL: url}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = connection.DefaultReconnectInterval
	}
	if c.MaxReconnectInterval <= 0 {
		c.MaxReconnectInterval = connection.DefaultMaxReconnectInterval
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = connection.DefaultBackoffFactor
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.SendRateLimit > 0 && c.SendBurst <= 0 {
		c.SendBurst = 1
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = DefaultDedupWindow
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := wire.CodecByName(c.Codec); err != nil {
		return err
	}
	if c.MaxReconnectInterval > 0 && c.ReconnectInterval > c.MaxReconnectInterval {
		return fmt.Errorf("reconnect interval %v exceeds max reconnect interval %v",
			c.ReconnectInterval, c.MaxReconnectInterval)
	}
	if c.SendRateLimit < 0 {
		return fmt.Errorf("send rate limit must not be negative: %v", c.SendRateLimit)
	}
	return nil
}

// keepAliveConfig returns the heartbeat settings.
func (c *Config) keepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   c.HeartbeatInterval,
		PongTimeout:    c.PongTimeout,
		MaxMissedPongs: c.MaxMissedPongs,
	}
}

// backoff builds a backoff calculator from the reconnect settings.
func (c *Config) backoff() *connection.Backoff {
	return connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial:    c.ReconnectInterval,
		Max:        c.MaxReconnectInterval,
		Multiplier: c.BackoffFactor,
	})
}

// maxAttempts maps the configured ceiling to the reconnector's convention.
func (c *Config) maxAttempts() int {
	if c.MaxReconnectAttempts < 0 {
		return 0
	}
	return c.MaxReconnectAttempts
}
