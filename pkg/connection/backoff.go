package connection

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults for the arena transport.
const (
	// DefaultReconnectInterval is the delay before the first reconnection attempt.
	DefaultReconnectInterval = 1 * time.Second

	// DefaultMaxReconnectInterval is the maximum reconnection delay.
	DefaultMaxReconnectInterval = 30 * time.Second

	// DefaultBackoffFactor is the factor by which backoff increases.
	DefaultBackoffFactor = 2.0
)

// BackoffConfig parameterises a Backoff. Zero values select the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter adds up to Jitter*delay of random wait on top of the base
	// delay. Zero keeps the schedule deterministic.
	Jitter float64
}

func (c *BackoffConfig) applyDefaults() {
	if c.Initial <= 0 {
		c.Initial = DefaultReconnectInterval
	}
	if c.Max <= 0 {
		c.Max = DefaultMaxReconnectInterval
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier < 1 {
		c.Multiplier = DefaultBackoffFactor
	}
	c.Jitter = max(c.Jitter, 0)
}

// Backoff counts reconnection attempts and hands out the delay for each.
// The base delay of attempt n is Delay(Initial, Max, Multiplier, n).
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a backoff calculator with the default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator from cfg.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	cfg.applyDefaults()
	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next counts an attempt and returns its delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	return b.jittered(b.baseLocked(b.attempts))
}

// Peek returns the delay the next attempt would get, without counting it.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.baseLocked(b.attempts + 1))
}

// Reset starts the schedule over. Call this after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of attempts since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay of the next attempt.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseLocked(b.attempts + 1)
}

// Delay returns the base delay of the given 1-based attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.baseLocked(attempt)
}

// Config returns the effective settings.
func (b *Backoff) Config() BackoffConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

func (b *Backoff) baseLocked(attempt int) time.Duration {
	return Delay(b.cfg.Initial, b.cfg.Max, b.cfg.Multiplier, attempt)
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.cfg.Jitter == 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.rng.Float64())
}

// Delay computes base*factor^(attempt-1) clamped to ceiling.
// Attempts below 1 are treated as 1.
func Delay(base, ceiling time.Duration, factor float64, attempt int) time.Duration {
	attempt = max(attempt, 1)
	d := float64(base) * math.Pow(factor, float64(attempt-1))
	if d >= float64(ceiling) || math.IsInf(d, 0) || math.IsNaN(d) {
		return ceiling
	}
	return time.Duration(d)
}
