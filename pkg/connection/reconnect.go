package connection

import (
	"errors"
	"sync"
	"time"
)

// Reconnection errors.
var (
	ErrReconnectPending  = errors.New("reconnect already scheduled")
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
)

// Reconnector schedules at most one pending reconnection attempt at a
// time, spacing attempts with a Backoff and enforcing an attempt ceiling.
type Reconnector struct {
	mu sync.Mutex

	backoff     *Backoff
	maxAttempts int

	timer *time.Timer
	gen   uint64
}

// NewReconnector creates a reconnector. maxAttempts <= 0 means unlimited.
func NewReconnector(b *Backoff, maxAttempts int) *Reconnector {
	if b == nil {
		b = NewBackoff()
	}
	return &Reconnector{
		backoff:     b,
		maxAttempts: maxAttempts,
	}
}

// SetMaxAttempts updates the attempt ceiling.
func (r *Reconnector) SetMaxAttempts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAttempts = n
}

// MaxAttempts returns the attempt ceiling.
func (r *Reconnector) MaxAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxAttempts
}

// Schedule arranges for fn to run after the next backoff delay.
// It returns the attempt number and the chosen delay. If a retry is
// already pending it returns ErrReconnectPending; if the next attempt
// would exceed the ceiling it returns ErrAttemptsExhausted and schedules
// nothing.
func (r *Reconnector) Schedule(fn func(attempt int)) (int, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		return r.backoff.Attempts(), 0, ErrReconnectPending
	}

	attempt := r.backoff.Attempts() + 1
	if r.maxAttempts > 0 && attempt > r.maxAttempts {
		return attempt - 1, 0, ErrAttemptsExhausted
	}

	delay := r.backoff.Next()
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()

		fn(attempt)
	})

	return attempt, delay, nil
}

// Pending returns true if a retry is scheduled.
func (r *Reconnector) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Cancel stops a scheduled retry without touching the attempt counter.
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
}

// Reset cancels any scheduled retry and resets the attempt counter.
// Call this after a successful connection or an explicit disconnect.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
	r.backoff.Reset()
}

// Attempts returns the number of attempts scheduled since the last reset.
func (r *Reconnector) Attempts() int {
	return r.backoff.Attempts()
}

func (r *Reconnector) cancelLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}
