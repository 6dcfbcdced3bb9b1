package connection

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second, // Should stay at max
		}

		for i, exp := range expected {
			got := b.Next()
			if got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i+1, got, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial: time.Second,
			Jitter:  0.25,
		})

		samples := make([]time.Duration, 10)
		for i := range samples {
			samples[i] = b.Peek()
		}

		for i, s := range samples {
			if s < 1*time.Second || s > time.Duration(float64(1*time.Second)*1.25)+time.Millisecond {
				t.Errorf("Sample %d: %v out of expected range [1s, 1.25s]", i, s)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()

		for i := 0; i < 5; i++ {
			b.Next()
		}
		assert.Greater(t, b.Current(), DefaultReconnectInterval)

		b.Reset()

		assert.Equal(t, DefaultReconnectInterval, b.Current())
		assert.Equal(t, 0, b.Attempts())
	})

	t.Run("Attempts", func(t *testing.T) {
		b := NewBackoff()
		assert.Equal(t, 0, b.Attempts())

		for i := 1; i <= 5; i++ {
			b.Next()
			assert.Equal(t, i, b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2.0,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond, // Max
			500 * time.Millisecond,
		}

		for i, exp := range expected {
			got := b.Next()
			if got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		cfg := NewBackoffWithConfig(BackoffConfig{
			Initial:    time.Minute,
			Max:        time.Second,
			Multiplier: 0.5,
			Jitter:     -1,
		}).Config()

		assert.Equal(t, time.Minute, cfg.Max, "ceiling never below the first delay")
		assert.Equal(t, DefaultBackoffFactor, cfg.Multiplier)
		assert.Zero(t, cfg.Jitter)
	})

	t.Run("PeekDoesNotCount", func(t *testing.T) {
		b := NewBackoff()
		assert.Equal(t, DefaultReconnectInterval, b.Peek())
		assert.Equal(t, 0, b.Attempts())
		b.Next()
		assert.Equal(t, 2*DefaultReconnectInterval, b.Peek())
	})

	t.Run("NextMatchesFormula", func(t *testing.T) {
		cfg := BackoffConfig{
			Initial:    250 * time.Millisecond,
			Max:        10 * time.Second,
			Multiplier: 2,
		}
		b := NewBackoffWithConfig(cfg)

		for n := 1; n <= 12; n++ {
			want := Delay(cfg.Initial, cfg.Max, cfg.Multiplier, n)
			assert.Equal(t, want, b.Delay(n), "Delay(%d)", n)
			assert.Equal(t, want, b.Next(), "Next at attempt %d", n)
		}
	})
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		max     time.Duration
		factor  float64
		attempt int
		want    time.Duration
	}{
		{"first attempt", time.Second, time.Minute, 2, 1, time.Second},
		{"third attempt", time.Second, time.Minute, 2, 3, 4 * time.Second},
		{"clamped", time.Second, 5 * time.Second, 2, 4, 5 * time.Second},
		{"factor one", time.Second, time.Minute, 1, 9, time.Second},
		{"fractional factor", time.Second, time.Minute, 1.5, 3, 2250 * time.Millisecond},
		{"zero attempt", time.Second, time.Minute, 2, 0, time.Second},
		{"huge attempt", time.Second, time.Minute, 2, 5000, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.base, tt.max, tt.factor, tt.attempt))
		})
	}
}

func TestReconnector(t *testing.T) {
	fast := func() *Backoff {
		return NewBackoffWithConfig(BackoffConfig{
			Initial:    5 * time.Millisecond,
			Max:        20 * time.Millisecond,
			Multiplier: 2,
		})
	}

	t.Run("SchedulesWithBackoffDelay", func(t *testing.T) {
		r := NewReconnector(fast(), 0)

		fired := make(chan int, 1)
		attempt, delay, err := r.Schedule(func(n int) { fired <- n })
		require.NoError(t, err)
		assert.Equal(t, 1, attempt)
		assert.Equal(t, 5*time.Millisecond, delay)
		assert.True(t, r.Pending())

		select {
		case n := <-fired:
			assert.Equal(t, 1, n)
		case <-time.After(time.Second):
			t.Fatal("retry did not fire")
		}
		assert.False(t, r.Pending())
	})

	t.Run("OnlyOnePending", func(t *testing.T) {
		r := NewReconnector(fast(), 0)
		defer r.Cancel()

		_, _, err := r.Schedule(func(int) {})
		require.NoError(t, err)

		_, _, err = r.Schedule(func(int) {})
		assert.ErrorIs(t, err, ErrReconnectPending)
	})

	t.Run("Ceiling", func(t *testing.T) {
		r := NewReconnector(fast(), 2)

		for i := 1; i <= 2; i++ {
			done := make(chan struct{})
			attempt, _, err := r.Schedule(func(int) { close(done) })
			require.NoError(t, err)
			assert.Equal(t, i, attempt)
			<-done
		}

		_, _, err := r.Schedule(func(int) { t.Error("should not fire") })
		assert.ErrorIs(t, err, ErrAttemptsExhausted)
		assert.False(t, r.Pending())
	})

	t.Run("CancelPreventsFire", func(t *testing.T) {
		r := NewReconnector(fast(), 0)

		var fired atomic.Bool
		_, _, err := r.Schedule(func(int) { fired.Store(true) })
		require.NoError(t, err)
		r.Cancel()

		time.Sleep(30 * time.Millisecond)
		assert.False(t, fired.Load())
		assert.Equal(t, 1, r.Attempts())
	})

	t.Run("ResetClearsAttempts", func(t *testing.T) {
		r := NewReconnector(fast(), 0)

		_, _, _ = r.Schedule(func(int) {})
		r.Reset()

		assert.Equal(t, 0, r.Attempts())
		assert.False(t, r.Pending())

		attempt, delay, err := r.Schedule(func(int) {})
		require.NoError(t, err)
		assert.Equal(t, 1, attempt)
		assert.Equal(t, 5*time.Millisecond, delay)
		r.Cancel()
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateError, "ERROR"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
