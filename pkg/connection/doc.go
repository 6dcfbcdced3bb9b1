// Package connection provides connection lifecycle primitives for the
// arena transport.
//
// This package handles:
//   - Connection state tracking
//   - Exponential backoff for reconnection attempts
//   - Scheduling of a single pending reconnection with an attempt ceiling
//
// # Reconnection Strategy
//
// When a connection is lost unexpectedly, the delay before attempt N is
//
//	delay(N) = base * factor^(N-1), clamped to max
//
// With the defaults (1s base, factor 2, 30s max) this yields
// 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
//
// A successful reconnection resets the attempt counter. When the
// configured attempt ceiling is exceeded no further attempt is scheduled
// and the owner is expected to move to a terminal error state.
//
// # Jitter
//
// Jitter is off by default so that delays follow the formula exactly.
// When enabled:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
package connection
