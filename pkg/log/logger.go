package log

// Logger receives protocol capture events from the transport, synchronizer
// and geofence monitor. Log is called on hot paths and from several
// goroutines, so implementations must be concurrency safe and must not
// block.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event.
type NoopLogger struct{}

// Log implements Logger.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil. Components call it once
// at construction so they never nil-check on the hot path.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}
