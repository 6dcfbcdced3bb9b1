package log

import "sync"

// MultiLogger fans each event out to a set of loggers, typically a
// FileLogger for the capture and a SlogAdapter for the console.
type MultiLogger struct {
	mu      sync.RWMutex
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger over loggers, skipping nils.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	m.Add(loggers...)
	return m
}

// Add attaches more loggers. Nil loggers are skipped.
func (m *MultiLogger) Add(loggers ...Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
}

// Log forwards event to every logger in order.
func (m *MultiLogger) Log(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Len returns the number of attached loggers.
func (m *MultiLogger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.loggers)
}

var _ Logger = (*MultiLogger)(nil)
