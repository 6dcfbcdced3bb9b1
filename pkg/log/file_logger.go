package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithClient records the writing program's name in the capture header.
func WithClient(name string) FileOption {
	return func(l *FileLogger) { l.client = name }
}

// FileLogger appends protocol events to a capture file. A new or empty
// file gets a Header record first. Safe for concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	path    string
	client  string
	file    *os.File
	closed  bool
	written int
	dropped int
}

// NewFileLogger opens path for appending, creating it and any missing
// parent directories.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create capture directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	l := &FileLogger{path: path, file: f}
	for _, opt := range opts {
		opt(l)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat capture: %w", err)
	}
	if info.Size() == 0 {
		if err := l.writeRecord(newHeader(l.client)); err != nil {
			f.Close()
			return nil, fmt.Errorf("write capture header: %w", err)
		}
	}
	return l, nil
}

func (l *FileLogger) writeRecord(v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return err
	}
	_, err = l.file.Write(data)
	return err
}

// Log appends an event. Events that fail to encode or write are counted
// in Dropped; the caller is never interrupted.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.writeRecord(event); err != nil {
		l.dropped++
		return
	}
	l.written++
}

// Path returns the capture file path.
func (l *FileLogger) Path() string {
	return l.path
}

// Written returns the number of events written, not counting the header.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Dropped returns the number of events that could not be written.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the file. Later Log calls are ignored. Close is idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
