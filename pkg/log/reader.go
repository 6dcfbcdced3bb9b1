package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	PlayerID     string
	ZoneID       string

	// MessageType matches the envelope type of message events.
	MessageType string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Matches reports whether event satisfies every set criterion.
func (f *Filter) Matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID,
		f.PlayerID != "" && event.PlayerID != f.PlayerID,
		f.ZoneID != "" && event.ZoneID != f.ZoneID,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category,
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.MessageType != "" {
		return event.Message != nil && event.Message.Type == f.MessageType
	}
	return true
}

// Reader iterates over the events of a capture.
type Reader struct {
	closer    io.Closer
	decoder   *cbor.Decoder
	filter    Filter
	header    *Header
	pending   *Event
	truncated bool
	err       error
}

// NewReader opens a capture file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and yields only events matching
// filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewStreamReader(f, filter)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewStreamReader reads a capture from r. The header, if any, is consumed
// immediately; captures without one are read from their first event.
func NewStreamReader(r io.Reader, filter Filter) (*Reader, error) {
	rd := &Reader{decoder: decMode.NewDecoder(r), filter: filter}

	raw, err := rd.nextRaw()
	if err != nil {
		rd.err = err
		if errors.Is(err, io.EOF) {
			return rd, nil
		}
		return nil, err
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	if h != nil {
		rd.header = h
		return rd, nil
	}

	event, err := DecodeEvent(raw)
	if err != nil {
		return nil, fmt.Errorf("decode first record: %w", err)
	}
	rd.pending = &event
	return rd, nil
}

func (r *Reader) nextRaw() (cbor.RawMessage, error) {
	var raw cbor.RawMessage
	if err := r.decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.truncated = true
			return nil, io.EOF
		}
		return nil, err
	}
	return raw, nil
}

// Header returns the capture header, or nil for headerless captures.
func (r *Reader) Header() *Header {
	return r.header
}

// Truncated reports whether the capture ended inside a record, as happens
// when the writer was killed mid-write.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Next returns the next matching event, or io.EOF at the end.
func (r *Reader) Next() (Event, error) {
	if r.pending != nil {
		event := *r.pending
		r.pending = nil
		if r.filter.Matches(event) {
			return event, nil
		}
	}
	if r.err != nil {
		return Event{}, r.err
	}
	for {
		raw, err := r.nextRaw()
		if err != nil {
			r.err = err
			return Event{}, err
		}
		event, err := DecodeEvent(raw)
		if err != nil {
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// ReadAll returns every remaining matching event.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

// Close closes the underlying file. It is a no-op for stream readers.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
