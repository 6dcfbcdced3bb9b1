package log

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture files are a CBOR sequence: a Header record followed by Event
// records. Files written before the header was introduced start directly
// with an event and are still readable.
const (
	captureMagic = "arena-capture"

	// CaptureVersion is the capture format written by FileLogger.
	CaptureVersion = 1
)

// ErrUnsupportedCapture is returned by readers for captures written in a
// newer format.
var ErrUnsupportedCapture = errors.New("unsupported capture version")

// Header is the first record of a capture file. Key 0 is never used by
// Event, so an event record never decodes as a header.
type Header struct {
	Magic   string    `cbor:"0,keyasint"`
	Version int       `cbor:"1,keyasint"`
	Created time.Time `cbor:"2,keyasint"`

	// Client names the program that wrote the capture.
	Client string `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoder mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoder mode: %v", err))
	}
}

// EncodeEvent encodes an event as one capture record.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one capture record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func newHeader(client string) Header {
	return Header{
		Magic:   captureMagic,
		Version: CaptureVersion,
		Created: time.Now().UTC(),
		Client:  client,
	}
}

// parseHeader reports whether raw is a header record. A header of an
// unknown version is returned with ErrUnsupportedCapture.
func parseHeader(raw cbor.RawMessage) (*Header, error) {
	var h Header
	if err := decMode.Unmarshal(raw, &h); err != nil || h.Magic != captureMagic {
		return nil, nil
	}
	if h.Version < 1 || h.Version > CaptureVersion {
		return &h, fmt.Errorf("%w: %d", ErrUnsupportedCapture, h.Version)
	}
	return &h, nil
}
