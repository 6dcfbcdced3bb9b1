package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

// Position is one location fix.
type Position struct {
	spatial.LatLng

	// Accuracy is the horizontal accuracy radius in meters; zero if unknown.
	Accuracy float64

	Timestamp time.Time
}

// Update is one element of a position stream: a fix or an error.
type Update struct {
	Position Position
	Err      error
}

// Provider is a source of positions.
type Provider interface {
	// CurrentPosition returns a single fix.
	CurrentPosition(ctx context.Context) (Position, error)

	// Watch streams fixes until ctx ends or an error is delivered. The
	// channel is closed when the stream ends.
	Watch(ctx context.Context) (<-chan Update, error)
}

// Code classifies location failures.
type Code uint8

const (
	CodePermissionDenied Code = iota + 1
	CodePositionUnavailable
	CodeTimeout
	CodeUnsupported
)

var codeNames = map[Code]string{
	CodePermissionDenied:    "permission-denied",
	CodePositionUnavailable: "position-unavailable",
	CodeTimeout:             "timeout",
	CodeUnsupported:         "unsupported",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", c)
}

// ParseCode parses a code name.
func ParseCode(s string) (Code, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range codeNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown location error code %q", s)
}

// Sentinel errors matching each code with errors.Is.
var (
	ErrPermissionDenied    = &Error{Code: CodePermissionDenied}
	ErrPositionUnavailable = &Error{Code: CodePositionUnavailable}
	ErrTimeout             = &Error{Code: CodeTimeout}
	ErrUnsupported         = &Error{Code: CodeUnsupported}
)

// Error is a location failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// NewError returns an error with the given code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("location %s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("location %s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("location %s: %v", e.Code, e.Err)
	}
	return "location " + e.Code.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Fatal reports whether the failure persists until the user acts:
// permission denial and missing support. Unavailable and timeout are
// transient.
func (e *Error) Fatal() bool {
	return e.Code == CodePermissionDenied || e.Code == CodeUnsupported
}

// IsFatal reports whether err is a fatal location error.
func IsFatal(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Fatal()
}
