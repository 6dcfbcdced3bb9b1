package transport

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Channel errors.
var (
	ErrAlreadyConnected   = errors.New("already connected")
	ErrNotConnected       = errors.New("not connected")
	ErrConnectTimeout     = errors.New("connection timeout")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNoURL              = errors.New("no server url configured")
	ErrInvalidMessage     = errors.New("invalid message")
)

// Close codes used by the arena server.
const (
	CloseNormal   = websocket.CloseNormalClosure
	CloseAbnormal = websocket.CloseAbnormalClosure

	// CloseAppMin and CloseAppMax bound the application error range.
	CloseAppMin = 4000
	CloseAppMax = 4999
)

// CloseError reports a connection closed by the server with an
// application error code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed by server: code %d", e.Code)
	}
	return fmt.Sprintf("connection closed by server: code %d: %s", e.Code, e.Reason)
}

// IsApplicationCode returns true for close codes reserved for application
// errors. They are terminal: the channel does not reconnect.
func IsApplicationCode(code int) bool {
	return code >= CloseAppMin && code <= CloseAppMax
}

// closeInfo extracts the close code and reason from a read error.
// Errors that are not websocket close frames count as abnormal closure.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	var own *CloseError
	if errors.As(err, &own) {
		return own.Code, own.Reason
	}
	if err != nil {
		return CloseAbnormal, err.Error()
	}
	return CloseAbnormal, ""
}
