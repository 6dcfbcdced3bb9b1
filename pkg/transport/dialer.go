package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens connections to the arena server.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header, subprotocols []string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	// Dialer is the underlying dialer. Nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, rawURL string, header http.Header, subprotocols []string) (Conn, error) {
	base := d.Dialer
	if base == nil {
		base = websocket.DefaultDialer
	}
	dialer := *base
	dialer.Subprotocols = subprotocols

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}
	return conn, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer = WebSocketDialer{}
	_ Conn   = (*websocket.Conn)(nil)
)

// sessionURL adds the session id to the endpoint as the "sessionId" query
// parameter.
func sessionURL(rawURL, sessionID string) (string, error) {
	if rawURL == "" {
		return "", ErrNoURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}
	if sessionID != "" {
		q := u.Query()
		q.Set("sessionId", sessionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// playerFromToken returns the subject of a JWT session token. The token is
// not verified; that is the server's job.
func playerFromToken(token string) string {
	if strings.Count(token, ".") != 2 {
		return ""
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	return claims.Subject
}
