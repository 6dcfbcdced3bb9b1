package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type arena servers advertise.
	ServiceType = "_zkarena._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when an advertisement carries port 0.
	DefaultPort = 8080

	// DefaultPath is the websocket path when the TXT record omits one.
	DefaultPath = "/ws"

	// ProtocolVersion is the advertisement version this client understands.
	ProtocolVersion = "1"

	// BrowseTimeout is the default timeout for lookups.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"
	TXTKeyGameID  = "gid"
	TXTKeyName    = "name"
	TXTKeyPath    = "path"
	TXTKeyTLS     = "tls"
	TXTKeyCodec   = "codec"
	TXTKeyPlayers = "pl"
)

// Errors.
var (
	ErrNotFound           = errors.New("arena server not found")
	ErrInvalidTXTRecord   = errors.New("invalid TXT record format")
	ErrMissingRequired    = errors.New("missing required field")
	ErrUnsupportedVersion = errors.New("unsupported advertisement version")
	ErrBrowserStopped     = errors.New("browser stopped")
)

// ArenaInfo is the content of an arena advertisement.
type ArenaInfo struct {
	Version string
	GameID  string
	Name    string
	Path    string
	Secure  bool
	Codec   string
	Players int
}

// Server is a discovered arena server.
type Server struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	ArenaInfo
}

// URL returns the websocket URL of the server. The first address is
// preferred over the host name.
func (s *Server) URL() string {
	scheme := "ws"
	if s.Secure {
		scheme = "wss"
	}

	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}

	port := s.Port
	if port == 0 {
		port = DefaultPort
	}

	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(port))) + path
}

// EventType distinguishes browse events.
type EventType int

const (
	// ServerAdded is reported the first time an instance is seen.
	ServerAdded EventType = iota

	// ServerRemoved is reported once the last address of an instance is gone.
	ServerRemoved
)

func (t EventType) String() string {
	if t == ServerRemoved {
		return "removed"
	}
	return "added"
}

// Event is a browse result.
type Event struct {
	Type   EventType
	Server *Server
}
