package connection

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateError is terminal: the server rejected the session or the
	// reconnect ceiling was exceeded. Only an explicit Connect leaves it.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsActive returns true if the state owns, or is trying to own, a live
// connection.
func (s State) IsActive() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}
