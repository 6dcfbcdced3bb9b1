package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the server URL or address.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// PlayerID is the local player identifier.
	PlayerID string `cbor:"7,keyasint,omitempty"`

	// GameID is the game session identifier.
	GameID string `cbor:"8,keyasint,omitempty"`

	// ZoneID is the arena zone the event concerns (sync and geofence events).
	ZoneID string `cbor:"9,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"` // Wire layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Connection/zone state
	ControlMsg  *ControlMsgEvent  `cbor:"12,keyasint,omitempty"` // Ping/pong/close
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
	Sync        *SyncEvent        `cbor:"14,keyasint,omitempty"` // Zone synchronization
	Geofence    *GeofenceEvent    `cbor:"15,keyasint,omitempty"` // Membership events
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
	// DirectionLocal indicates an event with no network direction.
	DirectionLocal Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the connection layer.
	LayerTransport Layer = 0
	// LayerWire is the envelope layer (decoded messages).
	LayerWire Layer = 1
	// LayerSync is the zone synchronizer.
	LayerSync Layer = 2
	// LayerGeofence is the geofence monitor.
	LayerGeofence Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSync:
		return "SYNC"
	case LayerGeofence:
		return "GEOFENCE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates an application message.
	CategoryMessage Category = 0
	// CategoryControl indicates a control message (ping/pong/close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
	// CategoryConflict indicates a zone sync conflict.
	CategoryConflict Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures an envelope at the wire layer.
type MessageEvent struct {
	// Type is the envelope type tag.
	Type string `cbor:"1,keyasint"`

	// MessageID is the envelope message id.
	MessageID string `cbor:"2,keyasint"`

	// Size is the encoded frame size in bytes.
	Size int `cbor:"3,keyasint,omitempty"`

	// Queued is set when the message was queued instead of written.
	Queued bool `cbor:"4,keyasint,omitempty"`

	// RetryCount is the number of failed transmissions so far.
	RetryCount int `cbor:"5,keyasint,omitempty"`

	// Duplicate is set for inbound messages dropped as already seen.
	Duplicate bool `cbor:"6,keyasint,omitempty"`

	// Payload is the raw payload in the codec's encoding.
	Payload []byte `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures connection and zone lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`

	// Attempt is the reconnect attempt number, for reconnecting states.
	Attempt int `cbor:"5,keyasint,omitempty"`

	// Delay is the scheduled reconnect delay.
	Delay time.Duration `cbor:"6,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityZone indicates a zone sync status change.
	StateEntityZone StateEntity = 1
	// StateEntityMonitor indicates a geofence monitor start/stop.
	StateEntityMonitor StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityZone:
		return "ZONE"
	case StateEntityMonitor:
		return "MONITOR"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// CloseCode is the websocket close code for close messages.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// Latency is the measured round trip, for pongs.
	Latency *time.Duration `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a ping message.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates a pong message.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgClose indicates a close message.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// SyncEvent captures a zone synchronization step.
type SyncEvent struct {
	// Action is what happened ("local_change", "server_update", "resync",
	// "conflict", "ack").
	Action string `cbor:"1,keyasint"`

	// Status is the zone sync status after the step.
	Status string `cbor:"2,keyasint,omitempty"`

	// Pending is the number of pending local changes after the step.
	Pending int `cbor:"3,keyasint"`

	// Added, Removed and Modified are the sizes of the diff involved.
	Added    int `cbor:"4,keyasint,omitempty"`
	Removed  int `cbor:"5,keyasint,omitempty"`
	Modified int `cbor:"6,keyasint,omitempty"`

	// Resolution is set for conflicts.
	Resolution string `cbor:"7,keyasint,omitempty"`
}

// GeofenceEvent captures a settled membership event.
type GeofenceEvent struct {
	// Kind is "enter", "exit" or "proximity".
	Kind string `cbor:"1,keyasint"`

	// Cell is the cell id concerned.
	Cell string `cbor:"2,keyasint"`

	// Distance is the distance to the cell center in meters, for proximity.
	Distance float64 `cbor:"3,keyasint,omitempty"`
}
