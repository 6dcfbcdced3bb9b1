package service

import (
	"errors"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/geofence"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/transport"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrEmptyMessage   = errors.New("empty chat message")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Event types for service callbacks.
type EventType uint8

const (
	// EventConnected - connection established or re-established.
	EventConnected EventType = iota

	// EventDisconnected - connection lost or closed.
	EventDisconnected

	// EventReconnecting - a reconnect attempt is scheduled.
	EventReconnecting

	// EventZoneChanged - a zone snapshot changed.
	EventZoneChanged

	// EventZoneStatus - a zone's sync status changed.
	EventZoneStatus

	// EventConflict - a conflict was resolved.
	EventConflict

	// EventZoneEntered - the player settled inside a watched cell.
	EventZoneEntered

	// EventZoneExited - the player settled outside a cell.
	EventZoneExited

	// EventProximity - watched cells are near the player.
	EventProximity

	// EventLocationError - the position source failed.
	EventLocationError

	// EventChat - a chat message or announcement arrived.
	EventChat

	// EventServerError - the server reported an error.
	EventServerError

	// EventTransportError - the channel failed. Fatal is set when it will
	// not reconnect on its own.
	EventTransportError
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventReconnecting:
		return "RECONNECTING"
	case EventZoneChanged:
		return "ZONE_CHANGED"
	case EventZoneStatus:
		return "ZONE_STATUS"
	case EventConflict:
		return "CONFLICT"
	case EventZoneEntered:
		return "ZONE_ENTERED"
	case EventZoneExited:
		return "ZONE_EXITED"
	case EventProximity:
		return "PROXIMITY"
	case EventLocationError:
		return "LOCATION_ERROR"
	case EventChat:
		return "CHAT"
	case EventServerError:
		return "SERVER_ERROR"
	case EventTransportError:
		return "TRANSPORT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event represents a service event.
type Event struct {
	// Type is the event type.
	Type EventType

	// ZoneID is the zone ID (for zone events).
	ZoneID string

	// Zone is the new snapshot (for zone changed events).
	Zone *wire.Zone

	// OldStatus and Status are the sync statuses (for zone status events).
	OldStatus zonesync.SyncStatus
	Status    zonesync.SyncStatus

	// Conflict is the resolved conflict (for conflict events).
	Conflict *zonesync.ZoneConflict

	// Geofence is the settled membership event (for enter/exit events).
	Geofence *geofence.ZoneEvent

	// Proximity are the nearby cells, nearest first (for proximity events).
	Proximity []geofence.ProximityAlert

	// Attempt and Delay describe a scheduled reconnect.
	Attempt int
	Delay   time.Duration

	// PlayerID is the sender (for chat events).
	PlayerID string

	// Message is the chat text or server error message.
	Message string

	// Error is set if the event is an error.
	Error error

	// Fatal marks a transport error after which the channel stays down
	// until Connect is called again.
	Fatal bool
}

// EventHandler handles service events.
type EventHandler func(Event)

// Status is a snapshot of the service.
type Status struct {
	State       ServiceState
	Connection  transport.ConnectionState
	PlayerID    string
	Zones       int
	Pending     int
	Queued      int
	Monitoring  bool
	CurrentCell string
}
