package geofence

import (
	"fmt"
	"math"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/location"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

// EventType is the kind of membership event.
type EventType uint8

const (
	EventEnter EventType = iota + 1
	EventExit
)

func (t EventType) String() string {
	switch t {
	case EventEnter:
		return "enter"
	case EventExit:
		return "exit"
	default:
		return fmt.Sprintf("event(%d)", t)
	}
}

// ZoneEvent is a settled membership change.
type ZoneEvent struct {
	Type EventType
	Cell string

	// Position is the fix that produced the candidate.
	Position location.Position

	// Timestamp is when the event settled.
	Timestamp time.Time
}

// PositionFix is a position resolved to its cell.
type PositionFix struct {
	Position location.Position
	Cell     string

	// Active is set when Cell is watched.
	Active bool
}

// Direction is an eight-point compass direction.
type Direction uint8

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", d)
}

// DirectionTo returns the compass octant of to as seen from from.
func DirectionTo(from, to spatial.LatLng) Direction {
	dy := to.Lat - from.Lat
	dx := (to.Lng - from.Lng) * math.Cos(from.Lat*math.Pi/180)
	deg := math.Atan2(dx, dy) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return Direction(int(math.Round(deg/45)) % 8)
}

// ProximityAlert reports an active cell near the player.
type ProximityAlert struct {
	Cell      string
	Center    spatial.LatLng
	Distance  float64 // meters from the player to the cell center
	Direction Direction
}

// CellRecord is a cell resolved to its geometry.
type CellRecord struct {
	Cell       string
	Center     spatial.LatLng
	Boundary   []spatial.LatLng
	Resolution int

	// VisitedAt is when the player entered the cell, for path records.
	VisitedAt time.Time
}

// State is a snapshot of the monitor.
type State struct {
	CurrentZone       *CellRecord
	NearbyZones       []ProximityAlert
	IsMonitoring      bool
	LastLocation      *location.Position
	ActiveZoneIndices []string
	PlayerPath        []string
}
