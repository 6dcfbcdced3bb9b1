package wire

import (
	"maps"
	"slices"
)

// DiffSource identifies who produced a ZoneDiff.
type DiffSource string

const (
	SourceManager DiffSource = "manager"
	SourceServer  DiffSource = "server"
	SourcePlayer  DiffSource = "player"
)

// IsValid returns true for the known diff sources.
func (s DiffSource) IsValid() bool {
	switch s {
	case SourceManager, SourceServer, SourcePlayer:
		return true
	}
	return false
}

// Zone is a snapshot of a safe-zone geometry.
type Zone struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Cells      []string          `json:"cells"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Version    int64             `json:"version,omitempty"`
	UpdatedAt  int64             `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy of the zone.
func (z *Zone) Clone() *Zone {
	if z == nil {
		return nil
	}
	c := *z
	c.Cells = slices.Clone(z.Cells)
	c.Attributes = maps.Clone(z.Attributes)
	return &c
}

// HasCell returns true if the zone covers the cell.
func (z *Zone) HasCell(cell string) bool {
	return slices.Contains(z.Cells, cell)
}

// CellSet returns the zone's cells as a set.
func (z *Zone) CellSet() map[string]struct{} {
	set := make(map[string]struct{}, len(z.Cells))
	for _, c := range z.Cells {
		set[c] = struct{}{}
	}
	return set
}

// Equal compares zone contents, ignoring cell order and bookkeeping
// fields (version and update time).
func (z *Zone) Equal(o *Zone) bool {
	if z == nil || o == nil {
		return z == o
	}
	if z.ID != o.ID || z.Name != o.Name {
		return false
	}
	if !slices.Equal(SortedSet(z.Cells), SortedSet(o.Cells)) {
		return false
	}
	if len(z.Attributes) != len(o.Attributes) {
		return false
	}
	return maps.Equal(z.Attributes, o.Attributes)
}

// ZoneDiff is a change-set against a prior zone snapshot.
//
// Added and Removed hold cell ids. Modified holds the names of changed
// attributes; the field "name" stands for the zone name. Values carries the
// new value of each modified attribute; a modified name without a value
// means the attribute was deleted.
type ZoneDiff struct {
	Added     []string          `json:"added,omitempty"`
	Removed   []string          `json:"removed,omitempty"`
	Modified  []string          `json:"modified,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Source    DiffSource        `json:"source"`
}

// FieldName is the Modified entry for the zone name.
const FieldName = "name"

// IsEmpty returns true if the diff changes nothing.
func (d *ZoneDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Normalize sorts and de-duplicates the diff sets in place.
func (d *ZoneDiff) Normalize() {
	d.Added = SortedSet(d.Added)
	d.Removed = SortedSet(d.Removed)
	d.Modified = SortedSet(d.Modified)
}

// Clone returns a deep copy of the diff.
func (d ZoneDiff) Clone() ZoneDiff {
	d.Added = slices.Clone(d.Added)
	d.Removed = slices.Clone(d.Removed)
	d.Modified = slices.Clone(d.Modified)
	d.Values = maps.Clone(d.Values)
	return d
}

// ZoneUpdate is the arena_zone_update payload.
//
// Diffs are the changes the sender applied. A server push may also carry
// the full post-update snapshot in Zone, and the timestamps of the diffs
// from the receiving player that it has accepted in AckDiffs.
type ZoneUpdate struct {
	ZoneID    string     `json:"zoneId"`
	Diffs     []ZoneDiff `json:"diffs"`
	Timestamp int64      `json:"timestamp"`
	Zone      *Zone      `json:"zone,omitempty"`
	AckDiffs  []int64    `json:"ackDiffs,omitempty"`
}

// ZoneShrink is the arena_zone_shrink payload.
type ZoneShrink struct {
	ZoneID       string   `json:"zoneId"`
	RemovedCells []string `json:"removedCells"`
	Zone         *Zone    `json:"zone,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// ToUpdate converts a shrink into the equivalent server zone update.
func (s ZoneShrink) ToUpdate() ZoneUpdate {
	diff := ZoneDiff{
		Removed:   slices.Clone(s.RemovedCells),
		Timestamp: s.Timestamp,
		Source:    SourceServer,
	}
	diff.Normalize()
	return ZoneUpdate{
		ZoneID:    s.ZoneID,
		Diffs:     []ZoneDiff{diff},
		Timestamp: s.Timestamp,
		Zone:      s.Zone.Clone(),
	}
}

// GameStateSyncRequest asks the server for a full snapshot of the given
// zones.
type GameStateSyncRequest struct {
	ZoneIDs []string `json:"zoneIds"`
}

// GameState is the game_state_sync payload pushed by the server in answer
// to a GameStateSyncRequest.
type GameState struct {
	Zones     []Zone `json:"zones"`
	Timestamp int64  `json:"timestamp"`
}

// ChatMessage is the chat_message payload.
type ChatMessage struct {
	Message string `json:"message"`
}

// RateLimit is the rate_limit payload sent by the server.
type RateLimit struct {
	RetryAfterMs int64 `json:"retryAfterMs"`
}

// ErrorPayload is the error payload sent by the server.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Heartbeat is carried by ping and pong messages. A pong echoes the
// message id of the ping it answers.
type Heartbeat struct {
	PingID string `json:"pingId,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
}

// SortedSet returns the sorted, de-duplicated elements of s.
// A nil or empty input yields nil.
func SortedSet(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
