package zonesync

import (
	"slices"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// PendingChange is a local diff awaiting server confirmation.
type PendingChange struct {
	Diff    wire.ZoneDiff
	SentAt  time.Time
	Retries int
}

// ZoneSyncState is a snapshot of one zone's synchronization state.
type ZoneSyncState struct {
	CurrentZone      *wire.Zone
	PendingChanges   []PendingChange
	LastSyncTime     time.Time
	LastServerUpdate time.Time
	ConflictCount    int
	SyncStatus       SyncStatus
}

// ZoneConflict records one conflict between a pending local diff and a
// server diff.
type ZoneConflict struct {
	ZoneID       string
	LocalChange  wire.ZoneDiff
	ServerChange wire.ZoneDiff
	Resolution   Resolution
	Timestamp    time.Time
}

// zoneState is the synchronizer's record for one zone.
type zoneState struct {
	ZoneSyncState

	id string

	// base is the last server-authoritative snapshot.
	base *wire.Zone

	awaitingResync  bool
	resyncRequested time.Time

	lastDiffTS int64
}

func newZoneState(zone *wire.Zone) *zoneState {
	return &zoneState{
		id: zone.ID,
		ZoneSyncState: ZoneSyncState{
			CurrentZone: zone.Clone(),
			SyncStatus:  StatusSynced,
		},
		base: zone.Clone(),
	}
}

// snapshot returns a deep copy of the public state.
func (z *zoneState) snapshot() ZoneSyncState {
	out := z.ZoneSyncState
	out.CurrentZone = z.CurrentZone.Clone()
	out.PendingChanges = make([]PendingChange, len(z.PendingChanges))
	for i, p := range z.PendingChanges {
		p.Diff = p.Diff.Clone()
		out.PendingChanges[i] = p
	}
	return out
}

// nextTimestamp keeps diff timestamps for the zone strictly increasing so
// a producer's diffs never reorder and acks identify them uniquely.
func (z *zoneState) nextTimestamp(ts int64) int64 {
	if ts <= z.lastDiffTS {
		ts = z.lastDiffTS + 1
	}
	z.lastDiffTS = ts
	return ts
}

// removeAcked drops pending diffs whose timestamps appear in acks and
// returns them in order.
func (z *zoneState) removeAcked(acks []int64) []wire.ZoneDiff {
	if len(acks) == 0 || len(z.PendingChanges) == 0 {
		return nil
	}
	var acked []wire.ZoneDiff
	z.PendingChanges = slices.DeleteFunc(z.PendingChanges, func(p PendingChange) bool {
		if slices.Contains(acks, p.Diff.Timestamp) {
			acked = append(acked, p.Diff)
			return true
		}
		return false
	})
	return acked
}

// rebase rebuilds the current snapshot from base plus the pending diffs.
func (z *zoneState) rebase(optimistic bool) {
	cur := z.base.Clone()
	if optimistic {
		for _, p := range z.PendingChanges {
			cur = Apply(cur, p.Diff)
		}
	}
	z.CurrentZone = cur
}
