package zonesync

import "github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"

// Store persists authoritative zone snapshots and the conflict history.
type Store interface {
	// SaveZone stores the latest server-authoritative snapshot of a zone.
	SaveZone(zone *wire.Zone) error

	// LoadZones returns all stored snapshots.
	LoadZones() ([]*wire.Zone, error)

	// SaveConflict appends a conflict record.
	SaveConflict(c ZoneConflict) error
}
