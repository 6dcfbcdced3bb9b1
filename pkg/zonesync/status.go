package zonesync

import (
	"fmt"
	"strings"
)

// SyncStatus is the per-zone synchronization state.
type SyncStatus uint8

const (
	// StatusSynced means the local snapshot matches the last server update
	// and nothing is pending.
	StatusSynced SyncStatus = iota

	// StatusSyncing means local changes are pending or a re-sync is in
	// flight.
	StatusSyncing

	// StatusConflict is held while a conflicting server update is resolved.
	StatusConflict

	// StatusDisconnected means the transport is down.
	StatusDisconnected
)

// String returns the status name.
func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusSyncing:
		return "syncing"
	case StatusConflict:
		return "conflict"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Resolution records how a conflict was settled.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionServer Resolution = "server"
	ResolutionMerge  Resolution = "merge"
)

// Policy selects the conflict resolution strategy.
type Policy uint8

const (
	// PolicyServerWins discards pending local changes and adopts the
	// server snapshot.
	PolicyServerWins Policy = iota

	// PolicyClientWins adopts the server snapshot as the new base and
	// retransmits all pending local changes on top of it.
	PolicyClientWins

	// PolicyMerge adopts the server snapshot and re-applies only the
	// non-conflicting parts of the pending local changes.
	PolicyMerge
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyServerWins:
		return "server-wins"
	case PolicyClientWins:
		return "client-wins"
	case PolicyMerge:
		return "merge"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// Resolution returns the resolution recorded for conflicts settled by p.
func (p Policy) Resolution() Resolution {
	switch p {
	case PolicyClientWins:
		return ResolutionLocal
	case PolicyMerge:
		return ResolutionMerge
	default:
		return ResolutionServer
	}
}

// ParsePolicy parses a policy name as produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "server-wins", "server":
		return PolicyServerWins, nil
	case "client-wins", "client", "local":
		return PolicyClientWins, nil
	case "merge":
		return PolicyMerge, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}
