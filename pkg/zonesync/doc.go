// Package zonesync keeps zone geometry consistent between the local
// participant and the authoritative arena server.
//
// Every zone has its own sync state machine:
//
//	synced --local edit--> syncing --ack / empty pending--> synced
//	syncing --conflicting server update--> conflict --resolution--> syncing | synced
//	any --transport disconnect--> disconnected --reconnect--> syncing (full re-sync)
//
// Local edits are turned into diffs against the current snapshot, applied
// optimistically, kept as pending changes and transmitted in batches.
// Server pushes are adopted directly when nothing is pending; otherwise
// pending diffs are checked against the server diff and conflicts are
// resolved with the configured Policy.
//
// A conflict exists when a pending diff's added cells intersect the server's
// removed cells, its removed cells intersect the server's added cells, or
// both modify the same attribute.
package zonesync
