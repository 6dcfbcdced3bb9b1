// Package zonestore persists zone state for the arena client.
//
// A Store keeps the last server-authoritative snapshot of every zone and
// an append-only conflict history in a bbolt database, so a restarted
// client can show the arena before its first re-sync completes. Records
// are CBOR encoded with the wire package's deterministic mode.
//
// Store implements zonesync.Store:
//
//	store, err := zonestore.Open(filepath.Join(dir, "zones.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	cfg := zonesync.DefaultConfig()
//	cfg.Store = store
//
// Pending local changes are never persisted; they are only meaningful to
// the connection that produced them.
package zonestore
