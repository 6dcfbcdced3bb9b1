// Package service ties the arena client components together.
//
// PlayerService owns one transport channel, one zone synchronizer and one
// geofence monitor and wires them to each other:
//   - channel lifecycle events and zone pushes are bound to the
//     synchronizer
//   - every zone change updates the monitor's watched cells to the union of
//     all zone cells
//   - classified positions are reported to the server as player_move while
//     connected
//   - authoritative snapshots and conflicts are persisted when a state
//     file is configured, and restored on Start
//
// Example usage:
//
//	cfg := service.DefaultConfig("wss://arena.example/ws")
//	cfg.Transport.GameID = "g-42"
//	svc, err := service.NewPlayerService(cfg)
//	svc.OnEvent(func(e service.Event) { ... })
//	svc.Start(ctx)
//	defer svc.Stop()
//	svc.Connect(ctx)
//
// # Event Callbacks
//
// Services emit events for important state changes:
//   - connection: connected, disconnected, reconnecting
//   - zones: zone changed, sync status changed, conflict resolved
//   - geofence: entered, exited, proximity, location error
//   - server pushes: chat, server error
package service
