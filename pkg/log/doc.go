// Package log provides structured protocol capture for the arena client.
//
// This package defines the Logger interface and Event types for capturing
// events at multiple layers (transport, wire, sync, geofence). It is
// separate from operational logging (slog): protocol capture provides a
// complete machine-readable trace of what went over the socket and how
// zone state reacted to it.
//
// # Basic Usage
//
// Components accept a Logger in their configuration:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/arena/client.alog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
//   - Wire: sent, queued and received envelopes (MessageEvent)
//   - Transport: connection state changes (StateChangeEvent) and
//     heartbeat/close control traffic (ControlMsgEvent)
//   - Sync: zone synchronization transitions and conflicts (SyncEvent)
//   - Geofence: settled enter/exit events (GeofenceEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Captures use the .alog extension and are a CBOR sequence: one Header
// record (magic "arena-capture", format version, creation time, writing
// client) followed by one record per Event. Readers accept captures
// without a header and stop cleanly at a truncated final record. The
// arena-log tool views, filters, exports and summarizes captures.
package log
