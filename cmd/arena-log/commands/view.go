// Package commands implements the arena-log CLI commands.
package commands

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
)

// maxPayloadDisplay caps the payload bytes printed per event.
const maxPayloadDisplay = 512

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer       *log.Layer
	Direction   *log.Direction
	Category    *log.Category
	ZoneID      string
	MessageType string
}

func (f ViewFilter) toLogFilter() log.Filter {
	return log.Filter{
		Layer:       f.Layer,
		Direction:   f.Direction,
		Category:    f.Category,
		ZoneID:      f.ZoneID,
		MessageType: f.MessageType,
	}
}

// eventLabel names the payload an event carries.
func eventLabel(event log.Event) string {
	switch {
	case event.Message != nil:
		return event.Message.Type
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Sync != nil:
		return "Sync"
	case event.Geofence != nil:
		return "Geofence"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)

	layerStr := event.Layer.String()
	if event.Category == log.CategoryControl {
		layerStr = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-5s %s %s\n", ts, connID, event.Direction.String(), layerStr, eventLabel(event))
	if event.ZoneID != "" {
		fmt.Fprintf(w, "  Zone: %s\n", event.ZoneID)
	}

	switch {
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		formatControlDetails(w, event.ControlMsg)
	case event.Sync != nil:
		formatSyncDetails(w, event.Sync)
	case event.Geofence != nil:
		formatGeofenceDetails(w, event.Geofence)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  MessageID: %s\n", msg.MessageID)
	if msg.Size > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", msg.Size)
	}
	var flags []string
	if msg.Queued {
		flags = append(flags, "queued")
	}
	if msg.Duplicate {
		flags = append(flags, "duplicate")
	}
	if msg.RetryCount > 0 {
		flags = append(flags, fmt.Sprintf("retry %d", msg.RetryCount))
	}
	if len(flags) > 0 {
		fmt.Fprintf(w, "  Flags: %s\n", strings.Join(flags, ", "))
	}
	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", formatPayload(msg.Payload))
	}
}

// formatPayload prints JSON payloads as text and anything else as hex.
func formatPayload(p []byte) string {
	truncated := len(p) > maxPayloadDisplay
	if truncated {
		p = p[:maxPayloadDisplay]
	}
	var s string
	if utf8.Valid(p) && (truncated || json.Valid(p)) {
		s = string(p)
	} else {
		s = hex.EncodeToString(p)
	}
	if truncated {
		s += " (truncated)"
	}
	return s
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
	if sc.Attempt > 0 {
		fmt.Fprintf(w, "  Attempt: %d (in %s)\n", sc.Attempt, formatDuration(sc.Delay))
	}
}

func formatControlDetails(w io.Writer, c *log.ControlMsgEvent) {
	if c.CloseCode != nil {
		fmt.Fprintf(w, "  Code: %d\n", *c.CloseCode)
	}
	if c.Latency != nil {
		fmt.Fprintf(w, "  Latency: %s\n", formatDuration(*c.Latency))
	}
}

func formatSyncDetails(w io.Writer, s *log.SyncEvent) {
	fmt.Fprintf(w, "  Action: %s\n", s.Action)
	if s.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", s.Status)
	}
	fmt.Fprintf(w, "  Pending: %d\n", s.Pending)
	if s.Added+s.Removed+s.Modified > 0 {
		fmt.Fprintf(w, "  Diff: +%d -%d ~%d\n", s.Added, s.Removed, s.Modified)
	}
	if s.Resolution != "" {
		fmt.Fprintf(w, "  Resolution: %s\n", s.Resolution)
	}
}

func formatGeofenceDetails(w io.Writer, g *log.GeofenceEvent) {
	fmt.Fprintf(w, "  %s %s\n", g.Kind, g.Cell)
	if g.Distance > 0 {
		fmt.Fprintf(w, "  Distance: %.1f m\n", g.Distance)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "sync":
		return log.LayerSync, nil
	case "geofence":
		return log.LayerGeofence, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, sync, or geofence)", s)
	}
}

// ParseDirectionFlag parses a direction string (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "local":
		return log.DirectionLocal, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in, out, or local)", s)
	}
}

// ParseCategoryFlag parses a category string (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	case "conflict":
		return log.CategoryConflict, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, error, or conflict)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.toLogFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
