package commands

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByType    map[string]int
	Connections       map[string]*ConnectionStats
	Zones             map[string]*ZoneStats
	Geofence          map[string]int
	Errors            int
	Duplicates        int
	Reconnects        int
	Header            *log.Header
	Truncated         bool
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	PlayerID   string
	GameID     string
	RemoteAddr string
	Pongs      int
	MaxLatency time.Duration
}

// ZoneStats holds synchronization statistics for a single zone.
type ZoneStats struct {
	LocalChanges  int
	ServerUpdates int
	Conflicts     int
	LastStatus    string
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByType:    make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
		Zones:             make(map[string]*ZoneStats),
		Geofence:          make(map[string]int),
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	stats.Header = reader.Header()
	stats.Truncated = reader.Truncated()

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.ConnectionID != "" {
		conn, ok := s.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		conn.PlayerID = cmp.Or(conn.PlayerID, event.PlayerID)
		conn.GameID = cmp.Or(conn.GameID, event.GameID)
		conn.RemoteAddr = cmp.Or(conn.RemoteAddr, event.RemoteAddr)
		if c := event.ControlMsg; c != nil && c.Type == log.ControlMsgPong {
			conn.Pongs++
			if c.Latency != nil && *c.Latency > conn.MaxLatency {
				conn.MaxLatency = *c.Latency
			}
		}
	}

	if m := event.Message; m != nil {
		s.MessagesByType[m.Type]++
		if m.Duplicate {
			s.Duplicates++
		}
	}
	if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityConnection && sc.Attempt > 0 {
		s.Reconnects++
	}

	if g := event.Geofence; g != nil {
		s.Geofence[g.Kind]++
	}

	if sy := event.Sync; sy != nil && event.ZoneID != "" {
		z, ok := s.Zones[event.ZoneID]
		if !ok {
			z = &ZoneStats{}
			s.Zones[event.ZoneID] = z
		}
		switch sy.Action {
		case "local_change":
			z.LocalChanges++
		case "server_update":
			z.ServerUpdates++
		}
		if event.Category == log.CategoryConflict {
			z.Conflicts++
		}
		if sy.Status != "" {
			z.LastStatus = sy.Status
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Arena Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if h := stats.Header; h != nil {
		fmt.Fprintf(w, "Capture:    v%d by %s, created %s\n",
			h.Version, cmp.Or(h.Client, "unknown"), h.Created.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "Capture:    no header (legacy)")
	}
	if stats.Truncated {
		fmt.Fprintln(w, "Warning:    capture ends in a partial record")
	}
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSync, log.LayerGeofence} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError, log.CategoryConflict} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionLocal} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByType) > 0 {
		fmt.Fprintln(w, "Messages by Type:")
		for _, typ := range slices.Sorted(maps.Keys(stats.MessagesByType)) {
			fmt.Fprintf(w, "  %-22s %d\n", typ+":", stats.MessagesByType[typ])
		}
		if stats.Duplicates > 0 {
			fmt.Fprintf(w, "  Duplicates dropped:    %d\n", stats.Duplicates)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if stats.Reconnects > 0 {
		fmt.Fprintf(w, "Reconnect attempts: %d\n", stats.Reconnects)
	}
	if len(stats.Connections) > 0 {
		ids := slices.SortedFunc(maps.Keys(stats.Connections), func(a, b string) int {
			return stats.Connections[a].FirstSeen.Compare(stats.Connections[b].FirstSeen)
		})

		fmt.Fprintln(w)
		for _, id := range ids {
			c := stats.Connections[id]
			duration := c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(id), c.Events, duration)
			if c.RemoteAddr != "" {
				fmt.Fprintf(w, "           Server: %s\n", c.RemoteAddr)
			}
			if c.PlayerID != "" {
				fmt.Fprintf(w, "           Player: %s\n", c.PlayerID)
			}
			if c.GameID != "" {
				fmt.Fprintf(w, "           Game: %s\n", c.GameID)
			}
			if c.Pongs > 0 {
				fmt.Fprintf(w, "           Pongs: %d (max latency %s)\n", c.Pongs, formatDuration(c.MaxLatency))
			}
		}
	}

	if len(stats.Zones) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Zones: %d\n", len(stats.Zones))
		for _, id := range slices.Sorted(maps.Keys(stats.Zones)) {
			z := stats.Zones[id]
			fmt.Fprintf(w, "  %s: local %d, server %d, conflicts %d",
				id, z.LocalChanges, z.ServerUpdates, z.Conflicts)
			if z.LastStatus != "" {
				fmt.Fprintf(w, " [%s]", z.LastStatus)
			}
			fmt.Fprintln(w)
		}
	}

	if len(stats.Geofence) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Geofence:")
		for _, kind := range slices.Sorted(maps.Keys(stats.Geofence)) {
			fmt.Fprintf(w, "  %-12s %d\n", kind+":", stats.Geofence[kind])
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
