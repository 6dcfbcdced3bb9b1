package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var csvHeader = []string{"timestamp", "connection_id", "direction", "layer", "category", "player_id", "zone_id", "type", "message_id"}

// RunExport exports the log file to the specified format. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	if format != FormatJSONL && format != FormatCSV {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == FormatCSV {
		return exportCSV(reader, w)
	}
	return exportJSONL(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(event log.Event) []string {
	msgID := ""
	if event.Message != nil {
		msgID = event.Message.MessageID
	}
	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ConnectionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.PlayerID,
		event.ZoneID,
		csvType(event),
		msgID,
	}
}

func csvType(event log.Event) string {
	switch {
	case event.Message != nil:
		return event.Message.Type
	case event.StateChange != nil:
		return "state"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Sync != nil:
		return "sync:" + event.Sync.Action
	case event.Geofence != nil:
		return "geofence:" + event.Geofence.Kind
	case event.Error != nil:
		return "error"
	default:
		return "unknown"
	}
}
