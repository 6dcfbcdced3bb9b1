// Command arena-log views and analyzes arena protocol capture files.
//
// Capture files are written by arena-client when run with -protocol-log.
//
// Usage:
//
//	arena-log <command> [flags] <file.alog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View sync events for one zone
//	arena-log view --layer sync --zone-id z1 session.alog
//
//	# View only outgoing player moves
//	arena-log view --direction out --type player_move session.alog
//
//	# Export to CSV
//	arena-log export --format csv -o session.csv session.alog
//
//	# Keep one connection in a new file
//	arena-log filter --conn-id abc12345 -o conn.alog session.alog
//
//	# Show statistics
//	arena-log stats session.alog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/cmd/arena-log/commands"
)

const usage = `arena-log - Arena Protocol Log Analyzer

Usage:
  arena-log <command> [flags] <file.alog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "arena-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// parseArgs parses args and returns the log file path.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func setUsage(fs *flag.FlagSet, title, synopsis string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "arena-log %s - %s\n\nUsage:\n  arena-log %s\n\nFlags:\n", fs.Name(), title, synopsis)
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	setUsage(fs, "View log file in human-readable format", "view [flags] <file.alog>")

	layer := fs.String("layer", "", "Filter by layer (transport, wire, sync, geofence)")
	direction := fs.String("direction", "", "Filter by direction (in, out, local)")
	category := fs.String("category", "", "Filter by category (message, control, state, error, conflict)")
	zoneID := fs.String("zone-id", "", "Filter by zone ID")
	msgType := fs.String("type", "", "Filter by message type (e.g. zone_update)")

	path := parseArgs(fs, args)

	filter := commands.ViewFilter{ZoneID: *zoneID, MessageType: *msgType}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	setUsage(fs, "Export log file to JSON or CSV format", "export [flags] <file.alog>")

	format := fs.String("format", commands.FormatJSONL, "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	setUsage(fs, "Filter log file and write to new file", "filter [flags] <file.alog>")

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.PlayerID, "player-id", "", "Filter by player ID")
	fs.StringVar(&opts.ZoneID, "zone-id", "", "Filter by zone ID")
	fs.StringVar(&opts.MessageType, "type", "", "Filter by message type")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, sync, geofence)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out, local)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error, conflict)")

	path := parseArgs(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `arena-log stats - Show statistics about the log file

Usage:
  arena-log stats <file.alog>

`)
	}

	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
