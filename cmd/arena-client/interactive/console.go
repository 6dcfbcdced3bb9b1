// Package interactive provides the interactive command-line interface
// for the arena client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/discovery"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/service"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

// ClientConfig provides configuration information to the console.
type ClientConfig interface {
	// GameID returns the configured game, or "" for any.
	GameID() string

	// Browser returns the LAN browser for the servers command, or nil
	// when discovery is disabled.
	Browser() *discovery.Browser
}

// Console handles interactive mode for arena-client.
type Console struct {
	svc    *service.PlayerService
	config ClientConfig
	rl     *readline.Instance
	out    io.Writer
}

// New creates a new console.
func New(svc *service.PlayerService, cfg ClientConfig) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arena> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(svc, cfg, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(svc *service.PlayerService, cfg ClientConfig, out io.Writer) *Console {
	c := &Console{svc: svc, config: cfg, out: out}
	svc.OnEvent(c.handleEvent)
	return c
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			c.println("Exiting...")
			cancel()
			return
		}

		if c.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns true when the line asks to quit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "zones", "z":
		c.cmdZones()

	case "zone":
		c.cmdZone(args)

	case "add":
		c.cmdCells(args, true)

	case "remove", "rm":
		c.cmdCells(args, false)

	case "rename":
		c.cmdRename(args)

	case "set":
		c.cmdSet(args)

	case "move", "m":
		c.cmdMove(args)

	case "where":
		c.cmdWhere()

	case "path":
		c.cmdPath()

	case "chat", "say":
		c.cmdChat(args)

	case "queue", "q":
		c.cmdQueue()

	case "conflicts":
		c.cmdConflicts()

	case "servers":
		c.cmdServers(ctx)

	case "sync":
		c.cmdSync(args)

	case "connect":
		c.cmdConnect(ctx)

	case "disconnect":
		c.svc.Disconnect()
		c.println("Disconnected")

	case "quit", "exit":
		c.println("Exiting...")
		return true

	default:
		c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(args ...any) {
	fmt.Fprintln(c.out, args...)
}

func (c *Console) printHelp() {
	c.println(`
Arena Client Commands:
  Connection:
    status                     - Show client status
    connect                    - Connect to the arena server
    disconnect                 - Close the connection
    queue                      - List queued outbound messages
    servers                    - Browse the LAN for arena servers

  Zones:
    zones                      - List known zones
    zone <id>                  - Show zone details
    add <id> <cell...>         - Add cells to a zone
    remove <id> <cell...>      - Remove cells from a zone
    rename <id> <name>         - Rename a zone
    set <id> <key>=<value>     - Set a zone attribute (empty value deletes)
    sync [id...]               - Request full snapshots from the server
    conflicts                  - Show resolved conflicts

  Player:
    move <lat> <lng>           - Report a position
    where                      - Show the last position and cell
    path                       - Show the cells visited
    chat <text>                - Send a chat message

  General:
    help                       - Show this help
    quit                       - Exit`)
}

func (c *Console) cmdStatus() {
	st := c.svc.Status()
	c.println("\nClient Status")
	c.println("-------------------------------------------")
	c.printf("  Service State:  %s\n", st.State)
	c.printf("  Connection:     %s\n", st.Connection.Status)
	if st.Connection.ConnectionID != "" {
		c.printf("  Connection ID:  %s\n", st.Connection.ConnectionID)
	}
	if st.Connection.ReconnectAttempts > 0 {
		c.printf("  Reconnects:     %d/%d\n", st.Connection.ReconnectAttempts, st.Connection.MaxReconnectAttempts)
	}
	if st.Connection.Latency > 0 {
		c.printf("  Latency:        %s\n", st.Connection.Latency.Round(time.Millisecond))
	}
	c.printf("  Player:         %s\n", orNone(st.PlayerID))
	c.printf("  Game:           %s\n", orNone(c.config.GameID()))
	c.printf("  Zones:          %d (%d pending changes)\n", st.Zones, st.Pending)
	c.printf("  Queued:         %d\n", st.Queued)
	c.printf("  Monitoring:     %t\n", st.Monitoring)
	c.printf("  Current Cell:   %s\n", orNone(st.CurrentCell))
	c.println()
}

func (c *Console) cmdZones() {
	syncer := c.svc.Synchronizer()
	ids := syncer.ZoneIDs()
	if len(ids) == 0 {
		c.println("No zones known")
		return
	}

	c.printf("\nZones (%d):\n", len(ids))
	c.println("-------------------------------------------")
	for _, id := range ids {
		snap, ok := syncer.Snapshot(id)
		if !ok {
			continue
		}
		z := snap.CurrentZone
		c.printf("  %s", id)
		if z != nil && z.Name != "" {
			c.printf(" (%s)", z.Name)
		}
		cells := 0
		if z != nil {
			cells = len(z.Cells)
		}
		c.printf(": %d cells, %s, %d pending\n", cells, snap.SyncStatus, len(snap.PendingChanges))
	}
}

func (c *Console) cmdZone(args []string) {
	if len(args) < 1 {
		c.println("Usage: zone <id>")
		return
	}
	snap, ok := c.svc.Synchronizer().Snapshot(args[0])
	if !ok || snap.CurrentZone == nil {
		c.printf("Zone not found: %s\n", args[0])
		return
	}

	z := snap.CurrentZone
	c.printf("\nZone %s\n", z.ID)
	c.println("-------------------------------------------")
	if z.Name != "" {
		c.printf("  Name:        %s\n", z.Name)
	}
	c.printf("  Version:     %d\n", z.Version)
	c.printf("  Status:      %s\n", snap.SyncStatus)
	c.printf("  Conflicts:   %d\n", snap.ConflictCount)
	if !snap.LastSyncTime.IsZero() {
		c.printf("  Last sync:   %s\n", snap.LastSyncTime.Format("15:04:05"))
	}
	if !snap.LastServerUpdate.IsZero() {
		c.printf("  Last server: %s\n", snap.LastServerUpdate.Format("15:04:05"))
	}
	for k, v := range z.Attributes {
		c.printf("  %s = %s\n", k, v)
	}
	c.printf("  Cells (%d):\n", len(z.Cells))
	for _, cell := range z.Cells {
		c.printf("    %s\n", cell)
	}
	for _, p := range snap.PendingChanges {
		c.printf("  Pending: %s (sent %s, retries %d)\n",
			formatDiff(p.Diff), p.SentAt.Format("15:04:05.000"), p.Retries)
	}
	c.println()
}

func (c *Console) cmdCells(args []string, add bool) {
	if len(args) < 2 {
		if add {
			c.println("Usage: add <id> <cell...>")
		} else {
			c.println("Usage: remove <id> <cell...>")
		}
		return
	}
	change := zonesync.Change{Remove: args[1:]}
	if add {
		change = zonesync.Change{Add: args[1:]}
	}
	c.applyChange(args[0], change)
}

func (c *Console) cmdRename(args []string) {
	if len(args) < 2 {
		c.println("Usage: rename <id> <name>")
		return
	}
	name := strings.Join(args[1:], " ")
	c.applyChange(args[0], zonesync.Change{Name: &name})
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		c.println("Usage: set <id> <key>=<value>")
		return
	}
	change := zonesync.Change{Attributes: make(map[string]string)}
	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			c.printf("Invalid attribute: %s\n", kv)
			return
		}
		if v == "" {
			change.DeleteAttributes = append(change.DeleteAttributes, k)
			continue
		}
		change.Attributes[k] = v
	}
	c.applyChange(args[0], change)
}

func (c *Console) applyChange(zoneID string, change zonesync.Change) {
	diff, err := c.svc.Synchronizer().ApplyLocalChange(zoneID, change)
	if errors.Is(err, zonesync.ErrNoChange) {
		c.println("No change")
		return
	}
	if err != nil {
		c.printf("Change failed: %v\n", err)
		return
	}
	c.printf("OK %s\n", formatDiff(diff))
}

func (c *Console) cmdMove(args []string) {
	if len(args) < 2 {
		c.println("Usage: move <lat> <lng>")
		c.println("  Example: move 37.7749 -122.4194")
		return
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		c.printf("Invalid latitude: %v\n", err)
		return
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		c.printf("Invalid longitude: %v\n", err)
		return
	}
	if err := c.svc.Move(spatial.LatLng{Lat: lat, Lng: lng}); err != nil {
		c.printf("Move failed: %v\n", err)
	}
}

func (c *Console) cmdWhere() {
	pos, ok := c.svc.Monitor().CurrentLocation()
	if !ok {
		c.println("No position yet")
		return
	}
	c.printf("  Position: %.6f, %.6f", pos.Lat, pos.Lng)
	if pos.Accuracy > 0 {
		c.printf(" (±%.0f m)", pos.Accuracy)
	}
	c.println()

	st := c.svc.Monitor().State()
	if st.CurrentZone != nil {
		c.printf("  Cell:     %s\n", st.CurrentZone.Cell)
	} else {
		c.println("  Cell:     outside every zone")
	}
	for _, n := range st.NearbyZones {
		c.printf("  Nearby:   %s %.0f m %s\n", n.Cell, n.Distance, n.Direction)
	}
}

func (c *Console) cmdPath() {
	path := c.svc.Monitor().PlayerPath()
	if len(path) == 0 {
		c.println("No cells visited")
		return
	}
	for i, rec := range path {
		c.printf("  %3d  %s  %s\n", i+1, rec.VisitedAt.Format("15:04:05"), rec.Cell)
	}
}

func (c *Console) cmdChat(args []string) {
	id, err := c.svc.SendChat(strings.Join(args, " "))
	if err != nil {
		c.printf("Chat failed: %v\n", err)
		return
	}
	if !c.svc.Channel().IsConnected() {
		c.printf("Queued %s\n", id)
	}
}

func (c *Console) cmdQueue() {
	queued := c.svc.Channel().Queued()
	if len(queued) == 0 {
		c.println("Queue is empty")
		return
	}
	c.printf("\nQueued Messages (%d):\n", len(queued))
	for _, q := range queued {
		c.printf("  %s %-20s since %s, retries %d/%d\n",
			q.Message.MessageID, q.Message.Type, q.EnqueuedAt.Format("15:04:05"), q.RetryCount, q.MaxRetries)
	}
}

func (c *Console) cmdConflicts() {
	conflicts := c.svc.Synchronizer().Conflicts()
	if len(conflicts) == 0 {
		c.println("No conflicts")
		return
	}
	for _, cf := range conflicts {
		c.printf("  %s %s resolved %s\n", cf.Timestamp.Format("15:04:05"), cf.ZoneID, cf.Resolution)
		c.printf("      local:  %s\n", formatDiff(cf.LocalChange))
		c.printf("      server: %s\n", formatDiff(cf.ServerChange))
	}
}

func (c *Console) cmdServers(ctx context.Context) {
	b := c.config.Browser()
	if b == nil {
		c.println("Discovery is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, discovery.BrowseTimeout)
	defer cancel()

	c.println("Browsing...")
	events, err := b.Browse(ctx)
	if err != nil {
		c.printf("Browse failed: %v\n", err)
		return
	}
	n := 0
	for ev := range events {
		if ev.Type != discovery.ServerAdded {
			continue
		}
		n++
		s := ev.Server
		c.printf("  %s  game %s, %d players, %s\n", s.Name, orNone(s.GameID), s.Players, s.URL())
	}
	if n == 0 {
		c.println("No servers found")
	}
}

func (c *Console) cmdSync(args []string) {
	id, err := c.svc.RequestSync(args...)
	if err != nil {
		c.printf("Sync request failed: %v\n", err)
		return
	}
	c.printf("Requested %s\n", id)
}

func (c *Console) cmdConnect(ctx context.Context) {
	if err := c.svc.Connect(ctx); err != nil {
		c.printf("Connect failed: %v\n", err)
	}
}

// handleEvent prints service events above the prompt.
func (c *Console) handleEvent(ev service.Event) {
	switch ev.Type {
	case service.EventConnected:
		c.println("[connected]")
	case service.EventDisconnected:
		c.printf("[disconnected] %s\n", ev.Message)
	case service.EventReconnecting:
		c.printf("[reconnecting] attempt %d in %s\n", ev.Attempt, ev.Delay.Round(time.Millisecond))
	case service.EventZoneEntered:
		c.printf("[enter] %s\n", ev.Geofence.Cell)
	case service.EventZoneExited:
		c.printf("[exit] %s\n", ev.Geofence.Cell)
	case service.EventConflict:
		c.printf("[conflict] zone %s resolved %s\n", ev.ZoneID, ev.Conflict.Resolution)
	case service.EventChat:
		c.printf("<%s> %s\n", orNone(ev.PlayerID), ev.Message)
	case service.EventServerError:
		c.printf("[server error] %s\n", ev.Message)
	case service.EventTransportError:
		if ev.Fatal {
			c.printf("[connection] %v (type 'connect' to retry)\n", ev.Error)
		}
	case service.EventLocationError:
		c.printf("[location] %v\n", ev.Error)
	}
}

func formatDiff(d wire.ZoneDiff) string {
	var parts []string
	if len(d.Added) > 0 {
		parts = append(parts, "+"+strings.Join(d.Added, ",+"))
	}
	if len(d.Removed) > 0 {
		parts = append(parts, "-"+strings.Join(d.Removed, ",-"))
	}
	for _, k := range d.Modified {
		parts = append(parts, fmt.Sprintf("%s=%s", k, d.Values[k]))
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
