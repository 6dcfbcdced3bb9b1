// Command arena-client is a reference arena player client.
//
// It connects a player to an arena server, keeps the zone layout in sync
// and reports zone enter, exit and proximity events for the player's
// position.
//
// Usage:
//
//	arena-client [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-url string           Arena server websocket URL
//	-game string          Game ID
//	-player string        Player ID (taken from the token when empty)
//	-token string         Session token
//	-codec string         Wire codec: json, cbor
//	-policy string        Conflict policy: server-wins, client-wins, merge
//	-state-dir string     Directory for the zone database
//	-track string         Replay a recorded track as the position source
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-discover             Browse the LAN for a server when no URL is set
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Join a game interactively
//	arena-client -url ws://localhost:8080/ws -token $TOKEN -interactive
//
//	# Find a LAN server and replay a track with protocol capture
//	arena-client -discover -game g-42 -track walk.yaml -protocol-log walk.alog
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/cmd/arena-client/interactive"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/internal/config"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/discovery"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/location"
	arenalog "github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/service"
)

// Options holds the command line flags.
// It implements interactive.ClientConfig.
type Options struct {
	ConfigFile  string
	URL         string
	Game        string
	Player      string
	Token       string
	Codec       string
	Policy      string
	StateDir    string
	Track       string
	LogLevel    string
	ProtocolLog string
	Discover    bool
	Interactive bool

	browser *discovery.Browser
}

// GameID implements interactive.ClientConfig.
func (o *Options) GameID() string {
	return o.Game
}

// Browser implements interactive.ClientConfig.
func (o *Options) Browser() *discovery.Browser {
	return o.browser
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.URL, "url", "", "Arena server websocket URL")
	flag.StringVar(&opts.Game, "game", "", "Game ID")
	flag.StringVar(&opts.Player, "player", "", "Player ID (taken from the token when empty)")
	flag.StringVar(&opts.Token, "token", "", "Session token")
	flag.StringVar(&opts.Codec, "codec", "", "Wire codec: json, cbor")
	flag.StringVar(&opts.Policy, "policy", "", "Conflict policy: server-wins, client-wins, merge")
	flag.StringVar(&opts.StateDir, "state-dir", "", "Directory for the zone database")
	flag.StringVar(&opts.Track, "track", "", "Replay a recorded track as the position source")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.BoolVar(&opts.Discover, "discover", false, "Browse the LAN for a server when no URL is set")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Enable interactive command mode")
}

// stdLogWriter forwards to the current standard logger output, so slog
// follows log.SetOutput when the console takes over the terminal.
type stdLogWriter struct{}

func (stdLogWriter) Write(p []byte) (int, error) {
	return log.Writer().Write(p)
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applyFlags(&cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Arena Reference Client")
	log.Println("======================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Discovery.Enabled {
		opts.browser = discovery.NewBrowser(cfg.DiscoveryConfig())
	}

	url := cfg.Server.URL
	if url == "" {
		if opts.browser == nil {
			log.Fatal("No server URL: set -url or enable -discover")
		}
		url, err = discoverServer(ctx, opts.browser, &cfg)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
	}
	log.Printf("Server: %s", url)

	svcConfig, err := cfg.Service(url)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	svcConfig.Logger = logger

	if cfg.Location.Track != "" {
		track, err := location.LoadTrack(cfg.Location.Track)
		if err != nil {
			log.Fatalf("Failed to load track: %v", err)
		}
		svcConfig.Location = location.NewReplay(track)
		log.Printf("Replaying track: %s (%d points)", cfg.Location.Track, len(track.Points))
	}

	var protocolLogger *arenalog.FileLogger
	if cfg.Logging.ProtocolLog != "" {
		protocolLogger, err = arenalog.NewFileLogger(cfg.Logging.ProtocolLog, arenalog.WithClient("arena-client"))
		if err != nil {
			log.Fatalf("Failed to create protocol logger: %v", err)
		}
		defer protocolLogger.Close()
		// Only assign when non-nil to avoid the typed-nil interface problem.
		if cfg.Logging.Debug {
			svcConfig.ProtocolLogger = arenalog.NewMultiLogger(protocolLogger, arenalog.NewSlogAdapter(logger))
		} else {
			svcConfig.ProtocolLogger = protocolLogger
		}
		log.Printf("Protocol logging to: %s", cfg.Logging.ProtocolLog)
	}
	if svcConfig.StorePath != "" {
		log.Printf("Zone database: %s", svcConfig.StorePath)
	}

	svc, err := service.NewPlayerService(svcConfig)
	if err != nil {
		log.Fatalf("Failed to create player service: %v", err)
	}
	if !opts.Interactive {
		// The console prints events itself.
		svc.OnEvent(handleEvent)
	}

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}
	log.Printf("Service started (state: %s, zones: %d)", svc.State(), svc.Status().Zones)

	if err := svc.Connect(ctx); err != nil {
		log.Printf("Warning: Failed to connect: %v", err)
	}

	// Run interactive mode or wait for signal
	if opts.Interactive {
		ic, err := interactive.New(svc, &opts)
		if err != nil {
			log.Fatalf("Failed to create interactive console: %v", err)
		}
		// Redirect log output through readline to avoid interfering with input
		log.SetOutput(ic.Stdout())
		go ic.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled (e.g., by interactive quit command)
	}

	log.Println("Shutting down...")
	cancel()
	if opts.browser != nil {
		opts.browser.Stop()
	}

	if err := svc.Stop(); err != nil {
		log.Printf("Error stopping service: %v", err)
	}
	if protocolLogger != nil {
		log.Printf("Protocol events written: %d (dropped: %d)", protocolLogger.Written(), protocolLogger.Dropped())
	}

	log.Println("Goodbye!")
}

// applyFlags overrides file values with the flags given on the command line.
func applyFlags(cfg *config.Config) error {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Server.URL = opts.URL
		case "game":
			cfg.Server.GameID = opts.Game
		case "player":
			cfg.Server.PlayerID = opts.Player
		case "token":
			cfg.Server.SessionToken = opts.Token
		case "codec":
			cfg.Server.Codec = opts.Codec
		case "policy":
			cfg.Sync.Policy = opts.Policy
		case "state-dir":
			cfg.Storage.StateDir = opts.StateDir
		case "track":
			cfg.Location.Track = opts.Track
		case "log-level":
			cfg.Logging.Level = opts.LogLevel
		case "protocol-log":
			cfg.Logging.ProtocolLog = opts.ProtocolLog
		case "discover":
			cfg.Discovery.Enabled = opts.Discover
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts.Game = cfg.Server.GameID
	return nil
}

func newLogger(l config.Logging) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(stdLogWriter{}, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(stdLogWriter{}, hopts)), nil
}

// discoverServer browses the LAN for the configured game. A server that
// advertises a codec overrides the configured one.
func discoverServer(ctx context.Context, b *discovery.Browser, cfg *config.Config) (string, error) {
	log.Printf("Browsing for arena servers (game: %s)...", orAny(cfg.Server.GameID))
	srv, err := b.Find(ctx, cfg.Server.GameID)
	if err != nil {
		return "", err
	}
	log.Printf("Found %s (%s:%d, %d players)", srv.Name, srv.Host, srv.Port, srv.Players)
	if srv.Codec != "" {
		cfg.Server.Codec = srv.Codec
	}
	if cfg.Server.GameID == "" {
		cfg.Server.GameID = srv.GameID
		opts.Game = srv.GameID
	}
	return srv.URL(), cfg.Validate()
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

func handleEvent(event service.Event) {
	switch event.Type {
	case service.EventConnected:
		log.Println("[EVENT] Connected")
	case service.EventDisconnected:
		log.Printf("[EVENT] Disconnected: %s", event.Message)
	case service.EventReconnecting:
		log.Printf("[EVENT] Reconnecting (attempt %d in %s)", event.Attempt, event.Delay.Round(time.Millisecond))
	case service.EventZoneChanged:
		log.Printf("[EVENT] Zone %s changed (%d cells)", event.ZoneID, len(event.Zone.Cells))
	case service.EventZoneStatus:
		log.Printf("[EVENT] Zone %s: %s -> %s", event.ZoneID, event.OldStatus, event.Status)
	case service.EventConflict:
		log.Printf("[EVENT] Conflict on zone %s resolved %s", event.ZoneID, event.Conflict.Resolution)
	case service.EventZoneEntered:
		log.Printf("[EVENT] Entered %s", event.Geofence.Cell)
	case service.EventZoneExited:
		log.Printf("[EVENT] Exited %s", event.Geofence.Cell)
	case service.EventProximity:
		for _, a := range event.Proximity {
			log.Printf("[EVENT] Near %s: %.0f m %s", a.Cell, a.Distance, a.Direction)
		}
	case service.EventLocationError:
		log.Printf("[EVENT] Location error: %v", event.Error)
	case service.EventChat:
		log.Printf("[CHAT] <%s> %s", event.PlayerID, event.Message)
	case service.EventServerError:
		log.Printf("[EVENT] Server error: %s", event.Message)
	case service.EventTransportError:
		if event.Fatal {
			log.Printf("[EVENT] Connection failed permanently: %v", event.Error)
		} else {
			log.Printf("[EVENT] Transport error: %v", event.Error)
		}
	}
}
