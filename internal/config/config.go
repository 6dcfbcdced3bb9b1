// Package config loads the arena client configuration file.
//
// The file is YAML; every section is optional and missing values fall back
// to the component defaults:
//
//	server:
//	  url: wss://arena.example/ws
//	  game_id: g-42
//	  codec: cbor
//	  heartbeat_interval: 15s
//	sync:
//	  policy: merge
//	geofence:
//	  debounce: 750ms
//	  proximity_threshold: 150
//	storage:
//	  state_dir: ~/.zkarena
//	logging:
//	  level: debug
//	  protocol_log: /tmp/arena.cbor
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/discovery"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/geofence"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/service"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/transport"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete client configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Sync      Sync      `yaml:"sync"`
	Geofence  Geofence  `yaml:"geofence"`
	Location  Location  `yaml:"location"`
	Discovery Discovery `yaml:"discovery"`
	Storage   Storage   `yaml:"storage"`
	Logging   Logging   `yaml:"logging"`
}

// Server configures the transport channel.
type Server struct {
	URL                  string        `yaml:"url"`
	PlayerID             string        `yaml:"player_id"`
	GameID               string        `yaml:"game_id"`
	SessionToken         string        `yaml:"session_token"`
	Codec                string        `yaml:"codec"`
	SubProtocols         []string      `yaml:"sub_protocols"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	BackoffFactor        float64       `yaml:"backoff_factor"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	MaxRetries           int           `yaml:"max_retries"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	SendRateLimit        float64       `yaml:"send_rate_limit"`
	SendBurst            int           `yaml:"send_burst"`
	DedupWindow          int           `yaml:"dedup_window"`
	// ReportPosition sends player_move for every fix while connected.
	ReportPosition *bool `yaml:"report_position"`
}

// Sync configures the zone synchronizer.
type Sync struct {
	Policy             string        `yaml:"policy"`
	Optimistic         *bool         `yaml:"optimistic"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	BatchSize          int           `yaml:"batch_size"`
	MaxPendingChanges  int           `yaml:"max_pending_changes"`
	MaxConflictHistory int           `yaml:"max_conflict_history"`
	Source             string        `yaml:"source"`
}

// Geofence configures the geofence monitor.
type Geofence struct {
	ProximityThreshold float64       `yaml:"proximity_threshold"`
	Debounce           time.Duration `yaml:"debounce"`
	RefractoryWindow   time.Duration `yaml:"refractory_window"`
	EnableProximity    *bool         `yaml:"enable_proximity"`
	EnableHaptic       bool          `yaml:"enable_haptic"`
	Resolution         int           `yaml:"resolution"`
	ProximityRadius    int           `yaml:"proximity_radius"`
}

// Location selects the position source.
type Location struct {
	// Track is a recorded track file replayed as the position source.
	// Empty means positions are entered on the console.
	Track string `yaml:"track"`
}

// Discovery configures LAN server discovery, used when no URL is set.
type Discovery struct {
	Enabled   bool          `yaml:"enabled"`
	Interface string        `yaml:"interface"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Storage configures local persistence.
type Storage struct {
	// StateDir holds the zone database. Empty disables persistence.
	StateDir string `yaml:"state_dir"`
}

// Logging configures operational logging and protocol capture.
type Logging struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Debug       bool   `yaml:"debug"`
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Server: Server{
			Codec: wire.JSON.Name(),
		},
		Sync: Sync{
			Policy: zonesync.PolicyServerWins.String(),
		},
		Discovery: Discovery{
			Timeout: discovery.BrowseTimeout,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document omits.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server.Codec != "" {
		if _, err := wire.CodecByName(c.Server.Codec); err != nil {
			return fmt.Errorf("%w: server.codec: %v", ErrInvalid, err)
		}
	}
	if _, err := zonesync.ParsePolicy(c.Sync.Policy); err != nil {
		return fmt.Errorf("%w: sync.policy: %v", ErrInvalid, err)
	}
	if c.Sync.Source != "" && !wire.DiffSource(c.Sync.Source).IsValid() {
		return fmt.Errorf("%w: sync.source %q", ErrInvalid, c.Sync.Source)
	}
	if c.Geofence.Resolution < 0 || c.Geofence.Resolution > 15 {
		return fmt.Errorf("%w: geofence.resolution %d out of range", ErrInvalid, c.Geofence.Resolution)
	}
	if c.Geofence.ProximityThreshold < 0 {
		return fmt.Errorf("%w: geofence.proximity_threshold must not be negative", ErrInvalid)
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q (use text or json)", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// SlogLevel maps the configured level name.
func (l Logging) SlogLevel() (slog.Level, error) {
	var level slog.Level
	name := l.Level
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	return level, nil
}

// Transport returns the channel configuration for url. Defaults are applied
// by transport.New.
func (c *Config) Transport(url string) transport.Config {
	s := c.Server
	return transport.Config{
		URL:                  url,
		SubProtocols:         s.SubProtocols,
		HeartbeatInterval:    s.HeartbeatInterval,
		ReconnectInterval:    s.ReconnectInterval,
		MaxReconnectInterval: s.MaxReconnectInterval,
		BackoffFactor:        s.BackoffFactor,
		MaxReconnectAttempts: s.MaxReconnectAttempts,
		QueueCapacity:        s.QueueCapacity,
		MaxRetries:           s.MaxRetries,
		ConnectTimeout:       s.ConnectTimeout,
		Debug:                c.Logging.Debug,
		PlayerID:             s.PlayerID,
		GameID:               s.GameID,
		Codec:                s.Codec,
		SendRateLimit:        s.SendRateLimit,
		SendBurst:            s.SendBurst,
		DedupWindow:          s.DedupWindow,
	}
}

// Synchronizer returns the zone synchronizer configuration.
func (c *Config) Synchronizer() (zonesync.Config, error) {
	policy, err := zonesync.ParsePolicy(c.Sync.Policy)
	if err != nil {
		return zonesync.Config{}, err
	}
	optimistic := true
	if c.Sync.Optimistic != nil {
		optimistic = *c.Sync.Optimistic
	}
	return zonesync.Config{
		Policy:             policy,
		Optimistic:         optimistic,
		MaxPendingChanges:  c.Sync.MaxPendingChanges,
		SweepInterval:      c.Sync.SweepInterval,
		StaleAfter:         c.Sync.StaleAfter,
		BatchSize:          c.Sync.BatchSize,
		MaxConflictHistory: c.Sync.MaxConflictHistory,
		Source:             wire.DiffSource(c.Sync.Source),
		Debug:              c.Logging.Debug,
	}, nil
}

// GeofenceConfig returns the monitor configuration on top of its defaults.
func (c *Config) GeofenceConfig() geofence.Config {
	cfg := geofence.DefaultConfig()
	g := c.Geofence
	if g.ProximityThreshold > 0 {
		cfg.ProximityThreshold = g.ProximityThreshold
	}
	if g.Debounce > 0 {
		cfg.DebounceDuration = g.Debounce
		cfg.RefractoryWindow = 0
	}
	if g.RefractoryWindow > 0 {
		cfg.RefractoryWindow = g.RefractoryWindow
	}
	if g.EnableProximity != nil {
		cfg.EnableProximity = *g.EnableProximity
	}
	cfg.EnableHaptic = g.EnableHaptic
	if g.Resolution > 0 {
		cfg.Resolution = g.Resolution
	}
	if g.ProximityRadius > 0 {
		cfg.ProximityRadius = g.ProximityRadius
	}
	cfg.Debug = c.Logging.Debug
	return cfg
}

// Service returns the player service configuration for url. Loggers and
// position sources are left to the caller.
func (c *Config) Service(url string) (service.Config, error) {
	sc, err := c.Synchronizer()
	if err != nil {
		return service.Config{}, err
	}
	cfg := service.DefaultConfig(url)
	cfg.Transport = c.Transport(url)
	cfg.Sync = sc
	cfg.Geofence = c.GeofenceConfig()
	cfg.StorePath = c.ZoneDBPath()
	cfg.SessionID = c.Server.SessionToken
	cfg.Debug = c.Logging.Debug
	if c.Server.ReportPosition != nil {
		cfg.ReportPosition = *c.Server.ReportPosition
	}
	return cfg, nil
}

// DiscoveryConfig returns the browser configuration.
func (c *Config) DiscoveryConfig() discovery.BrowserConfig {
	cfg := discovery.DefaultBrowserConfig()
	cfg.Interface = c.Discovery.Interface
	if c.Discovery.Timeout > 0 {
		cfg.BrowseTimeout = c.Discovery.Timeout
	}
	return cfg
}

// ZoneDBPath returns the zone database path, or "" when persistence is off.
func (c *Config) ZoneDBPath() string {
	if c.Storage.StateDir == "" {
		return ""
	}
	return filepath.Join(expandHome(c.Storage.StateDir), "zones.db")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
