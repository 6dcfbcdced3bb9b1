package service

import (
	"log/slog"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/geofence"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/location"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/transport"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

// Config configures a PlayerService.
type Config struct {
	// Transport configures the channel. Logger and ProtocolLogger are
	// inherited from this config when unset.
	Transport transport.Config

	// TransportOptions are passed to transport.New.
	TransportOptions []transport.Option

	// Sync configures the zone synchronizer. Store is replaced when
	// StorePath is set.
	Sync zonesync.Config

	// Geofence configures the monitor.
	Geofence geofence.Config

	// StorePath is the zone database file. Empty disables persistence.
	StorePath string

	// Spatial is the spatial index. Nil uses H3.
	Spatial spatial.Provider

	// Location is the position source. Nil means positions are fed
	// through Move.
	Location location.Provider

	// SessionID is the session token passed on connect.
	SessionID string

	// ReportPosition sends a player_move for every classified fix while
	// connected.
	ReportPosition bool

	// Debug enables verbose service logging, independent of the
	// component Debug switches.
	Debug bool

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives capture events from every component.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a configuration for the server at url with the
// component defaults.
func DefaultConfig(url string) Config {
	return Config{
		Transport:      transport.DefaultConfig(url),
		Sync:           zonesync.DefaultConfig(),
		Geofence:       geofence.DefaultConfig(),
		ReportPosition: true,
	}
}

// inherit fills in the component loggers from the service config.
func (c *Config) inherit() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Transport.Logger == nil {
		c.Transport.Logger = c.Logger.With("component", "transport")
	}
	if c.Sync.Logger == nil {
		c.Sync.Logger = c.Logger.With("component", "zonesync")
	}
	if c.Geofence.Logger == nil {
		c.Geofence.Logger = c.Logger.With("component", "geofence")
	}
	if c.ProtocolLogger != nil {
		if c.Transport.ProtocolLogger == nil {
			c.Transport.ProtocolLogger = c.ProtocolLogger
		}
		if c.Sync.ProtocolLogger == nil {
			c.Sync.ProtocolLogger = c.ProtocolLogger
		}
		if c.Geofence.ProtocolLogger == nil {
			c.Geofence.ProtocolLogger = c.ProtocolLogger
		}
	}
}
