package geofence

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
)

// Monitor defaults.
const (
	DefaultProximityThreshold = 100.0 // meters
	DefaultDebounceDuration   = time.Second
	DefaultResolution         = 9
	DefaultProximityRadius    = 2
)

// Monitor errors.
var (
	ErrNoSpatialProvider = errors.New("spatial provider is required")
	ErrInvalidConfig     = errors.New("invalid geofence config")
)

// Haptic patterns played for settled events.
var (
	EnterPattern = []time.Duration{200 * time.Millisecond}
	ExitPattern  = []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}
)

// Haptics plays vibration patterns: alternating on and off durations
// starting with on.
type Haptics interface {
	Vibrate(pattern []time.Duration)
}

// Config configures a Monitor.
type Config struct {
	// ProximityThreshold is the distance in meters within which nearby
	// active cells are reported.
	ProximityThreshold float64

	// DebounceDuration is how long a candidate event must hold before it
	// settles.
	DebounceDuration time.Duration

	// RefractoryWindow suppresses repeat events for a key after it
	// settles. Defaults to twice DebounceDuration.
	RefractoryWindow time.Duration

	// EnableProximity turns on proximity reporting.
	EnableProximity bool

	// EnableHaptic plays Haptics patterns for settled events.
	EnableHaptic bool

	// Haptics receives vibration requests when EnableHaptic is set.
	Haptics Haptics

	// Resolution is the spatial index resolution positions are classified at.
	Resolution int

	// ProximityRadius is the number of grid hops searched for nearby cells.
	ProximityRadius int

	// Debug enables verbose operational logging.
	Debug bool

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives membership capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default monitor configuration with proximity
// enabled.
func DefaultConfig() Config {
	cfg := Config{EnableProximity: true}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ProximityThreshold <= 0 {
		c.ProximityThreshold = DefaultProximityThreshold
	}
	if c.DebounceDuration <= 0 {
		c.DebounceDuration = DefaultDebounceDuration
	}
	if c.RefractoryWindow <= 0 {
		c.RefractoryWindow = 2 * c.DebounceDuration
	}
	if c.Resolution <= 0 {
		c.Resolution = DefaultResolution
	}
	if c.ProximityRadius <= 0 {
		c.ProximityRadius = DefaultProximityRadius
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Resolution > 15 {
		return fmt.Errorf("%w: resolution %d out of range", ErrInvalidConfig, c.Resolution)
	}
	if c.RefractoryWindow < c.DebounceDuration {
		return fmt.Errorf("%w: refractory window %v shorter than debounce %v",
			ErrInvalidConfig, c.RefractoryWindow, c.DebounceDuration)
	}
	if c.EnableHaptic && c.Haptics == nil {
		return fmt.Errorf("%w: haptics enabled without a Haptics implementation", ErrInvalidConfig)
	}
	return nil
}
