package zonesync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// Synchronizer defaults.
const (
	DefaultMaxPendingChanges  = 50
	DefaultSweepInterval      = 100 * time.Millisecond
	DefaultStaleAfter         = 5 * time.Second
	DefaultBatchSize          = 10
	DefaultMaxConflictHistory = 100
)

// Synchronizer errors.
var (
	ErrMissingZoneID = errors.New("zone id is required")
	ErrNoChange      = errors.New("change does not modify the zone")
	ErrEmptyUpdate   = errors.New("server update carries no zone, diffs or acks")
	ErrUnknownPolicy = errors.New("unknown conflict policy")
)

// Config configures a Synchronizer.
type Config struct {
	// Policy resolves conflicts between pending and server changes.
	Policy Policy

	// Optimistic applies local changes to the snapshot before the server
	// confirms them.
	Optimistic bool

	// MaxPendingChanges bounds the pending list per zone; the oldest entries
	// are trimmed past it.
	MaxPendingChanges int

	// SweepInterval is the period of the stale-change sweep.
	SweepInterval time.Duration

	// StaleAfter is the age after which a pending change is retransmitted.
	StaleAfter time.Duration

	// BatchSize is the number of diffs per outbound zone update.
	BatchSize int

	// MaxConflictHistory bounds the recorded conflict history.
	MaxConflictHistory int

	// Source tags outbound diffs.
	Source wire.DiffSource

	// Store persists authoritative snapshots and conflicts. Optional.
	Store Store

	// Debug enables verbose operational logging.
	Debug bool

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives sync capture events. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default synchronizer configuration:
// server-wins with optimistic updates.
func DefaultConfig() Config {
	cfg := Config{Optimistic: true}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MaxPendingChanges <= 0 {
		c.MaxPendingChanges = DefaultMaxPendingChanges
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConflictHistory <= 0 {
		c.MaxConflictHistory = DefaultMaxConflictHistory
	}
	if c.Source == "" {
		c.Source = wire.SourcePlayer
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Policy > PolicyMerge {
		return fmt.Errorf("%w: %d", ErrUnknownPolicy, c.Policy)
	}
	if c.Source != "" && !c.Source.IsValid() {
		return fmt.Errorf("invalid diff source %q", c.Source)
	}
	return nil
}
