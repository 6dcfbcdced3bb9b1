package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/geofence"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/location"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial/h3grid"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/transport"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonestore"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

// PlayerService orchestrates one player's arena session.
type PlayerService struct {
	mu sync.RWMutex

	config Config
	state  ServiceState
	logger *slog.Logger

	channel *transport.Channel
	sync    *zonesync.Synchronizer
	monitor *geofence.Monitor
	store   *zonestore.Store

	// offs removes the channel bindings installed by Start.
	offs []func()

	// Event handlers
	eventHandlers []EventHandler
}

// NewPlayerService creates the components described by config. The
// service does not touch the network until Connect.
func NewPlayerService(config Config) (*PlayerService, error) {
	config.inherit()

	channel, err := transport.New(config.Transport, config.TransportOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var store *zonestore.Store
	if config.StorePath != "" {
		store, err = zonestore.Open(config.StorePath)
		if err != nil {
			return nil, err
		}
		config.Sync.Store = store
	}

	syncer, err := zonesync.New(channel, config.Sync)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	sp := config.Spatial
	if sp == nil {
		sp = h3grid.New()
	}
	monitor, err := geofence.New(sp, config.Location, config.Geofence)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s := &PlayerService{
		config:  config,
		state:   StateIdle,
		logger:  config.Logger,
		channel: channel,
		sync:    syncer,
		monitor: monitor,
		store:   store,
	}

	syncer.OnZoneChange(s.handleZoneChange)
	syncer.OnStatusChange(func(zoneID string, old, new zonesync.SyncStatus) {
		s.emitEvent(Event{Type: EventZoneStatus, ZoneID: zoneID, OldStatus: old, Status: new})
	})
	syncer.OnConflict(func(c zonesync.ZoneConflict) {
		s.emitEvent(Event{Type: EventConflict, ZoneID: c.ZoneID, Conflict: &c})
	})

	monitor.OnEnter(func(ev geofence.ZoneEvent) {
		s.emitEvent(Event{Type: EventZoneEntered, Geofence: &ev})
	})
	monitor.OnExit(func(ev geofence.ZoneEvent) {
		s.emitEvent(Event{Type: EventZoneExited, Geofence: &ev})
	})
	monitor.OnProximity(func(alerts []geofence.ProximityAlert) {
		s.emitEvent(Event{Type: EventProximity, Proximity: alerts})
	})
	monitor.OnError(func(err error) {
		s.emitEvent(Event{Type: EventLocationError, Error: err})
	})
	monitor.OnPosition(s.reportPosition)

	return s, nil
}

func closeStore(store *zonestore.Store) {
	if store != nil {
		_ = store.Close()
	}
}

// State returns the current service state.
func (s *PlayerService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Channel returns the transport channel.
func (s *PlayerService) Channel() *transport.Channel {
	return s.channel
}

// Synchronizer returns the zone synchronizer.
func (s *PlayerService) Synchronizer() *zonesync.Synchronizer {
	return s.sync
}

// Monitor returns the geofence monitor.
func (s *PlayerService) Monitor() *geofence.Monitor {
	return s.monitor
}

// OnEvent registers an event handler.
func (s *PlayerService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Start restores persisted zones, binds the synchronizer to the channel
// and starts the sweep and the geofence monitor.
func (s *PlayerService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if s.store != nil {
		if _, err := s.sync.Restore(); err != nil {
			s.logger.Warn("zone restore failed", "path", s.store.Path(), "error", err)
		}
	}

	offs := []func(){
		s.sync.Bind(s.channel),
		s.channel.On(transport.EventConnect, func(transport.Event) {
			s.emitEvent(Event{Type: EventConnected})
		}),
		s.channel.On(transport.EventReconnected, func(transport.Event) {
			s.emitEvent(Event{Type: EventConnected})
		}),
		s.channel.On(transport.EventDisconnect, func(e transport.Event) {
			s.emitEvent(Event{Type: EventDisconnected, Message: e.Reason, Error: e.Err})
		}),
		s.channel.On(transport.EventReconnecting, func(e transport.Event) {
			s.emitEvent(Event{Type: EventReconnecting, Attempt: e.Attempt, Delay: e.Delay})
		}),
		s.channel.On(transport.EventError, s.handleTransportError),
		s.channel.Handle(wire.TypeChatMessage, s.handleChat),
		s.channel.Handle(wire.TypeSystemAnnouncement, s.handleChat),
		s.channel.Handle(wire.TypeError, s.handleServerError),
	}

	s.sync.Start(ctx)
	if err := s.monitor.StartMonitoring(ctx, s.activeCells()); err != nil {
		s.sync.Stop()
		for _, off := range offs {
			off()
		}
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.offs = offs
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

// Stop disconnects and stops every component. The zone database is
// closed; a stopped service with persistence cannot be restarted.
func (s *PlayerService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	s.monitor.StopMonitoring()
	s.channel.Disconnect()
	s.sync.Stop()
	for _, off := range offs {
		off()
	}

	var err error
	if s.store != nil {
		err = s.store.Close()
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	return err
}

// Connect opens the channel with the configured session token.
func (s *PlayerService) Connect(ctx context.Context) error {
	if s.State() != StateRunning {
		return ErrNotStarted
	}
	return s.channel.Connect(ctx, s.config.SessionID)
}

// Disconnect closes the channel. Zones move to disconnected.
func (s *PlayerService) Disconnect() {
	s.channel.Disconnect()
}

// Move feeds a manual position to the monitor.
func (s *PlayerService) Move(p spatial.LatLng) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !s.monitor.IsMonitoring() {
		return ErrNotStarted
	}
	s.monitor.HandlePosition(location.Position{LatLng: p})
	return nil
}

// SendChat sends a chat message. It is queued while disconnected.
func (s *PlayerService) SendChat(text string) (string, error) {
	if text == "" {
		return "", ErrEmptyMessage
	}
	return s.channel.Send(wire.TypeChatMessage, wire.ChatMessage{Message: text})
}

// RequestSync asks the server for full snapshots of zoneIDs, or of every
// known zone when none are given.
func (s *PlayerService) RequestSync(zoneIDs ...string) (string, error) {
	if len(zoneIDs) == 0 {
		zoneIDs = s.sync.ZoneIDs()
	}
	return s.channel.Send(wire.TypeGameStateSync, wire.GameStateSyncRequest{ZoneIDs: zoneIDs})
}

// Status returns a snapshot of the service.
func (s *PlayerService) Status() Status {
	st := Status{
		State:      s.State(),
		Connection: s.channel.Status(),
		PlayerID:   s.channel.PlayerID(),
		Queued:     s.channel.QueueLen(),
		Monitoring: s.monitor.IsMonitoring(),
	}
	ids := s.sync.ZoneIDs()
	st.Zones = len(ids)
	for _, id := range ids {
		if snap, ok := s.sync.Snapshot(id); ok {
			st.Pending += len(snap.PendingChanges)
		}
	}
	if cur := s.monitor.State().CurrentZone; cur != nil {
		st.CurrentCell = cur.Cell
	}
	return st
}

// activeCells returns the union of the cells of every known zone.
func (s *PlayerService) activeCells() []string {
	set := make(map[string]struct{})
	for _, id := range s.sync.ZoneIDs() {
		if z := s.sync.Zone(id); z != nil {
			for _, c := range z.Cells {
				set[c] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func (s *PlayerService) handleZoneChange(z *wire.Zone) {
	cells := s.activeCells()
	s.monitor.UpdateActiveZones(cells)
	s.debugLog("watched cells updated", "zone", z.ID, "cells", len(cells))
	s.emitEvent(Event{Type: EventZoneChanged, ZoneID: z.ID, Zone: z})
}

// reportPosition sends a player_move for fix. Moves are not queued: a
// stale position is worthless after reconnecting.
func (s *PlayerService) reportPosition(fix geofence.PositionFix) {
	if !s.config.ReportPosition || !s.channel.IsConnected() {
		return
	}
	move := wire.PlayerMove{
		Lat:       fix.Position.Lat,
		Lng:       fix.Position.Lng,
		Accuracy:  fix.Position.Accuracy,
		Cell:      fix.Cell,
		Timestamp: wire.Millis(fix.Position.Timestamp),
	}
	if _, err := s.channel.Send(wire.TypePlayerMove, move); err != nil {
		s.debugLog("player move not sent", "error", err)
	}
}

func (s *PlayerService) handleChat(msg *wire.Message) {
	var chat wire.ChatMessage
	if err := msg.DecodeData(&chat); err != nil {
		s.logger.Warn("dropping malformed chat message", "id", msg.MessageID, "error", err)
		return
	}
	s.emitEvent(Event{Type: EventChat, PlayerID: msg.PlayerID, Message: chat.Message})
}

func (s *PlayerService) handleServerError(msg *wire.Message) {
	var p wire.ErrorPayload
	if err := msg.DecodeData(&p); err != nil {
		s.logger.Warn("dropping malformed error message", "id", msg.MessageID, "error", err)
		return
	}
	s.logger.Warn("server error", "code", p.Code, "message", p.Message)
	s.emitEvent(Event{Type: EventServerError, Message: p.Message})
}

func (s *PlayerService) handleTransportError(e transport.Event) {
	fatal := e.State == connection.StateError
	if fatal {
		s.logger.Error("transport failed", "error", e.Err)
	}
	s.emitEvent(Event{Type: EventTransportError, Message: e.Reason, Error: e.Err, Fatal: fatal})
}

func (s *PlayerService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := slices.Clone(s.eventHandlers)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// debugLog logs a debug message if debug logging is enabled.
func (s *PlayerService) debugLog(msg string, args ...any) {
	if s.config.Debug {
		s.logger.Debug(msg, args...)
	}
}
