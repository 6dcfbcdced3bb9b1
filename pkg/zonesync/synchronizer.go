package zonesync

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/transport"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// Transport sends zone messages to the server.
type Transport interface {
	Send(typ wire.MessageType, payload any) (string, error)
	Latency() time.Duration
}

// EventSource delivers transport lifecycle events and inbound messages.
type EventSource interface {
	On(t transport.EventType, l transport.Listener) func()
	Handle(t wire.MessageType, h transport.Handler) func()
}

// Compile-time interface satisfaction checks.
var (
	_ Transport   = (*transport.Channel)(nil)
	_ EventSource = (*transport.Channel)(nil)
)

type outbound struct {
	typ     wire.MessageType
	payload any
}

type statusChange struct {
	zoneID   string
	old, new SyncStatus
}

// effects collects the work produced under the lock. It runs once the lock
// is released so callbacks and I/O never hold it.
type effects struct {
	sends     []outbound
	statuses  []statusChange
	conflicts []ZoneConflict
	zones     []*wire.Zone
	saves     []*wire.Zone
}

// Synchronizer owns the sync state of every zone it has seen.
type Synchronizer struct {
	mu sync.Mutex

	cfg       Config
	transport Transport
	logger    *slog.Logger
	plog      log.Logger

	zones     map[string]*zoneState
	conflicts []ZoneConflict

	// Callbacks
	onStatusChange func(zoneID string, old, new SyncStatus)
	onConflict     func(ZoneConflict)
	onZoneChange   func(*wire.Zone)

	running bool
	stopCh  chan struct{}

	now func() time.Time
}

// New creates a synchronizer sending through t. A nil transport keeps all
// changes local.
func New(t Transport, cfg Config) (*Synchronizer, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Synchronizer{
		cfg:       cfg,
		transport: t,
		logger:    logger,
		plog:      log.OrNoop(cfg.ProtocolLogger),
		zones:     make(map[string]*zoneState),
		now:       time.Now,
	}, nil
}

// OnStatusChange sets the callback for zone status transitions.
func (s *Synchronizer) OnStatusChange(cb func(zoneID string, old, new SyncStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatusChange = cb
}

// OnConflict sets the callback for recorded conflicts.
func (s *Synchronizer) OnConflict(cb func(ZoneConflict)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConflict = cb
}

// OnZoneChange sets the callback invoked with the new snapshot whenever a
// zone's current geometry changes.
func (s *Synchronizer) OnZoneChange(cb func(*wire.Zone)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onZoneChange = cb
}

// InitializeZone registers zone as server-authoritative and synced,
// replacing any earlier state for its id.
func (s *Synchronizer) InitializeZone(zone *wire.Zone) error {
	if zone == nil || zone.ID == "" {
		return ErrMissingZoneID
	}
	var fx effects

	s.mu.Lock()
	prev := StatusSynced
	if old, ok := s.zones[zone.ID]; ok {
		prev = old.SyncStatus
	}
	st := newZoneState(zone)
	st.LastSyncTime = s.now()
	s.zones[zone.ID] = st
	if prev != StatusSynced {
		fx.statuses = append(fx.statuses, statusChange{zoneID: zone.ID, old: prev, new: StatusSynced})
	}
	fx.zones = append(fx.zones, st.CurrentZone.Clone())
	fx.saves = append(fx.saves, st.base.Clone())
	s.capture(st, log.CategoryState, "initialize", nil, "")
	s.mu.Unlock()

	s.run(fx)
	return nil
}

// ApplyLocalChange turns change into a diff against the current snapshot,
// records it as pending and transmits it. It returns the diff.
func (s *Synchronizer) ApplyLocalChange(zoneID string, change Change) (wire.ZoneDiff, error) {
	if zoneID == "" {
		return wire.ZoneDiff{}, ErrMissingZoneID
	}
	latency := s.latency()
	var fx effects

	s.mu.Lock()
	now := s.now()
	st := s.stateLocked(zoneID)
	after := change.Apply(st.CurrentZone)
	diff := Diff(st.CurrentZone, after)
	if diff.IsEmpty() {
		s.mu.Unlock()
		return diff, ErrNoChange
	}
	diff.Source = s.cfg.Source
	diff.Timestamp = st.nextTimestamp(wire.Millis(now.Add(-latency / 2)))

	if s.cfg.Optimistic {
		st.CurrentZone = after
		fx.zones = append(fx.zones, after.Clone())
	}
	st.PendingChanges = append(st.PendingChanges, PendingChange{Diff: diff, SentAt: now})
	if over := len(st.PendingChanges) - s.cfg.MaxPendingChanges; over > 0 {
		s.logger.Warn("pending changes over limit, trimming oldest",
			"zone", zoneID, "dropped", over, "limit", s.cfg.MaxPendingChanges)
		st.PendingChanges = slices.Delete(st.PendingChanges, 0, over)
	}

	if st.SyncStatus != StatusDisconnected {
		s.setStatusLocked(st, StatusSyncing, &fx)
		s.queueSendLocked(st.id, []wire.ZoneDiff{diff.Clone()}, now, &fx)
	}
	s.capture(st, log.CategoryMessage, "local_change", &diff, "")
	s.mu.Unlock()

	s.run(fx)
	return diff.Clone(), nil
}

// HandleServerUpdate reconciles an authoritative server update with the
// local state of the zone.
func (s *Synchronizer) HandleServerUpdate(update wire.ZoneUpdate) error {
	if update.ZoneID == "" {
		return ErrMissingZoneID
	}
	if update.Zone == nil && len(update.Diffs) == 0 && len(update.AckDiffs) == 0 {
		return ErrEmptyUpdate
	}
	var fx effects

	s.mu.Lock()
	now := s.now()
	st := s.stateLocked(update.ZoneID)

	if update.Zone != nil && update.Zone.Version > 0 && update.Zone.Version < st.base.Version {
		s.debugLog("ignoring stale server snapshot",
			"zone", st.id, "version", update.Zone.Version, "have", st.base.Version)
		s.mu.Unlock()
		return nil
	}

	// Accepted local diffs become part of the authoritative base.
	for _, d := range st.removeAcked(update.AckDiffs) {
		if update.Zone == nil {
			st.base = Apply(st.base, d)
		}
	}

	post := serverSnapshot(st.base, update)
	serverDiff := serverChange(st.base, update)
	st.LastServerUpdate = now
	st.awaitingResync = false
	s.capture(st, log.CategoryMessage, "server_update", &serverDiff, "")

	if len(st.PendingChanges) == 0 {
		s.adoptLocked(st, post, now, &fx)
		s.mu.Unlock()
		s.run(fx)
		return nil
	}

	var conflicting []int
	for i, p := range st.PendingChanges {
		if Conflicts(p.Diff, serverDiff) {
			conflicting = append(conflicting, i)
		}
	}
	if len(conflicting) == 0 {
		s.rebaseLocked(st, post, now, &fx)
		s.mu.Unlock()
		s.run(fx)
		return nil
	}

	s.resolveLocked(st, post, serverDiff, conflicting, now, &fx)
	s.mu.Unlock()
	s.run(fx)
	return nil
}

// rebaseLocked installs a non-conflicting server snapshot under the pending
// diffs. Pending diffs the server snapshot already reflects are dropped.
func (s *Synchronizer) rebaseLocked(st *zoneState, post *wire.Zone, now time.Time, fx *effects) {
	st.PendingChanges = slices.DeleteFunc(st.PendingChanges, func(p PendingChange) bool {
		return Apply(post, p.Diff).Equal(post)
	})
	if len(st.PendingChanges) == 0 {
		s.adoptLocked(st, post, now, fx)
		return
	}
	st.base = post.Clone()
	st.rebase(s.cfg.Optimistic)
	st.LastSyncTime = now
	fx.zones = append(fx.zones, st.CurrentZone.Clone())
	fx.saves = append(fx.saves, st.base.Clone())
}

// resolveLocked applies the conflict policy.
func (s *Synchronizer) resolveLocked(st *zoneState, post *wire.Zone, serverDiff wire.ZoneDiff, conflicting []int, now time.Time, fx *effects) {
	s.setStatusLocked(st, StatusConflict, fx)
	resolution := s.cfg.Policy.Resolution()
	st.ConflictCount += len(conflicting)
	for _, i := range conflicting {
		s.recordConflictLocked(ZoneConflict{
			ZoneID:       st.id,
			LocalChange:  st.PendingChanges[i].Diff.Clone(),
			ServerChange: serverDiff.Clone(),
			Resolution:   resolution,
			Timestamp:    now,
		}, fx)
	}
	s.logger.Info("zone conflict resolved",
		"zone", st.id, "conflicts", len(conflicting), "policy", s.cfg.Policy)

	switch s.cfg.Policy {
	case PolicyClientWins:
		st.base = post.Clone()
		st.rebase(s.cfg.Optimistic)
		st.LastSyncTime = now
		s.retransmitLocked(st, now, fx, func(int, PendingChange) bool { return true })
		s.setStatusLocked(st, StatusSyncing, fx)
		fx.zones = append(fx.zones, st.CurrentZone.Clone())
		fx.saves = append(fx.saves, st.base.Clone())

	case PolicyMerge:
		kept := st.PendingChanges[:0]
		changed := make(map[int64]bool)
		for i, p := range st.PendingChanges {
			if slices.Contains(conflicting, i) {
				p.Diff = Strip(p.Diff, serverDiff)
				if p.Diff.IsEmpty() {
					continue
				}
				changed[p.Diff.Timestamp] = true
			}
			kept = append(kept, p)
		}
		st.PendingChanges = kept
		if len(kept) == 0 {
			s.adoptLocked(st, post, now, fx)
			break
		}
		st.base = post.Clone()
		st.rebase(s.cfg.Optimistic)
		st.LastSyncTime = now
		s.retransmitLocked(st, now, fx, func(_ int, p PendingChange) bool { return changed[p.Diff.Timestamp] })
		s.setStatusLocked(st, StatusSyncing, fx)
		fx.zones = append(fx.zones, st.CurrentZone.Clone())
		fx.saves = append(fx.saves, st.base.Clone())

	default:
		s.adoptLocked(st, post, now, fx)
	}
	s.capture(st, log.CategoryConflict, "resolve", &serverDiff, resolution)
}

// HandleDisconnect moves every zone to disconnected.
func (s *Synchronizer) HandleDisconnect() {
	var fx effects
	s.mu.Lock()
	for _, id := range s.sortedIDsLocked() {
		st := s.zones[id]
		st.awaitingResync = false
		s.setStatusLocked(st, StatusDisconnected, &fx)
	}
	s.mu.Unlock()
	s.run(fx)
}

// HandleReconnect moves disconnected zones to syncing, requests a full
// snapshot for them and retransmits their pending changes.
func (s *Synchronizer) HandleReconnect() {
	var fx effects

	s.mu.Lock()
	now := s.now()
	var resync []*zoneState
	for _, id := range s.sortedIDsLocked() {
		if st := s.zones[id]; st.SyncStatus == StatusDisconnected {
			resync = append(resync, st)
		}
	}
	if len(resync) > 0 {
		ids := make([]string, len(resync))
		for i, st := range resync {
			ids[i] = st.id
			st.awaitingResync = true
			st.resyncRequested = now
			s.setStatusLocked(st, StatusSyncing, &fx)
		}
		fx.sends = append(fx.sends, syncRequest(ids))
		for _, st := range resync {
			s.retransmitLocked(st, now, &fx, func(int, PendingChange) bool { return true })
			s.capture(st, log.CategoryState, "resync", nil, "")
		}
		s.logger.Info("re-syncing zones after reconnect", "zones", ids)
	}
	s.mu.Unlock()

	s.run(fx)
}

// Start runs the periodic sweep until ctx ends or Stop is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	interval := s.cfg.SweepInterval
	s.mu.Unlock()

	go s.loop(ctx, stopCh, interval)
}

// Stop ends the periodic sweep.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// IsRunning returns true while the sweep is active.
func (s *Synchronizer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Synchronizer) loop(ctx context.Context, stopCh chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.sweep(s.now())
		}
	}
}

// sweep retransmits stale pending changes, repeats unanswered re-sync
// requests and settles zones whose pending list has drained.
func (s *Synchronizer) sweep(now time.Time) {
	var fx effects

	s.mu.Lock()
	var resync []string
	for _, id := range s.sortedIDsLocked() {
		st := s.zones[id]
		if st.SyncStatus == StatusDisconnected {
			continue
		}
		n := s.retransmitLocked(st, now, &fx, func(_ int, p PendingChange) bool {
			return now.Sub(p.SentAt) >= s.cfg.StaleAfter
		})
		if n > 0 {
			s.debugLog("retransmitted stale changes", "zone", id, "count", n)
			s.capture(st, log.CategoryMessage, "retransmit", nil, "")
		}
		if st.awaitingResync && now.Sub(st.resyncRequested) >= s.cfg.StaleAfter {
			st.resyncRequested = now
			resync = append(resync, id)
		}
		if len(st.PendingChanges) == 0 && !st.awaitingResync && st.SyncStatus == StatusSyncing {
			st.LastSyncTime = now
			s.setStatusLocked(st, StatusSynced, &fx)
		}
	}
	if len(resync) > 0 {
		fx.sends = append(fx.sends, syncRequest(resync))
	}
	s.mu.Unlock()

	s.run(fx)
}

// Snapshot returns a copy of the sync state of a zone.
func (s *Synchronizer) Snapshot(zoneID string) (ZoneSyncState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.zones[zoneID]
	if !ok {
		return ZoneSyncState{}, false
	}
	return st.snapshot(), true
}

// Zone returns a copy of the current snapshot of a zone, or nil.
func (s *Synchronizer) Zone(zoneID string) *wire.Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.zones[zoneID]; ok {
		return st.CurrentZone.Clone()
	}
	return nil
}

// ZoneIDs returns the known zone ids in sorted order.
func (s *Synchronizer) ZoneIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedIDsLocked()
}

// Conflicts returns the recorded conflict history, oldest first.
func (s *Synchronizer) Conflicts() []ZoneConflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.conflicts)
}

// PruneConflicts removes conflicts recorded before t and returns how many
// were removed.
func (s *Synchronizer) PruneConflicts(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conflicts)
	s.conflicts = slices.DeleteFunc(s.conflicts, func(c ZoneConflict) bool {
		return c.Timestamp.Before(before)
	})
	return n - len(s.conflicts)
}

// Restore loads stored snapshots for zones not yet known and returns how
// many were restored.
func (s *Synchronizer) Restore() (int, error) {
	if s.cfg.Store == nil {
		return 0, nil
	}
	zones, err := s.cfg.Store.LoadZones()
	if err != nil {
		return 0, fmt.Errorf("failed to restore zones: %w", err)
	}

	var fx effects
	s.mu.Lock()
	n := 0
	for _, z := range zones {
		if z == nil || z.ID == "" {
			continue
		}
		if _, ok := s.zones[z.ID]; ok {
			continue
		}
		st := newZoneState(z)
		st.LastSyncTime = s.now()
		s.zones[z.ID] = st
		fx.zones = append(fx.zones, st.CurrentZone.Clone())
		n++
	}
	s.mu.Unlock()

	s.run(fx)
	s.logger.Info("restored zones", "count", n)
	return n, nil
}

// Bind subscribes the synchronizer to a transport's lifecycle events and
// zone messages. The returned function removes the subscriptions.
func (s *Synchronizer) Bind(src EventSource) func() {
	offs := []func(){
		src.On(transport.EventDisconnect, func(transport.Event) { s.HandleDisconnect() }),
		src.On(transport.EventConnect, func(transport.Event) { s.HandleReconnect() }),
		src.On(transport.EventReconnected, func(transport.Event) { s.HandleReconnect() }),
		src.Handle(wire.TypeArenaZoneUpdate, s.handleZoneUpdate),
		src.Handle(wire.TypeArenaZoneShrink, s.handleZoneShrink),
		src.Handle(wire.TypeGameStateSync, s.handleGameState),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (s *Synchronizer) handleZoneUpdate(msg *wire.Message) {
	var update wire.ZoneUpdate
	if err := msg.DecodeData(&update); err != nil {
		s.logger.Warn("dropping zone update", "message_id", msg.MessageID, "error", err)
		return
	}
	if err := s.HandleServerUpdate(update); err != nil {
		s.logger.Warn("rejecting zone update", "message_id", msg.MessageID, "error", err)
	}
}

func (s *Synchronizer) handleZoneShrink(msg *wire.Message) {
	var shrink wire.ZoneShrink
	if err := msg.DecodeData(&shrink); err != nil {
		s.logger.Warn("dropping zone shrink", "message_id", msg.MessageID, "error", err)
		return
	}
	if err := s.HandleServerUpdate(shrink.ToUpdate()); err != nil {
		s.logger.Warn("rejecting zone shrink", "message_id", msg.MessageID, "error", err)
	}
}

func (s *Synchronizer) handleGameState(msg *wire.Message) {
	var state wire.GameState
	if err := msg.DecodeData(&state); err != nil {
		s.logger.Warn("dropping game state", "message_id", msg.MessageID, "error", err)
		return
	}
	for i := range state.Zones {
		z := state.Zones[i]
		update := wire.ZoneUpdate{ZoneID: z.ID, Zone: &z, Timestamp: state.Timestamp}
		if err := s.HandleServerUpdate(update); err != nil {
			s.logger.Warn("rejecting synced zone", "zone", z.ID, "error", err)
		}
	}
}

func (s *Synchronizer) stateLocked(id string) *zoneState {
	st, ok := s.zones[id]
	if !ok {
		st = newZoneState(&wire.Zone{ID: id})
		s.zones[id] = st
	}
	return st
}

func (s *Synchronizer) sortedIDsLocked() []string {
	return slices.Sorted(maps.Keys(s.zones))
}

// adoptLocked makes post the authoritative and current snapshot.
func (s *Synchronizer) adoptLocked(st *zoneState, post *wire.Zone, now time.Time, fx *effects) {
	st.base = post.Clone()
	st.CurrentZone = post.Clone()
	st.PendingChanges = nil
	st.LastSyncTime = now
	s.setStatusLocked(st, StatusSynced, fx)
	fx.zones = append(fx.zones, post.Clone())
	fx.saves = append(fx.saves, post.Clone())
}

func (s *Synchronizer) setStatusLocked(st *zoneState, next SyncStatus, fx *effects) {
	prev := st.SyncStatus
	if prev == next {
		return
	}
	st.SyncStatus = next
	fx.statuses = append(fx.statuses, statusChange{zoneID: st.id, old: prev, new: next})
	s.plog.Log(log.Event{
		Timestamp: s.now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerSync,
		Category:  log.CategoryState,
		ZoneID:    st.id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityZone,
			OldState: prev.String(),
			NewState: next.String(),
		},
	})
	s.debugLog("zone status change", "zone", st.id, "from", prev, "to", next)
}

// retransmitLocked resends the pending changes selected by keep and returns
// how many were sent.
func (s *Synchronizer) retransmitLocked(st *zoneState, now time.Time, fx *effects, keep func(int, PendingChange) bool) int {
	var diffs []wire.ZoneDiff
	for i := range st.PendingChanges {
		p := &st.PendingChanges[i]
		if !keep(i, *p) {
			continue
		}
		p.SentAt = now
		p.Retries++
		diffs = append(diffs, p.Diff.Clone())
	}
	if len(diffs) > 0 {
		s.queueSendLocked(st.id, diffs, now, fx)
	}
	return len(diffs)
}

// queueSendLocked splits diffs into batches of the configured size.
func (s *Synchronizer) queueSendLocked(zoneID string, diffs []wire.ZoneDiff, now time.Time, fx *effects) {
	for batch := range slices.Chunk(diffs, s.cfg.BatchSize) {
		fx.sends = append(fx.sends, outbound{
			typ: wire.TypeArenaZoneUpdate,
			payload: wire.ZoneUpdate{
				ZoneID:    zoneID,
				Diffs:     batch,
				Timestamp: wire.Millis(now),
			},
		})
	}
}

func (s *Synchronizer) recordConflictLocked(c ZoneConflict, fx *effects) {
	s.conflicts = append(s.conflicts, c)
	if over := len(s.conflicts) - s.cfg.MaxConflictHistory; over > 0 {
		s.conflicts = slices.Delete(s.conflicts, 0, over)
	}
	fx.conflicts = append(fx.conflicts, c)
}

// run performs the effects collected under the lock.
func (s *Synchronizer) run(fx effects) {
	for _, o := range fx.sends {
		if s.transport == nil {
			s.debugLog("no transport, keeping change local", "type", o.typ)
			continue
		}
		if _, err := s.transport.Send(o.typ, o.payload); err != nil {
			s.logger.Warn("failed to send zone message", "type", o.typ, "error", err)
		}
	}

	if store := s.cfg.Store; store != nil {
		for _, z := range fx.saves {
			if err := store.SaveZone(z); err != nil {
				s.logger.Warn("failed to persist zone", "zone", z.ID, "error", err)
			}
		}
		for _, c := range fx.conflicts {
			if err := store.SaveConflict(c); err != nil {
				s.logger.Warn("failed to persist conflict", "zone", c.ZoneID, "error", err)
			}
		}
	}

	s.mu.Lock()
	onStatus, onConflict, onZone := s.onStatusChange, s.onConflict, s.onZoneChange
	s.mu.Unlock()

	if onStatus != nil {
		for _, c := range fx.statuses {
			onStatus(c.zoneID, c.old, c.new)
		}
	}
	if onConflict != nil {
		for _, c := range fx.conflicts {
			onConflict(c)
		}
	}
	if onZone != nil {
		for _, z := range fx.zones {
			onZone(z)
		}
	}
}

func (s *Synchronizer) latency() time.Duration {
	if s.transport == nil {
		return 0
	}
	return s.transport.Latency()
}

func (s *Synchronizer) capture(st *zoneState, cat log.Category, action string, d *wire.ZoneDiff, res Resolution) {
	ev := &log.SyncEvent{
		Action:     action,
		Status:     st.SyncStatus.String(),
		Pending:    len(st.PendingChanges),
		Resolution: string(res),
	}
	if d != nil {
		ev.Added, ev.Removed, ev.Modified = len(d.Added), len(d.Removed), len(d.Modified)
	}
	s.plog.Log(log.Event{
		Timestamp: s.now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerSync,
		Category:  cat,
		ZoneID:    st.id,
		Sync:      ev,
	})
}

// debugLog logs a debug message if debug logging is enabled.
func (s *Synchronizer) debugLog(msg string, args ...any) {
	if s.cfg.Debug {
		s.logger.Debug(msg, args...)
	}
}

func syncRequest(ids []string) outbound {
	return outbound{
		typ:     wire.TypeGameStateSync,
		payload: wire.GameStateSyncRequest{ZoneIDs: ids},
	}
}

// serverSnapshot returns the post-update authoritative snapshot.
func serverSnapshot(base *wire.Zone, update wire.ZoneUpdate) *wire.Zone {
	if update.Zone != nil {
		z := update.Zone.Clone()
		z.ID = update.ZoneID
		return z
	}
	z := base.Clone()
	for _, d := range update.Diffs {
		z = Apply(z, d)
	}
	if update.Timestamp > 0 {
		z.UpdatedAt = update.Timestamp
	}
	return z
}

// serverChange returns what the server changed: the declared diffs plus,
// for snapshot updates, the difference from the local base.
func serverChange(base *wire.Zone, update wire.ZoneUpdate) wire.ZoneDiff {
	diffs := slices.Clone(update.Diffs)
	if update.Zone != nil {
		diffs = append(diffs, Diff(base, update.Zone))
	}
	d := Merge(diffs...)
	d.Source = wire.SourceServer
	if update.Timestamp > 0 {
		d.Timestamp = update.Timestamp
	}
	return d
}
