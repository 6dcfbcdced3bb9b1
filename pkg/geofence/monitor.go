package geofence

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/location"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

type pathEntry struct {
	cell string
	at   time.Time
}

// effects collects callback work produced under the lock.
type effects struct {
	moved     *PositionFix
	proximity []ProximityAlert
	settled   *ZoneEvent
	err       error
}

// Monitor emits debounced geofence events for a position stream.
type Monitor struct {
	mu sync.Mutex

	cfg      Config
	spatial  spatial.Provider
	location location.Provider
	logger   *slog.Logger
	plog     log.Logger
	clock    clock
	debounce *debouncer

	monitoring bool
	cancel     context.CancelFunc

	active       map[string]struct{}
	lastLocation *location.Position
	lastCell     string
	current      string
	nearby       []ProximityAlert
	path         []pathEntry
	lastSettled  map[string]EventType

	// Callbacks
	onEnter     func(ZoneEvent)
	onExit      func(ZoneEvent)
	onProximity func([]ProximityAlert)
	onPosition  func(PositionFix)
	onError     func(error)
}

// New creates a monitor. A nil location provider is allowed; positions
// are then fed through HandlePosition.
func New(sp spatial.Provider, lp location.Provider, cfg Config) (*Monitor, error) {
	return newMonitor(sp, lp, cfg, systemClock{})
}

func newMonitor(sp spatial.Provider, lp location.Provider, cfg Config, c clock) (*Monitor, error) {
	if sp == nil {
		return nil, ErrNoSpatialProvider
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Monitor{
		cfg:         cfg,
		spatial:     sp,
		location:    lp,
		logger:      logger,
		plog:        log.OrNoop(cfg.ProtocolLogger),
		clock:       c,
		active:      make(map[string]struct{}),
		lastSettled: make(map[string]EventType),
	}
	m.debounce = newDebouncer(c, cfg.DebounceDuration, cfg.RefractoryWindow, m.settle)
	return m, nil
}

// OnEnter sets the callback for settled enter events.
func (m *Monitor) OnEnter(cb func(ZoneEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnter = cb
}

// OnExit sets the callback for settled exit events.
func (m *Monitor) OnExit(cb func(ZoneEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit = cb
}

// OnProximity sets the callback for proximity reports.
func (m *Monitor) OnProximity(cb func([]ProximityAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProximity = cb
}

// OnPosition sets the callback invoked for every classified position,
// before any resulting events settle.
func (m *Monitor) OnPosition(cb func(PositionFix)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPosition = cb
}

// OnError sets the callback for location failures.
func (m *Monitor) OnError(cb func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = cb
}

// StartMonitoring watches activeCells and starts consuming the location
// stream. It is a no-op while already monitoring.
func (m *Monitor) StartMonitoring(ctx context.Context, activeCells []string) error {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return nil
	}
	m.monitoring = true
	m.active = cellSet(activeCells)
	wctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.captureMonitorLocked("stopped", "monitoring")
	m.mu.Unlock()

	m.logger.Info("geofence monitoring started", "active_cells", len(activeCells))
	if m.location == nil {
		return nil
	}

	ch, err := m.location.Watch(wctx)
	if err != nil {
		m.stop("watch failed")
		return fmt.Errorf("failed to watch location: %w", err)
	}
	go m.consume(wctx, ch)
	return nil
}

// StopMonitoring stops consuming positions and cancels every pending
// debounce timer.
func (m *Monitor) StopMonitoring() {
	m.stop("stopped")
}

func (m *Monitor) stop(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return false
	}
	m.monitoring = false
	m.cancel()
	m.debounce.cancelAll()
	m.captureMonitorLocked("monitoring", "stopped")
	m.logger.Info("geofence monitoring stopped", "reason", reason)
	return true
}

// IsMonitoring returns true while the monitor consumes positions.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

func (m *Monitor) consume(ctx context.Context, ch <-chan location.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				if ctx.Err() == nil {
					m.stop("location stream ended")
				}
				return
			}
			if u.Err != nil {
				m.fail(u.Err)
				return
			}
			m.HandlePosition(u.Position)
		}
	}
}

// fail stops monitoring and reports err.
func (m *Monitor) fail(err error) {
	if !m.stop("location error") {
		return
	}
	m.logger.Warn("location error, monitoring stopped", "error", err, "fatal", location.IsFatal(err))
	m.plog.Log(log.Event{
		Timestamp: m.clock.Now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerGeofence,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerGeofence,
			Message: err.Error(),
			Context: "location",
		},
	})
	m.run(effects{err: err})
}

// HandlePosition classifies a position. Positions received while not
// monitoring are ignored.
func (m *Monitor) HandlePosition(pos location.Position) {
	var fx effects

	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	cell, err := m.spatial.CellAt(pos.LatLng, m.cfg.Resolution)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("dropping unclassifiable position", "position", pos.LatLng, "error", err)
		return
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = m.clock.Now()
	}
	prevCell := m.lastCell
	m.lastLocation = &pos
	m.lastCell = cell

	_, active := m.active[cell]
	m.setCurrentLocked(active)
	fx.moved = &PositionFix{Position: pos, Cell: cell, Active: active}

	switch {
	case prevCell == "":
		if active {
			m.candidateLocked(EventEnter, cell, pos)
		}
	case prevCell != cell:
		if _, prevActive := m.active[prevCell]; prevActive || active {
			m.candidateLocked(EventExit, prevCell, pos)
			if active {
				m.candidateLocked(EventEnter, cell, pos)
			}
		}
	}
	m.proximityLocked(&fx)
	m.mu.Unlock()

	m.run(fx)
}

// UpdateActiveZones replaces the watched set and re-evaluates the last
// known position against it.
func (m *Monitor) UpdateActiveZones(cells []string) {
	var fx effects

	m.mu.Lock()
	prev := m.current
	m.active = cellSet(cells)
	if m.lastLocation != nil && m.monitoring {
		pos := *m.lastLocation
		_, active := m.active[m.lastCell]
		m.setCurrentLocked(active)
		if prev != "" && prev != m.current {
			m.candidateLocked(EventExit, prev, pos)
		}
		if m.current != "" && m.current != prev {
			m.candidateLocked(EventEnter, m.current, pos)
		}
		m.proximityLocked(&fx)
	}
	m.debugLog("active zones updated", "cells", len(cells), "current", m.current)
	m.mu.Unlock()

	m.run(fx)
}

// setCurrentLocked recomputes the current zone from the last cell and
// extends the path when it changes to an active cell.
func (m *Monitor) setCurrentLocked(active bool) {
	next := ""
	if active {
		next = m.lastCell
	}
	if next == m.current {
		return
	}
	m.current = next
	if next == "" {
		return
	}
	if n := len(m.path); n > 0 && m.path[n-1].cell == next {
		return
	}
	m.path = append(m.path, pathEntry{cell: next, at: m.lastLocation.Timestamp})
}

func (m *Monitor) candidateLocked(kind EventType, cell string, pos location.Position) {
	ev := ZoneEvent{Type: kind, Cell: cell, Position: pos}
	if !m.debounce.schedule(ev) {
		m.debugLog("candidate suppressed in refractory window", "type", kind, "cell", cell)
		return
	}
	m.debugLog("candidate scheduled", "type", kind, "cell", cell)
}

// settle runs when a debounce timer fires and emits the event if
// membership still matches.
func (m *Monitor) settle(ev ZoneEvent) {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return
	}
	inside := m.current == ev.Cell
	last := m.lastSettled[ev.Cell]
	var valid bool
	switch ev.Type {
	case EventEnter:
		valid = inside && last != EventEnter
	case EventExit:
		_, watched := m.active[ev.Cell]
		valid = !inside && last != EventExit && (last == EventEnter || !watched)
	}
	if !valid {
		m.debugLog("candidate discarded", "type", ev.Type, "cell", ev.Cell)
		m.mu.Unlock()
		return
	}
	ev.Timestamp = m.clock.Now()
	m.lastSettled[ev.Cell] = ev.Type
	m.debounce.markSettled(ev.Type, ev.Cell, ev.Timestamp)
	m.plog.Log(log.Event{
		Timestamp: ev.Timestamp,
		Direction: log.DirectionLocal,
		Layer:     log.LayerGeofence,
		Category:  log.CategoryState,
		Geofence:  &log.GeofenceEvent{Kind: ev.Type.String(), Cell: ev.Cell},
	})
	m.mu.Unlock()

	m.logger.Info("geofence event", "type", ev.Type, "cell", ev.Cell)
	m.run(effects{settled: &ev})
}

func (m *Monitor) proximityLocked(fx *effects) {
	m.nearby = nil
	if !m.cfg.EnableProximity || m.lastLocation == nil || len(m.active) == 0 {
		return
	}
	disk, err := m.spatial.Disk(m.lastCell, m.cfg.ProximityRadius)
	if err != nil {
		m.logger.Warn("proximity lookup failed", "cell", m.lastCell, "error", err)
		return
	}
	pos := m.lastLocation.LatLng
	var alerts []ProximityAlert
	for _, c := range disk {
		if c == m.lastCell {
			continue
		}
		if _, ok := m.active[c]; !ok {
			continue
		}
		center, err := m.spatial.Center(c)
		if err != nil {
			m.debugLog("skipping cell without center", "cell", c, "error", err)
			continue
		}
		d := m.spatial.Distance(pos, center)
		if d > m.cfg.ProximityThreshold {
			continue
		}
		alerts = append(alerts, ProximityAlert{
			Cell:      c,
			Center:    center,
			Distance:  d,
			Direction: DirectionTo(pos, center),
		})
	}
	slices.SortFunc(alerts, func(a, b ProximityAlert) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), cmp.Compare(a.Cell, b.Cell))
	})
	m.nearby = alerts
	if len(alerts) > 0 {
		fx.proximity = slices.Clone(alerts)
		m.plog.Log(log.Event{
			Timestamp: m.clock.Now(),
			Direction: log.DirectionLocal,
			Layer:     log.LayerGeofence,
			Category:  log.CategoryState,
			Geofence:  &log.GeofenceEvent{Kind: "proximity", Cell: alerts[0].Cell, Distance: alerts[0].Distance},
		})
	}
}

// run invokes callbacks outside the lock.
func (m *Monitor) run(fx effects) {
	m.mu.Lock()
	onEnter, onExit, onProximity, onPosition, onError := m.onEnter, m.onExit, m.onProximity, m.onPosition, m.onError
	m.mu.Unlock()

	if fx.moved != nil && onPosition != nil {
		onPosition(*fx.moved)
	}
	if fx.settled != nil {
		ev := *fx.settled
		switch ev.Type {
		case EventEnter:
			m.vibrate(EnterPattern)
			if onEnter != nil {
				onEnter(ev)
			}
		case EventExit:
			m.vibrate(ExitPattern)
			if onExit != nil {
				onExit(ev)
			}
		}
	}
	if len(fx.proximity) > 0 && onProximity != nil {
		onProximity(fx.proximity)
	}
	if fx.err != nil && onError != nil {
		onError(fx.err)
	}
}

func (m *Monitor) vibrate(pattern []time.Duration) {
	if m.cfg.EnableHaptic && m.cfg.Haptics != nil {
		m.cfg.Haptics.Vibrate(slices.Clone(pattern))
	}
}

// PlayerPath returns the visited active cells, oldest first, with
// consecutive repeats collapsed.
func (m *Monitor) PlayerPath() []CellRecord {
	m.mu.Lock()
	path := slices.Clone(m.path)
	m.mu.Unlock()

	out := make([]CellRecord, 0, len(path))
	for _, e := range path {
		rec := m.resolve(e.cell)
		rec.VisitedAt = e.at
		out = append(out, rec)
	}
	return out
}

// CurrentLocation returns the last position handled.
func (m *Monitor) CurrentLocation() (location.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLocation == nil {
		return location.Position{}, false
	}
	return *m.lastLocation, true
}

// State returns a snapshot of the monitor.
func (m *Monitor) State() State {
	m.mu.Lock()
	st := State{
		NearbyZones:       slices.Clone(m.nearby),
		IsMonitoring:      m.monitoring,
		ActiveZoneIndices: slices.Sorted(maps.Keys(m.active)),
		PlayerPath:        make([]string, len(m.path)),
	}
	for i, e := range m.path {
		st.PlayerPath[i] = e.cell
	}
	if m.lastLocation != nil {
		pos := *m.lastLocation
		st.LastLocation = &pos
	}
	current := m.current
	m.mu.Unlock()

	if current != "" {
		rec := m.resolve(current)
		st.CurrentZone = &rec
	}
	return st
}

// resolve looks up a cell's geometry. Lookup failures leave the fields
// empty.
func (m *Monitor) resolve(cell string) CellRecord {
	rec := CellRecord{Cell: cell}
	var err error
	if rec.Center, err = m.spatial.Center(cell); err != nil {
		m.debugLog("cell center lookup failed", "cell", cell, "error", err)
	}
	if rec.Boundary, err = m.spatial.Boundary(cell); err != nil {
		m.debugLog("cell boundary lookup failed", "cell", cell, "error", err)
	}
	if rec.Resolution, err = m.spatial.Resolution(cell); err != nil {
		m.debugLog("cell resolution lookup failed", "cell", cell, "error", err)
	}
	return rec
}

// pendingTimers returns the number of live debounce timers.
func (m *Monitor) pendingTimers() int {
	return m.debounce.count()
}

func (m *Monitor) captureMonitorLocked(from, to string) {
	m.plog.Log(log.Event{
		Timestamp: m.clock.Now(),
		Direction: log.DirectionLocal,
		Layer:     log.LayerGeofence,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityMonitor,
			OldState: from,
			NewState: to,
		},
	})
}

// debugLog logs a debug message if debug logging is enabled.
func (m *Monitor) debugLog(msg string, args ...any) {
	if m.cfg.Debug {
		m.logger.Debug(msg, args...)
	}
}

func cellSet(cells []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		set[c] = struct{}{}
	}
	return set
}
