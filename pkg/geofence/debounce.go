package geofence

import (
	"sync"
	"time"
)

// debounceKey identifies a debounce timer.
type debounceKey struct {
	kind EventType
	cell string
}

// pendingEvent is a candidate waiting for its timer.
type pendingEvent struct {
	event ZoneEvent
	gen   uint64
	timer stopper
}

// debouncer holds at most one timer per (event type, cell) pair.
type debouncer struct {
	mu sync.Mutex

	clock      clock
	delay      time.Duration
	refractory time.Duration

	pending map[debounceKey]*pendingEvent
	settled map[debounceKey]time.Time
	gen     uint64

	// Callback when a timer fires
	onExpiry func(ZoneEvent)
}

func newDebouncer(c clock, delay, refractory time.Duration, onExpiry func(ZoneEvent)) *debouncer {
	return &debouncer{
		clock:      c,
		delay:      delay,
		refractory: refractory,
		pending:    make(map[debounceKey]*pendingEvent),
		settled:    make(map[debounceKey]time.Time),
		onExpiry:   onExpiry,
	}
}

// schedule starts or restarts the timer for the event's key. It returns
// false if the key is inside its refractory window.
func (d *debouncer) schedule(ev ZoneEvent) bool {
	key := debounceKey{kind: ev.Type, cell: ev.Cell}

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.settled[key]; ok && d.clock.Now().Sub(at) < d.refractory {
		return false
	}

	// Cancel existing timer if any
	if existing, ok := d.pending[key]; ok {
		existing.timer.Stop()
	}

	d.gen++
	gen := d.gen
	p := &pendingEvent{event: ev, gen: gen}
	p.timer = d.clock.AfterFunc(d.delay, func() {
		d.expire(key, gen)
	})
	d.pending[key] = p
	return true
}

// markSettled starts the refractory window of a key.
func (d *debouncer) markSettled(kind EventType, cell string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settled[debounceKey{kind: kind, cell: cell}] = at
}

// cancelAll stops every pending timer and forgets settle times.
func (d *debouncer) cancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
	clear(d.settled)
}

// count returns the number of pending timers.
func (d *debouncer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// expire handles a fired timer. A timer replaced after it fired but before
// it ran is ignored.
func (d *debouncer) expire(key debounceKey, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	callback := d.onExpiry
	d.mu.Unlock()

	// Call callback outside lock
	if callback != nil {
		callback(p.event)
	}
}
