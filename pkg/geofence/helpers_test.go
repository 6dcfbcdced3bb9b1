package geofence

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/location"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

// fakeClock fires scheduled functions when advanced.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

type fakeTask struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTask{c: c, at: c.now.Add(d), f: f}
	c.tasks = append(c.tasks, t)
	return t
}

func (t *fakeTask) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due tasks in schedule order with
// Now reporting each task's due time while it runs. Tasks scheduled by a
// callback run too when they fall inside the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		c.tasks = slices.DeleteFunc(c.tasks, func(t *fakeTask) bool { return t.stopped || t.fired })
		var next *fakeTask
		for _, t := range c.tasks {
			if !t.at.After(end) && (next == nil || t.at.Before(next.at)) {
				next = t
			}
		}
		if next == nil {
			c.now = end
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.f()
	}
}

// gridProvider is a square grid of cellSize degrees. Cells are named
// "r<row>:c<col>"; disks use Chebyshev distance.
type gridProvider struct{}

const cellSize = 0.001

const metersPerDegree = 111_195.0

func cellID(row, col int) string {
	return fmt.Sprintf("r%d:c%d", row, col)
}

func parseCell(cell string) (row, col int, err error) {
	if _, err := fmt.Sscanf(cell, "r%d:c%d", &row, &col); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", spatial.ErrInvalidCell, cell)
	}
	return row, col, nil
}

// at returns the center position of a grid cell.
func at(row, col int) location.Position {
	return location.Position{LatLng: spatial.LatLng{
		Lat: (float64(row) + 0.5) * cellSize,
		Lng: (float64(col) + 0.5) * cellSize,
	}}
}

func (gridProvider) CellAt(p spatial.LatLng, _ int) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return cellID(int(math.Floor(p.Lat/cellSize)), int(math.Floor(p.Lng/cellSize))), nil
}

func (gridProvider) Center(cell string) (spatial.LatLng, error) {
	r, c, err := parseCell(cell)
	if err != nil {
		return spatial.LatLng{}, err
	}
	return at(r, c).LatLng, nil
}

func (gridProvider) Disk(cell string, k int) ([]string, error) {
	r, c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}
	var out []string
	for dr := -k; dr <= k; dr++ {
		for dc := -k; dc <= k; dc++ {
			out = append(out, cellID(r+dr, c+dc))
		}
	}
	return out, nil
}

func (gridProvider) Boundary(cell string) ([]spatial.LatLng, error) {
	r, c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}
	lat, lng := float64(r)*cellSize, float64(c)*cellSize
	return []spatial.LatLng{
		{Lat: lat, Lng: lng},
		{Lat: lat, Lng: lng + cellSize},
		{Lat: lat + cellSize, Lng: lng + cellSize},
		{Lat: lat + cellSize, Lng: lng},
	}, nil
}

func (gridProvider) Resolution(cell string) (int, error) {
	if _, _, err := parseCell(cell); err != nil {
		return 0, err
	}
	return DefaultResolution, nil
}

func (gridProvider) Distance(a, b spatial.LatLng) float64 {
	dy := (b.Lat - a.Lat) * metersPerDegree
	dx := (b.Lng - a.Lng) * metersPerDegree * math.Cos(a.Lat*math.Pi/180)
	return math.Hypot(dx, dy)
}

// mockLocation is a testify mock of location.Provider.
type mockLocation struct {
	mock.Mock
}

func (m *mockLocation) CurrentPosition(ctx context.Context) (location.Position, error) {
	args := m.Called(ctx)
	return args.Get(0).(location.Position), args.Error(1)
}

func (m *mockLocation) Watch(ctx context.Context) (<-chan location.Update, error) {
	args := m.Called(ctx)
	ch, _ := args.Get(0).(<-chan location.Update)
	return ch, args.Error(1)
}

type mockHaptics struct {
	mock.Mock
}

func (m *mockHaptics) Vibrate(pattern []time.Duration) {
	m.Called(pattern)
}

// recorder collects settled events.
type recorder struct {
	mu     sync.Mutex
	events []ZoneEvent
}

func (r *recorder) record(ev ZoneEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// log returns the events as "type:cell" strings.
func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type.String() + ":" + ev.Cell
	}
	return out
}

const testDebounce = 100 * time.Millisecond

func newTestMonitor(t *testing.T, active []string, mod func(*Config)) (*Monitor, *fakeClock, *recorder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DebounceDuration = testDebounce
	cfg.RefractoryWindow = 0
	if mod != nil {
		mod(&cfg)
	}
	clk := newFakeClock()
	m, err := newMonitor(gridProvider{}, nil, cfg, clk)
	require.NoError(t, err)

	rec := &recorder{}
	m.OnEnter(rec.record)
	m.OnExit(rec.record)
	require.NoError(t, m.StartMonitoring(context.Background(), active))
	t.Cleanup(m.StopMonitoring)
	return m, clk, rec
}

// feed handles each position, advancing the clock by step before each.
func feed(m *Monitor, clk *fakeClock, step time.Duration, positions ...location.Position) {
	for _, p := range positions {
		clk.Advance(step)
		m.HandlePosition(p)
	}
}
