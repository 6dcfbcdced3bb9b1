package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

// DefaultReplayInterval is the delay between replayed points.
const DefaultReplayInterval = time.Second

// ErrEmptyTrack is returned for a track without points.
var ErrEmptyTrack = errors.New("track has no points")

// TrackPoint is one entry of a recorded track: a coordinate or an error
// code.
type TrackPoint struct {
	Lat      float64 `yaml:"lat"`
	Lng      float64 `yaml:"lng"`
	Accuracy float64 `yaml:"accuracy,omitempty"`
	Error    string  `yaml:"error,omitempty"`
}

// Track is a recorded sequence of points.
type Track struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Loop     bool          `yaml:"loop,omitempty"`
	Points   []TrackPoint  `yaml:"points"`
}

// Validate checks every point.
func (t *Track) Validate() error {
	if len(t.Points) == 0 {
		return ErrEmptyTrack
	}
	for i, p := range t.Points {
		if p.Error != "" {
			if _, err := ParseCode(p.Error); err != nil {
				return fmt.Errorf("point %d: %w", i, err)
			}
			continue
		}
		if err := (spatial.LatLng{Lat: p.Lat, Lng: p.Lng}).Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// ParseTrack decodes a YAML track.
func ParseTrack(data []byte) (*Track, error) {
	var t Track
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse track: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Interval <= 0 {
		t.Interval = DefaultReplayInterval
	}
	return &t, nil
}

// LoadTrack reads a YAML track file.
func LoadTrack(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}
	return ParseTrack(data)
}

// Replay plays a Track back as a Provider.
type Replay struct {
	mu    sync.Mutex
	track *Track
	next  int
	now   func() time.Time
}

var _ Provider = (*Replay)(nil)

// NewReplay returns a provider replaying track.
func NewReplay(track *Track) *Replay {
	return &Replay{track: track, now: time.Now}
}

// CurrentPosition returns the next point of the track without waiting.
func (r *Replay) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, _ := r.advanceLocked()
	return u.Position, u.Err
}

// Watch emits one point per interval. An error point ends the stream
// after it is delivered, as does the end of a non-looping track.
func (r *Replay) Watch(ctx context.Context) (<-chan Update, error) {
	out := make(chan Update)
	go func() {
		defer close(out)
		ticker := time.NewTicker(r.track.Interval)
		defer ticker.Stop()
		for {
			r.mu.Lock()
			u, more := r.advanceLocked()
			r.mu.Unlock()

			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
			if u.Err != nil || !more {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// advanceLocked returns the next update and whether the track continues
// after it.
func (r *Replay) advanceLocked() (Update, bool) {
	pts := r.track.Points
	if r.next >= len(pts) {
		if !r.track.Loop {
			return Update{Err: NewError(CodePositionUnavailable, "track exhausted")}, false
		}
		r.next = 0
	}
	p := pts[r.next]
	r.next++
	more := r.track.Loop || r.next < len(pts)

	if p.Error != "" {
		code, _ := ParseCode(p.Error)
		return Update{Err: NewError(code, "replayed")}, more
	}
	return Update{Position: Position{
		LatLng:    spatial.LatLng{Lat: p.Lat, Lng: p.Lng},
		Accuracy:  p.Accuracy,
		Timestamp: r.now(),
	}}, more
}
