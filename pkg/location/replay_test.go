package location

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrack = `
interval: 5ms
points:
  - lat: 37.7759
    lng: -122.4179
    accuracy: 5
  - lat: 37.7760
    lng: -122.4180
  - error: timeout
  - lat: 1
    lng: 1
`

func collect(t *testing.T, ch <-chan Update) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}

func TestParseTrack(t *testing.T) {
	track, err := ParseTrack([]byte(sampleTrack))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, track.Interval)
	require.Len(t, track.Points, 4)
	assert.Equal(t, "timeout", track.Points[2].Error)

	track, err = ParseTrack([]byte("points: [{lat: 1, lng: 2}]"))
	require.NoError(t, err)
	assert.Equal(t, DefaultReplayInterval, track.Interval)

	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "points: []"},
		{"bad coordinate", "points: [{lat: 95, lng: 0}]"},
		{"bad code", "points: [{error: blocked}]"},
		{"bad yaml", "points: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrack([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrack), 0o600))

	track, err := LoadTrack(path)
	require.NoError(t, err)
	assert.Len(t, track.Points, 4)

	_, err = LoadTrack(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReplayWatchStopsAtError(t *testing.T) {
	track, err := ParseTrack([]byte(sampleTrack))
	require.NoError(t, err)

	ch, err := NewReplay(track).Watch(context.Background())
	require.NoError(t, err)
	got := collect(t, ch)

	require.Len(t, got, 3)
	assert.InDelta(t, 37.7759, got[0].Position.Lat, 1e-9)
	assert.Equal(t, 5.0, got[0].Position.Accuracy)
	assert.False(t, got[0].Position.Timestamp.IsZero())
	assert.NoError(t, got[1].Err)
	assert.ErrorIs(t, got[2].Err, ErrTimeout)
	assert.False(t, IsFatal(got[2].Err))
}

func TestReplayWatchEndsWithTrack(t *testing.T) {
	track, err := ParseTrack([]byte("interval: 1ms\npoints: [{lat: 1, lng: 1}, {lat: 2, lng: 2}]"))
	require.NoError(t, err)

	ch, err := NewReplay(track).Watch(context.Background())
	require.NoError(t, err)
	got := collect(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[1].Position.Lat)
}

func TestReplayWatchCancel(t *testing.T) {
	track, err := ParseTrack([]byte("interval: 1ms\nloop: true\npoints: [{lat: 1, lng: 1}]"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewReplay(track).Watch(ctx)
	require.NoError(t, err)

	for range 3 {
		u := <-ch
		require.NoError(t, u.Err)
	}
	cancel()
	collect(t, ch)
}

func TestReplayCurrentPosition(t *testing.T) {
	track, err := ParseTrack([]byte("points: [{lat: 1, lng: 1}, {lat: 2, lng: 2}]"))
	require.NoError(t, err)
	r := NewReplay(track)

	p, err := r.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Lat)

	p, err = r.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Lng)

	_, err = r.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.CurrentPosition(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
