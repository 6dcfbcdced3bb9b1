package h3grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

var downtownSF = spatial.LatLng{Lat: 37.775938728915946, Lng: -122.41795063018799}

func TestCellAt(t *testing.T) {
	p := New()

	cell, err := p.CellAt(downtownSF, 9)
	require.NoError(t, err)
	assert.Equal(t, "8928308280fffff", cell)

	res, err := p.Resolution(cell)
	require.NoError(t, err)
	assert.Equal(t, 9, res)

	_, err = p.CellAt(downtownSF, 16)
	assert.ErrorIs(t, err, spatial.ErrInvalidResolution)

	_, err = p.CellAt(spatial.LatLng{Lat: 91}, 9)
	assert.ErrorIs(t, err, spatial.ErrInvalidLatLng)
}

func TestCenterRoundTrip(t *testing.T) {
	p := New()
	cell, err := p.CellAt(downtownSF, 9)
	require.NoError(t, err)

	center, err := p.Center(cell)
	require.NoError(t, err)
	again, err := p.CellAt(center, 9)
	require.NoError(t, err)
	assert.Equal(t, cell, again)

	// A resolution 9 cell is well under a kilometre across.
	assert.Less(t, p.Distance(downtownSF, center), 500.0)
}

func TestDiskAndRing(t *testing.T) {
	p := New()
	cell, err := p.CellAt(downtownSF, 9)
	require.NoError(t, err)

	disk, err := p.Disk(cell, 1)
	require.NoError(t, err)
	assert.Len(t, disk, 7)
	assert.Contains(t, disk, cell)

	ring, err := spatial.Ring(p, cell, 2)
	require.NoError(t, err)
	assert.Len(t, ring, 12)
	assert.NotContains(t, ring, cell)

	_, err = p.Disk(cell, -1)
	assert.Error(t, err)
}

func TestBoundary(t *testing.T) {
	p := New()
	cell, err := p.CellAt(downtownSF, 9)
	require.NoError(t, err)

	b, err := p.Boundary(cell)
	require.NoError(t, err)
	assert.Len(t, b, 6)
	for _, v := range b {
		assert.NoError(t, v.Validate())
	}
}

func TestInvalidCell(t *testing.T) {
	p := New()
	for _, cell := range []string{"", "zzz", "0"} {
		t.Run(cell, func(t *testing.T) {
			_, err := p.Center(cell)
			assert.ErrorIs(t, err, spatial.ErrInvalidCell)
			_, err = p.Disk(cell, 1)
			assert.ErrorIs(t, err, spatial.ErrInvalidCell)
			_, err = p.Boundary(cell)
			assert.ErrorIs(t, err, spatial.ErrInvalidCell)
			_, err = p.Resolution(cell)
			assert.ErrorIs(t, err, spatial.ErrInvalidCell)
		})
	}
}

func TestDistance(t *testing.T) {
	p := New()
	// One degree of latitude is about 111 km.
	d := p.Distance(spatial.LatLng{Lat: 0, Lng: 0}, spatial.LatLng{Lat: 1, Lng: 0})
	assert.InDelta(t, 111_195, d, 200)
}
