package spatial

import (
	"errors"
	"fmt"
	"math"
)

// Spatial errors.
var (
	ErrInvalidCell       = errors.New("invalid cell id")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrInvalidLatLng     = errors.New("invalid coordinate")
)

// LatLng is a coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate checks that the coordinate is within range.
func (p LatLng) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidLatLng, p.Lat, p.Lng)
	}
	return nil
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lng)
}

// Provider is a hexagonal spatial index.
type Provider interface {
	// CellAt returns the id of the cell containing p at resolution res.
	CellAt(p LatLng, res int) (string, error)

	// Center returns the center of a cell.
	Center(cell string) (LatLng, error)

	// Disk returns the cells within k hops of cell, including cell.
	Disk(cell string, k int) ([]string, error)

	// Boundary returns the vertices of a cell's polygon.
	Boundary(cell string) ([]LatLng, error)

	// Resolution returns the resolution of a cell.
	Resolution(cell string) (int, error)

	// Distance returns the great-circle distance between a and b in
	// meters.
	Distance(a, b LatLng) float64
}

// Neighbors returns the cells exactly one hop from cell.
func Neighbors(p Provider, cell string) ([]string, error) {
	return Ring(p, cell, 1)
}

// Ring returns the cells exactly k hops from cell.
func Ring(p Provider, cell string, k int) ([]string, error) {
	if k == 0 {
		return []string{cell}, nil
	}
	outer, err := p.Disk(cell, k)
	if err != nil {
		return nil, err
	}
	inner, err := p.Disk(cell, k-1)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(inner))
	for _, c := range inner {
		skip[c] = struct{}{}
	}
	ring := make([]string, 0, len(outer)-len(inner))
	for _, c := range outer {
		if _, ok := skip[c]; !ok {
			ring = append(ring, c)
		}
	}
	return ring, nil
}
