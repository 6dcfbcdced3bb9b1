// Package h3grid implements spatial.Provider on top of Uber's H3 index.
package h3grid

import (
	"fmt"

	"github.com/uber/h3-go/v4"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/spatial"
)

// MaxResolution is the finest H3 resolution.
const MaxResolution = 15

// Provider is the H3 spatial index.
type Provider struct{}

var _ spatial.Provider = Provider{}

// New returns an H3 provider.
func New() Provider {
	return Provider{}
}

// CellAt returns the H3 cell containing p.
func (Provider) CellAt(p spatial.LatLng, res int) (string, error) {
	if res < 0 || res > MaxResolution {
		return "", fmt.Errorf("%w: %d", spatial.ErrInvalidResolution, res)
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res).String(), nil
}

// Center returns the centroid of a cell.
func (Provider) Center(cell string) (spatial.LatLng, error) {
	c, err := parse(cell)
	if err != nil {
		return spatial.LatLng{}, err
	}
	return fromH3(h3.CellToLatLng(c)), nil
}

// Disk returns the cells within k grid steps of cell.
func (Provider) Disk(cell string, k int) ([]string, error) {
	c, err := parse(cell)
	if err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, fmt.Errorf("negative disk radius %d", k)
	}
	disk := h3.GridDisk(c, k)
	out := make([]string, len(disk))
	for i, d := range disk {
		out[i] = d.String()
	}
	return out, nil
}

// Boundary returns the polygon vertices of a cell.
func (Provider) Boundary(cell string) ([]spatial.LatLng, error) {
	c, err := parse(cell)
	if err != nil {
		return nil, err
	}
	b := c.Boundary()
	out := make([]spatial.LatLng, len(b))
	for i, v := range b {
		out[i] = fromH3(v)
	}
	return out, nil
}

// Resolution returns the cell's resolution.
func (Provider) Resolution(cell string) (int, error) {
	c, err := parse(cell)
	if err != nil {
		return 0, err
	}
	return c.Resolution(), nil
}

// Distance returns the haversine distance in meters.
func (Provider) Distance(a, b spatial.LatLng) float64 {
	return h3.GreatCircleDistanceM(h3.NewLatLng(a.Lat, a.Lng), h3.NewLatLng(b.Lat, b.Lng))
}

func parse(cell string) (h3.Cell, error) {
	c := h3.Cell(h3.IndexFromString(cell))
	if !c.IsValid() {
		return 0, fmt.Errorf("%w: %q", spatial.ErrInvalidCell, cell)
	}
	return c, nil
}

func fromH3(ll h3.LatLng) spatial.LatLng {
	return spatial.LatLng{Lat: ll.Lat, Lng: ll.Lng}
}
