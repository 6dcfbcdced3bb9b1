// Package spatial defines the hexagonal spatial index consumed by the
// arena client.
//
// The client never computes cell geometry itself. A Provider converts
// coordinates to cell ids and back, enumerates neighbouring cells and
// measures great-circle distances. The h3grid subpackage adapts Uber's H3
// library to the interface; tests substitute their own grids.
package spatial
