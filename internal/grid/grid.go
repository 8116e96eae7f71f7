// Package grid owns the radar's polar occupancy grid.
//
// A Grid holds three boolean surfaces (Past, Current, Stationary) indexed by
// integer radius bucket and one-degree angle bucket. It is the single source
// of truth for sensor state within a session.
//
// A Grid is not safe for concurrent use. One scan cycle mutates it at a
// time; concurrent readers take a Snapshot after the cycle completes.
package grid

import (
	"fmt"

	"github.com/OpenSourceIronman/BikeRADAR/internal/polar"
)

// HardMaxRadius is the sensor's ceiling on radius buckets.
const HardMaxRadius = 300

// AngleBins is the number of angle buckets per ring.
const AngleBins = polar.FullCircle

// Cell is an occupied (radius, angle) pair.
type Cell struct {
	Radius int `json:"radius"`
	Angle  int `json:"angle"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d, %d)", c.Radius, c.Angle) }

// Grid is a polar occupancy grid with Past, Current and Stationary surfaces.
type Grid struct {
	maxRadius int

	// Flat row-major storage, len = maxRadius * AngleBins per surface.
	surfaces [numSurfaces][]bool
}

// New creates an empty grid with maxRadius radius buckets.
// It returns ErrConfiguration when maxRadius is not in (0, HardMaxRadius].
func New(maxRadius int) (*Grid, error) {
	if maxRadius <= 0 || maxRadius > HardMaxRadius {
		return nil, fmt.Errorf("%w: max radius %d must be in [1, %d]", ErrConfiguration, maxRadius, HardMaxRadius)
	}
	g := &Grid{maxRadius: maxRadius}
	for i := range g.surfaces {
		g.surfaces[i] = make([]bool, maxRadius*AngleBins)
	}
	return g, nil
}

// MaxRadius returns the number of radius buckets.
func (g *Grid) MaxRadius() int { return g.maxRadius }

// idx maps a cell to its offset in a surface slice: radius*AngleBins + angle.
func (g *Grid) idx(radius, angle int) int { return radius*AngleBins + angle }

// InBounds reports whether (radius, angle) addresses a cell of this grid.
func (g *Grid) InBounds(radius, angle int) bool {
	return radius >= 0 && radius < g.maxRadius && angle >= 0 && angle < AngleBins
}

func (g *Grid) surface(s Surface) ([]bool, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSurface, int(s))
	}
	return g.surfaces[s], nil
}

func (g *Grid) checkIndex(radius, angle int) error {
	if !g.InBounds(radius, angle) {
		return fmt.Errorf("%w: radius %d (want [0, %d)), angle %d (want [0, %d))",
			ErrInvalidIndex, radius, g.maxRadius, angle, AngleBins)
	}
	return nil
}

// Reset marks every cell of s unoccupied.
func (g *Grid) Reset(s Surface) error {
	cells, err := g.surface(s)
	if err != nil {
		return err
	}
	clear(cells)
	return nil
}

// Set writes one cell of s.
func (g *Grid) Set(s Surface, radius, angle int, occupied bool) error {
	cells, err := g.surface(s)
	if err != nil {
		return err
	}
	if err := g.checkIndex(radius, angle); err != nil {
		return err
	}
	cells[g.idx(radius, angle)] = occupied
	return nil
}

// Get reads one cell of s.
func (g *Grid) Get(s Surface, radius, angle int) (bool, error) {
	cells, err := g.surface(s)
	if err != nil {
		return false, err
	}
	if err := g.checkIndex(radius, angle); err != nil {
		return false, err
	}
	return cells[g.idx(radius, angle)], nil
}

// occupied is the unchecked read used by hot loops that already validated
// their indices.
func (g *Grid) occupied(s Surface, radius, angle int) bool {
	return g.surfaces[s][g.idx(radius, angle)]
}

// Occupied reads a cell, treating out-of-range indices as unoccupied.
// Motion compensation uses it for back-projected candidates where a miss is
// a normal outcome rather than an error.
func (g *Grid) Occupied(s Surface, radius, angle int) bool {
	if !s.Valid() || !g.InBounds(radius, angle) {
		return false
	}
	return g.occupied(s, radius, angle)
}

// Advance copies Current into Past. Past receives its own copy, so later
// writes to Current never show through.
func (g *Grid) Advance() {
	copy(g.surfaces[Past], g.surfaces[Current])
}

// Fill resets s and marks the given cells occupied. All cells are validated
// before anything is written, so a bad cell leaves s untouched.
func (g *Grid) Fill(s Surface, cells []Cell) error {
	dst, err := g.surface(s)
	if err != nil {
		return err
	}
	for _, c := range cells {
		if err := g.checkIndex(c.Radius, c.Angle); err != nil {
			return err
		}
	}
	clear(dst)
	for _, c := range cells {
		dst[g.idx(c.Radius, c.Angle)] = true
	}
	return nil
}

// Points returns the occupied cells of s in scan order: radius ascending,
// then angle ascending. The slice is a copy owned by the caller.
func (g *Grid) Points(s Surface) ([]Cell, error) {
	cells, err := g.surface(s)
	if err != nil {
		return nil, err
	}
	points := make([]Cell, 0)
	for i, occ := range cells {
		if occ {
			points = append(points, Cell{Radius: i / AngleBins, Angle: i % AngleBins})
		}
	}
	return points, nil
}

// PlotPoints returns the occupied cells of s as parallel radius and angle
// lists, the shape plotting front ends consume.
func (g *Grid) PlotPoints(s Surface) (radius, angle []int, err error) {
	points, err := g.Points(s)
	if err != nil {
		return nil, nil, err
	}
	radius = make([]int, len(points))
	angle = make([]int, len(points))
	for i, p := range points {
		radius[i] = p.Radius
		angle[i] = p.Angle
	}
	return radius, angle, nil
}

// Count returns the number of occupied cells in s.
func (g *Grid) Count(s Surface) (int, error) {
	cells, err := g.surface(s)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, occ := range cells {
		if occ {
			n++
		}
	}
	return n, nil
}
