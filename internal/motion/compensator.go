// Package motion finds stationary cells by comparing the current scan with
// the previous one after correcting for platform travel.
package motion

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/OpenSourceIronman/BikeRADAR/internal/grid"
	"github.com/OpenSourceIronman/BikeRADAR/internal/polar"
)

// Headings in grid-angle degrees (0 on +X, counter-clockwise).
const (
	// HeadingForward is travel along the 0° bearing: a cell at (r, 0) was at
	// (r + distance, 0) one cycle earlier.
	HeadingForward = 0.0
	// HeadingDecreasingY is travel toward -Y: a point (x, y) was at
	// (x, y - distance) one cycle earlier.
	HeadingDecreasingY = 270.0
)

// Params describes platform motion for one compensation pass.
type Params struct {
	Velocity   float64 `json:"velocity"`    // distance units per second
	PollRate   float64 `json:"poll_rate"`   // Hz
	HeadingDeg float64 `json:"heading_deg"` // direction of travel, grid-angle degrees
}

// Distance returns the per-cycle displacement, Velocity * PollRate.
func (p Params) Distance() float64 {
	return p.Velocity * p.PollRate
}

// Displacement returns the vector from a point's current sensor-relative
// position to where the same stationary obstacle sat one cycle earlier.
func (p Params) Displacement() r2.Vec {
	dx, dy := polar.PolarToCartesian(p.Distance(), p.HeadingDeg)
	return r2.Vec{X: dx, Y: dy}
}

// Compensator marks Current cells whose motion-corrected prior position was
// occupied in Past.
type Compensator struct {
	Params Params
}

// New returns a Compensator for the given motion.
func New(p Params) *Compensator {
	return &Compensator{Params: p}
}

// BackProject returns the grid cell where an obstacle now at (radius, angle)
// would have appeared one cycle ago. Indices are truncated toward zero, not
// rounded; the angle is then wrapped into [0, 360). The radius is not range
// checked.
func (c *Compensator) BackProject(radius, angle int) (int, int) {
	x, y := polar.PolarToCartesian(float64(radius), float64(angle))
	prior := r2.Add(r2.Vec{X: x, Y: y}, c.Params.Displacement())

	r, a := polar.CartesianToPolar(prior.X, prior.Y)
	return int(math.Trunc(r)), polar.WrapIndex(int(math.Trunc(a)))
}

// FindStationaryPoints rebuilds the Stationary surface of g and returns the
// number of cells marked. Candidates that fall outside the grid are misses,
// not errors.
func (c *Compensator) FindStationaryPoints(g *grid.Grid) (int, error) {
	if g == nil {
		return 0, errors.New("motion: nil grid")
	}
	if err := g.Reset(grid.Stationary); err != nil {
		return 0, err
	}

	current, err := g.Points(grid.Current)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, cell := range current {
		pr, pa := c.BackProject(cell.Radius, cell.Angle)
		if !g.Occupied(grid.Past, pr, pa) {
			continue
		}
		if err := g.Set(grid.Stationary, cell.Radius, cell.Angle, true); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

// FindStationaryPoints runs one compensation pass over g with the given
// motion parameters.
func FindStationaryPoints(g *grid.Grid, p Params) (int, error) {
	return New(p).FindStationaryPoints(g)
}
