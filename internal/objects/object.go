// Package objects turns labelled detection points into stationary object
// records.
package objects

import (
	"fmt"
	"math"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OpenSourceIronman/BikeRADAR/internal/polar"
)

// DisplayPlaces is the rounding applied to display-frame positions.
const DisplayPlaces = 5

// PolarPoint is one member cell of an object.
type PolarPoint struct {
	Radius int `json:"radius"`
	Angle  int `json:"angle"`
}

// Polyline holds the outline as raw parallel lists. No hull, smoothing or
// de-duplication is applied.
type Polyline struct {
	Radius []int `json:"radius"`
	Angle  []int `json:"angle"`
}

// Len returns the number of vertices.
func (p Polyline) Len() int { return len(p.Radius) }

// Position is a display-frame Cartesian coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StationaryObject is one group of stationary cells seen during a cycle.
type StationaryObject struct {
	// ID is the ordinal of the object within its aggregation pass.
	ID int `json:"id"`
	// GroupID is the cluster label the object was built from.
	GroupID int          `json:"group_id"`
	Points  []PolarPoint `json:"points"`
	Outline Polyline     `json:"outline"`
}

// AddPoint appends a member cell.
func (o *StationaryObject) AddPoint(radius, angle int) {
	o.Points = append(o.Points, PolarPoint{Radius: radius, Angle: angle})
}

// DefineOutline sets the outline to the member points in insertion order.
func (o *StationaryObject) DefineOutline() {
	o.Outline = Polyline{
		Radius: make([]int, len(o.Points)),
		Angle:  make([]int, len(o.Points)),
	}
	for i, p := range o.Points {
		o.Outline.Radius[i] = p.Radius
		o.Outline.Angle[i] = p.Angle
	}
}

// Positions returns the member points in the display frame: the sensor
// frame rotated 90° counter-clockwise (x' = -y, y' = x), so angle 0 points
// up. Values are rounded to DisplayPlaces with negative zero cleared.
func (o StationaryObject) Positions() []Position {
	out := make([]Position, len(o.Points))
	for i, p := range o.Points {
		out[i] = DisplayPosition(p.Radius, p.Angle)
	}
	return out
}

// DisplayPosition converts one polar cell into the display frame.
func DisplayPosition(radius, angle int) Position {
	rad := float64(angle) * math.Pi / 180.0
	x := float64(radius) * math.Cos(rad)
	y := float64(radius) * math.Sin(rad)
	return Position{
		X: polar.Round(-y, DisplayPlaces),
		Y: polar.Round(x, DisplayPlaces),
	}
}

// Geometry returns the outline in the display frame: a Point for a
// single-cell object, a LineString otherwise. An object with no points
// yields an empty geometry.
func (o StationaryObject) Geometry() geom.Geometry {
	pos := o.Positions()
	switch len(pos) {
	case 0:
		return geom.Geometry{}
	case 1:
		return geom.NewPoint(geom.Coordinates{
			XY:   geom.XY{X: pos[0].X, Y: pos[0].Y},
			Type: geom.DimXY,
		}).AsGeometry()
	}

	flat := make([]float64, 0, len(pos)*2)
	for _, p := range pos {
		flat = append(flat, p.X, p.Y)
	}
	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq).AsGeometry()
}

// OutlineWKT returns Geometry() as well-known text.
func (o StationaryObject) OutlineWKT() string {
	return o.Geometry().AsText()
}

func (o StationaryObject) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "StationaryObject #%d (X-Y Points: [", o.ID)
	for i, p := range o.Positions() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%g, %g)", p.X, p.Y)
	}
	fmt.Fprintf(&b, "] & Polar Points: (Radius=%v , Theta=%v))", o.Outline.Radius, o.Outline.Angle)
	return b.String()
}
