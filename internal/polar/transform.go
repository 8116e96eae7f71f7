// Package polar converts between the radar's polar cell coordinates and
// Cartesian coordinates in the sensor plane.
//
// Convention: angle 0 lies on +X and grows counter-clockwise toward +Y
// (standard atan2 frame). Grid indexing happens elsewhere; nothing here
// normalises angles unless asked to.
package polar

import "math"

// FullCircle is the number of one-degree angle buckets in a revolution.
const FullCircle = 360

// CartesianPlaces is the rounding applied by PolarToCartesian.
const CartesianPlaces = 3

// CartesianToPolar converts (x, y) to a radius and an angle in degrees.
// The angle comes straight from atan2 and lies in (-180, 180]; callers that
// index a grid must reduce it into [0, 360).
func CartesianToPolar(x, y float64) (radius, angleDeg float64) {
	radius = math.Hypot(x, y)
	angleDeg = math.Atan2(y, x) * 180.0 / math.Pi
	return
}

// PolarToCartesian converts a radius and an angle in degrees into (x, y),
// rounded to CartesianPlaces decimals so repeated conversions are stable.
func PolarToCartesian(radius, angleDeg float64) (x, y float64) {
	angleRad := angleDeg * math.Pi / 180.0
	x = Round(radius*math.Cos(angleRad), CartesianPlaces)
	y = Round(radius*math.Sin(angleRad), CartesianPlaces)
	return
}

// Round rounds v half away from zero to the given number of decimal places.
// Negative zero is returned as zero.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

// NormalizeDegrees reduces an angle into [0, 360).
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, FullCircle)
	if a < 0 {
		a += FullCircle
	}
	if a >= FullCircle {
		a = 0
	}
	return a
}

// WrapIndex reduces an integer angle bucket into [0, 360).
func WrapIndex(a int) int {
	a %= FullCircle
	if a < 0 {
		a += FullCircle
	}
	return a
}

// AngleDelta returns |a-b| for two integer angle buckets without wrapping.
func AngleDelta(a, b int) int {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
