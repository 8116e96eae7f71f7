package grid

import "errors"

var (
	// ErrInvalidIndex reports a radius or angle outside the grid bounds.
	ErrInvalidIndex = errors.New("invalid grid index")

	// ErrInvalidSurface reports a surface value outside the Surface enumeration.
	ErrInvalidSurface = errors.New("invalid surface")

	// ErrConfiguration reports grid parameters the sensor cannot support,
	// such as a maximum radius above HardMaxRadius.
	ErrConfiguration = errors.New("invalid radar configuration")
)
