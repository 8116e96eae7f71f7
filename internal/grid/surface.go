package grid

import (
	"fmt"
	"strings"
)

// Surface selects one of the grid's three detection layers.
type Surface int

const (
	// Past holds the previous scan, copied from Current on Advance.
	Past Surface = iota
	// Current holds the scan being processed this cycle.
	Current
	// Stationary holds cells confirmed in both Past and Current after
	// motion compensation. Rebuilt every cycle.
	Stationary

	numSurfaces
)

// Surfaces lists every valid surface in declaration order.
var Surfaces = []Surface{Past, Current, Stationary}

// Valid reports whether s is one of the declared surfaces.
func (s Surface) Valid() bool {
	return s >= Past && s < numSurfaces
}

func (s Surface) String() string {
	switch s {
	case Past:
		return "past"
	case Current:
		return "current"
	case Stationary:
		return "stationary"
	default:
		return fmt.Sprintf("Surface(%d)", int(s))
	}
}

// ParseSurface maps a surface name (case-insensitive) to its Surface value.
// It exists for string-typed boundaries such as HTTP query parameters.
func ParseSurface(name string) (Surface, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "past":
		return Past, nil
	case "current":
		return Current, nil
	case "stationary":
		return Stationary, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected past, current or stationary)", ErrInvalidSurface, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Surface) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSurface, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Surface) UnmarshalText(text []byte) error {
	v, err := ParseSurface(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
