// Package units handles the speed units accepted for the rider's velocity.
// The engine works in metres per second.
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

const (
	mpsPerMPH  = 0.44704
	mpsPerKMPH = 1.0 / 3.6
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ValidUnitsString returns the valid units for error messages.
func ValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ToMPS converts a speed given in unit to metres per second.
func ToMPS(speed float64, unit string) (float64, error) {
	switch unit {
	case MPS:
		return speed, nil
	case MPH:
		return speed * mpsPerMPH, nil
	case KMPH, KPH:
		return speed * mpsPerKMPH, nil
	default:
		return 0, fmt.Errorf("unknown speed unit %q (expected one of %s)", unit, ValidUnitsString())
	}
}

// FromMPS converts metres per second to unit for display. Unknown units
// return the input unchanged.
func FromMPS(speedMPS float64, unit string) float64 {
	switch unit {
	case MPH:
		return speedMPS / mpsPerMPH
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
