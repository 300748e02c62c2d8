// Package units converts entity speeds, recorded in metres per second, for
// display.
package units

import (
	"fmt"
	"slices"
)

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// Parse returns unit if it is valid, or an error listing the valid units.
func Parse(unit string) (string, error) {
	if !IsValid(unit) {
		return "", fmt.Errorf("invalid speed unit %q, want one of %v", unit, ValidUnits)
	}
	return unit, nil
}

// ConvertSpeed converts a speed from metres per second to the target units.
// Unknown units leave the speed in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label returns the display suffix for a unit.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}

// SpeedMeter keeps a running mean of speeds. The zero value is ready to use.
type SpeedMeter struct {
	sum   float64
	count int
}

// Add records one speed in m/s. Non-positive speeds are parked entities and
// are not counted.
func (m *SpeedMeter) Add(speedMPS float64) {
	if speedMPS > 0 {
		m.sum += speedMPS
		m.count++
	}
}

// Mean returns the mean recorded speed in the target units and resets the
// meter. It is zero when nothing moved.
func (m *SpeedMeter) Mean(targetUnits string) float64 {
	if m.count == 0 {
		return 0
	}
	mean := m.sum / float64(m.count)
	m.sum, m.count = 0, 0
	return ConvertSpeed(mean, targetUnits)
}
