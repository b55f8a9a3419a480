// Package units converts speeds for display. Metrics are computed and stored
// in m/s; conversion happens only when a summary is printed.
package units

import (
	"slices"
	"strings"
)

const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

const (
	mpsToMPH  = 2.2369362920544
	mpsToKMPH = 3.6
)

// ValidUnits lists the accepted -units values in help order.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

func IsValid(unit string) bool { return slices.Contains(ValidUnits, unit) }

// GetValidUnitsString joins ValidUnits for flag help and error messages.
func GetValidUnitsString() string { return strings.Join(ValidUnits, ", ") }

// ConvertSpeed converts a speed from metres per second to the target units.
// Unknown units return the input unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * mpsToMPH
	case KMPH, KPH:
		return speedMPS * mpsToKMPH
	}
	return speedMPS
}

// MPSToKMH is ConvertSpeed(v, KMPH), used for the km/h fields of player
// metrics.
func MPSToKMH(speedMPS float64) float64 { return speedMPS * mpsToKMPH }
