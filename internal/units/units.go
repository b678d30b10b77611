// Package units converts raw metric API fields into the display units used by
// the dashboard and derives classification bands from them.
package units

import (
	"math"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	cmPerInch   = 2.54
	mmPerInch   = 25.4
	metersPerMi = 1609.34
	kmhPerMph   = 1.609344
)

// CentimetersToInches converts snowfall depth from cm to inches.
func CentimetersToInches(cm float64) float64 { return cm / cmPerInch }

// MillimetersToInches converts precipitation from mm to inches.
func MillimetersToInches(mm float64) float64 { return mm / mmPerInch }

// MetersToMiles converts visibility from meters to miles.
func MetersToMiles(m float64) float64 { return m / metersPerMi }

// KmhToMph converts wind speed from km/h to mph.
func KmhToMph(kmh float64) float64 { return kmh / kmhPerMph }

// CelsiusToFahrenheit converts a temperature from °C to °F.
func CelsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Format1 renders v with exactly one decimal.
func Format1(v float64) string {
	return strconv.FormatFloat(Round1(v), 'f', 1, 64)
}

// FormatInches renders a length in inches, e.g. 3.9".
func FormatInches(v float64) string {
	return Format1(v) + `"`
}

// Title capitalises a band or category label for display. A Caser is
// stateful, so each call gets its own.
func Title(s string) string {
	return cases.Title(language.English).String(s)
}
