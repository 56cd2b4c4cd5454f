// Package format renders TimeForged numbers for humans.
package format

import (
	"fmt"
	"math"
)

// Duration renders seconds as "<h>h <m>m" when at least an hour has
// elapsed, otherwise "<m>m". Leftover seconds are dropped, never rounded.
// Negative input is clamped to zero.
func Duration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Percent renders p with no decimals, rounding halves away from zero.
// Values are printed as given; out-of-range input is not clamped.
func Percent(p float64) string {
	return fmt.Sprintf("%.0f%%", math.Round(p))
}
