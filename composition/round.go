// Package composition turns selected herbs and formulas into a
// dosage-consistent prescription. It normalizes formula shares into
// percentage and mass pairs, rescales and merges prescription items, and
// flattens formulas into their constituent herbs.
//
// Every function is pure: items and prescriptions are returned as new
// values and the inputs are left untouched.
package composition

import "math"

// Round1 rounds x to one decimal place. It is the single rounding policy of
// the engine: every derived percentage and mass goes through it.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}
