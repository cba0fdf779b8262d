package composition

import (
	"fmt"

	"github.com/giygas/herbolaria-api/herbs/entities"
)

// Normalize converts authored shares into canonical shares at totalMass,
// using 100 as the reference total for grams-only shares.
func Normalize(shares []entities.FormulaShare, totalMass float64) ([]Share, error) {
	return normalize(shares, totalMass, entities.DefaultReferenceTotal)
}

// NormalizeFormula normalizes the formula's shares at totalMass, falling back
// to the formula's own reference total when no share states a mass.
func NormalizeFormula(formula entities.Formula, totalMass float64) ([]Share, error) {
	shares, err := normalize(formula.Shares, totalMass, formula.ReferenceTotal())
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", formula.Name, err)
	}
	return shares, nil
}

// normalize derives a raw percentage per share, rescales the raw values so
// they sum to exactly 100, then computes the mass of each share at
// totalMass. Displayed percentages and masses are rounded to one decimal;
// the unrounded percentage is kept on the share.
func normalize(shares []entities.FormulaShare, totalMass, reference float64) ([]Share, error) {
	if len(shares) == 0 {
		return nil, ErrEmptyComposition
	}
	if err := checkPositive(totalMass); err != nil {
		return nil, err
	}

	raw := RawPercentages(shares, reference)

	sum := 0.0
	for _, p := range raw {
		sum += p
	}

	equal := 100 / float64(len(shares))
	for i := range raw {
		switch {
		case sum <= 0:
			raw[i] = equal
		case sum != 100:
			raw[i] = raw[i] * 100 / sum
		}
	}

	out := make([]Share, len(shares))
	for i, s := range shares {
		out[i] = Share{
			HerbID:     s.HerbID,
			Name:       s.Name,
			Percentage: Round1(raw[i]),
			Exact:      raw[i],
			Grams:      Round1(raw[i] * totalMass / 100),
		}
	}
	return out, nil
}

// RawPercentages returns the percentage each share claims before any
// rescaling: the stated percentage, else its share of the summed grams,
// else an equal part.
func RawPercentages(shares []entities.FormulaShare, reference float64) []float64 {
	sumGrams := 0.0
	for _, s := range shares {
		if s.Grams != nil {
			sumGrams += *s.Grams
		}
	}
	if sumGrams <= 0 {
		sumGrams = reference
		if sumGrams <= 0 {
			sumGrams = entities.DefaultReferenceTotal
		}
	}

	raw := make([]float64, len(shares))
	for i, s := range shares {
		switch {
		case s.Percentage != nil:
			raw[i] = *s.Percentage
		case s.Grams != nil:
			raw[i] = *s.Grams / sumGrams * 100
		default:
			raw[i] = 100 / float64(len(shares))
		}
	}
	return raw
}
