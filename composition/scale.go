package composition

import "fmt"

// Rescale recomputes every share's mass for newTotalMass from the unrounded
// percentages. Percentages are never derived again from masses.
func Rescale(item FormulaItem, newTotalMass float64) (FormulaItem, error) {
	if err := checkPositive(newTotalMass); err != nil {
		return item, fmt.Errorf("rescale %q: %w", item.Formula.Name, err)
	}

	exact := anchors(item.Shares)
	shares := make([]Share, len(item.Shares))
	for i, s := range item.Shares {
		s.Exact = exact[i]
		s.Grams = Round1(exact[i] * newTotalMass / 100)
		shares[i] = s
	}

	return FormulaItem{
		Formula:   item.Formula,
		TotalMass: newTotalMass,
		Shares:    shares,
	}, nil
}

// MergeFormula folds a repeated addition of the same formula into the
// existing item: the masses add up and the shares are rescaled.
func MergeFormula(existing FormulaItem, incomingTotalMass float64) (FormulaItem, error) {
	if err := checkPositive(incomingTotalMass); err != nil {
		return existing, err
	}
	return Rescale(existing, existing.TotalMass+incomingTotalMass)
}

// MergeHerb folds a repeated addition of the same herb into the existing item.
func MergeHerb(existing HerbItem, incomingMass float64) (HerbItem, error) {
	if err := checkPositive(incomingMass); err != nil {
		return existing, err
	}
	return HerbItem{Herb: existing.Herb, Mass: existing.Mass + incomingMass}, nil
}

// SetQuantity replaces the item's mass. Herb items accept MinHerbMass or
// more; formula items are rescaled.
func SetQuantity(item Item, newMass float64) (Item, error) {
	switch it := item.(type) {
	case HerbItem:
		if err := checkHerbMass(newMass); err != nil {
			return item, err
		}
		return HerbItem{Herb: it.Herb, Mass: newMass}, nil
	case FormulaItem:
		rescaled, err := Rescale(it, newMass)
		if err != nil {
			return item, err
		}
		return rescaled, nil
	default:
		return item, fmt.Errorf("unsupported item type %T", item)
	}
}

// anchors returns the unrounded percentage of every share. Shares saved
// without any fall back to their displayed percentages, rescaled to sum 100.
func anchors(shares []Share) []float64 {
	out := make([]float64, len(shares))
	anchored := false
	for i, s := range shares {
		out[i] = s.Exact
		if s.Exact > 0 {
			anchored = true
		}
	}
	if anchored {
		return out
	}

	sum := 0.0
	for _, s := range shares {
		sum += s.Percentage
	}
	for i, s := range shares {
		switch {
		case sum <= 0:
			out[i] = 100 / float64(len(shares))
		default:
			out[i] = s.Percentage * 100 / sum
		}
	}
	return out
}
