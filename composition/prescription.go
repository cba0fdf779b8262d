package composition

import (
	"fmt"

	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/logging"
)

// Prescription is an ordered list of items. It is an owned value: every
// operation below returns a new Prescription with a bumped Version and
// leaves its input untouched, so holders must replace their copy.
type Prescription struct {
	Version int    `json:"version"`
	Items   []Item `json:"items"`
}

func (p Prescription) with(items []Item) Prescription {
	return Prescription{Version: p.Version + 1, Items: items}
}

func (p Prescription) cloneItems() []Item {
	items := make([]Item, len(p.Items), len(p.Items)+1)
	copy(items, p.Items)
	return items
}

// AddHerb appends herb at mass, or merges it into an existing item for the
// same herb (matched by id, else by name).
func AddHerb(p Prescription, herb entities.Herb, mass float64) (Prescription, error) {
	if err := checkPositive(mass); err != nil {
		return p, fmt.Errorf("add herb %q: %w", herb.Name, err)
	}

	items := p.cloneItems()
	for i, item := range items {
		existing, ok := item.(HerbItem)
		if !ok || !sameHerb(existing.Herb, herb) {
			continue
		}
		merged, err := MergeHerb(existing, mass)
		if err != nil {
			return p, err
		}
		items[i] = merged
		return p.with(items), nil
	}

	return p.with(append(items, HerbItem{Herb: herb, Mass: mass})), nil
}

// AddFormula appends formula at totalMass, or merges it into an existing
// item for the same formula so that repeated additions accumulate on one
// line.
func AddFormula(p Prescription, formula entities.Formula, totalMass float64) (Prescription, error) {
	shares, err := NormalizeFormula(formula, totalMass)
	if err != nil {
		return p, err
	}

	items := p.cloneItems()
	for i, item := range items {
		existing, ok := item.(FormulaItem)
		if !ok || !sameFormula(existing.Formula, formula) {
			continue
		}
		merged, err := MergeFormula(existing, totalMass)
		if err != nil {
			return p, err
		}
		items[i] = merged
		return p.with(items), nil
	}

	return p.with(append(items, FormulaItem{Formula: formula, TotalMass: totalMass, Shares: shares})), nil
}

// Expansion reports what happened to each constituent when a formula was
// added as individual herbs.
type Expansion struct {
	Added []HerbItem
	// Dropped holds constituents whose mass rounds to zero at the requested
	// total; they are left out of the prescription.
	Dropped []HerbItem
}

// Unresolved counts added constituents the catalog could not resolve.
func (e Expansion) Unresolved() int {
	n := 0
	for _, h := range e.Added {
		if IsPlaceholder(h.Herb) {
			n++
		}
	}
	return n
}

// AddFormulaAsIndividualHerbs flattens formula at totalMass and adds every
// constituent herb on its own line, merging with herbs already present.
func AddFormulaAsIndividualHerbs(p Prescription, formula entities.Formula, totalMass float64, catalog HerbCatalog) (Prescription, error) {
	next, _, err := ExpandFormula(p, formula, totalMass, catalog)
	return next, err
}

// ExpandFormula is AddFormulaAsIndividualHerbs that also reports which
// constituents were added and which were dropped.
func ExpandFormula(p Prescription, formula entities.Formula, totalMass float64, catalog HerbCatalog) (Prescription, Expansion, error) {
	herbs, err := Flatten(formula, totalMass, catalog)
	if err != nil {
		return p, Expansion{}, err
	}

	var expansion Expansion
	next := Prescription{Version: p.Version, Items: p.cloneItems()}
	for _, h := range herbs {
		if h.Mass <= 0 {
			logging.Warn("Formula constituent rounds to zero mass, skipping",
				"formula", formula.Name, "herb", h.Herb.Name, "total_mass", totalMass)
			expansion.Dropped = append(expansion.Dropped, h)
			continue
		}
		if next, err = AddHerb(next, h.Herb, h.Mass); err != nil {
			return p, Expansion{}, err
		}
		expansion.Added = append(expansion.Added, h)
	}
	next.Version = p.Version + 1
	return next, expansion, nil
}

// SetItemQuantity sets the mass of the item at index.
func SetItemQuantity(p Prescription, index int, newMass float64) (Prescription, error) {
	if index < 0 || index >= len(p.Items) {
		return p, fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}

	updated, err := SetQuantity(p.Items[index], newMass)
	if err != nil {
		return p, err
	}

	items := p.cloneItems()
	items[index] = updated
	return p.with(items), nil
}

// RemoveItem drops the item at index.
func RemoveItem(p Prescription, index int) (Prescription, error) {
	if index < 0 || index >= len(p.Items) {
		return p, fmt.Errorf("%w: index %d", ErrItemNotFound, index)
	}

	items := make([]Item, 0, len(p.Items)-1)
	items = append(items, p.Items[:index]...)
	items = append(items, p.Items[index+1:]...)
	return p.with(items), nil
}

// Clear removes every item.
func Clear(p Prescription) Prescription {
	return p.with([]Item{})
}

// TotalMass sums the quantity of every item.
func TotalMass(p Prescription) float64 {
	total := 0.0
	for _, item := range p.Items {
		total += item.Quantity()
	}
	return Round1(total)
}
