package composition

import (
	"fmt"

	"github.com/giygas/herbolaria-api/herbs/entities"
)

// RecordItem is the persisted shape of a prescription line. Formula lines
// always carry CustomFormula, the full composition resolved at save time, so
// a saved prescription stays readable after the catalog entry changes.
type RecordItem struct {
	Type          Kind             `json:"type"`
	ID            int              `json:"id"`
	Name          string           `json:"name"`
	Quantity      float64          `json:"quantity"`
	CustomFormula *FormulaSnapshot `json:"customFormula,omitempty"`
}

// FormulaSnapshot is the denormalized composition of a formula item.
type FormulaSnapshot struct {
	Name              string   `json:"name"`
	Category          string   `json:"category,omitempty"`
	Contraindications []string `json:"contraindications,omitempty"`
	Cautions          []string `json:"cautions,omitempty"`
	TotalMass         float64  `json:"totalMass"`
	Shares            []Share  `json:"shares"`
}

// Record is the persisted prescription item list.
type Record struct {
	Items []RecordItem `json:"items"`
}

// ToRecord materializes p into its persisted shape.
func ToRecord(p Prescription) Record {
	record := Record{Items: make([]RecordItem, 0, len(p.Items))}
	for _, item := range p.Items {
		switch it := item.(type) {
		case HerbItem:
			record.Items = append(record.Items, RecordItem{
				Type:     KindHerb,
				ID:       it.Herb.ID,
				Name:     it.Herb.Name,
				Quantity: it.Mass,
			})
		case FormulaItem:
			shares := make([]Share, len(it.Shares))
			copy(shares, it.Shares)
			record.Items = append(record.Items, RecordItem{
				Type:     KindFormula,
				ID:       it.Formula.ID,
				Name:     it.Formula.Name,
				Quantity: it.TotalMass,
				CustomFormula: &FormulaSnapshot{
					Name:              it.Formula.Name,
					Category:          it.Formula.Category,
					Contraindications: it.Formula.Contraindications,
					Cautions:          it.Formula.Cautions,
					TotalMass:         it.TotalMass,
					Shares:            shares,
				},
			})
		}
	}
	return record
}

// FormulaCatalog resolves formulas by id.
type FormulaCatalog interface {
	FormulaByID(id int) (entities.Formula, bool)
}

// FromRecord hydrates a prescription from its persisted shape. Formula lines
// are rebuilt from their snapshot when present, else from the catalog; herb
// lines resolve through the herb catalog and degrade to placeholders.
func FromRecord(record Record, herbs HerbCatalog, formulas FormulaCatalog) (Prescription, error) {
	p := Prescription{Items: make([]Item, 0, len(record.Items))}

	for i, ri := range record.Items {
		if err := checkPositive(ri.Quantity); err != nil {
			return Prescription{}, fmt.Errorf("record item %d: %w", i, err)
		}

		switch ri.Type {
		case KindHerb:
			herb := ResolveHerb(ri.ID, ri.Name, herbs)
			p.Items = append(p.Items, HerbItem{Herb: herb, Mass: ri.Quantity})

		case KindFormula:
			item, err := formulaFromRecord(ri, formulas)
			if err != nil {
				return Prescription{}, fmt.Errorf("record item %d: %w", i, err)
			}
			p.Items = append(p.Items, item)

		default:
			return Prescription{}, fmt.Errorf("record item %d: unknown type %q", i, ri.Type)
		}
	}

	return p, nil
}

func formulaFromRecord(ri RecordItem, formulas FormulaCatalog) (FormulaItem, error) {
	if snap := ri.CustomFormula; snap != nil {
		if len(snap.Shares) == 0 {
			return FormulaItem{}, ErrEmptyComposition
		}
		formula := entities.Formula{
			ID:                ri.ID,
			Name:              snap.Name,
			Category:          snap.Category,
			Contraindications: entities.NewText(snap.Contraindications...),
			Cautions:          entities.NewText(snap.Cautions...),
		}
		exact := anchors(snap.Shares)
		for i, s := range snap.Shares {
			formula.Shares = append(formula.Shares, entities.FormulaShare{
				HerbID:     s.HerbID,
				Name:       s.Name,
				Percentage: entities.Float(exact[i]),
				Grams:      entities.Float(s.Grams),
			})
		}
		shares := make([]Share, len(snap.Shares))
		copy(shares, snap.Shares)
		return Rescale(FormulaItem{Formula: formula, TotalMass: ri.Quantity, Shares: shares}, ri.Quantity)
	}

	if formulas == nil {
		return FormulaItem{}, fmt.Errorf("formula %d has no snapshot and no catalog to resolve it", ri.ID)
	}
	formula, ok := formulas.FormulaByID(ri.ID)
	if !ok {
		return FormulaItem{}, fmt.Errorf("formula %d has no snapshot and is not in the catalog", ri.ID)
	}
	shares, err := NormalizeFormula(formula, ri.Quantity)
	if err != nil {
		return FormulaItem{}, err
	}
	return FormulaItem{Formula: formula, TotalMass: ri.Quantity, Shares: shares}, nil
}
