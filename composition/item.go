package composition

import "github.com/giygas/herbolaria-api/herbs/entities"

// Kind tags the two shapes of a prescription item.
type Kind string

const (
	KindHerb    Kind = "herb"
	KindFormula Kind = "formula"
)

// Item is a line of a prescription: either a HerbItem or a FormulaItem.
type Item interface {
	Kind() Kind
	// Quantity is the item's mass in grams: the herb mass or the formula
	// total mass.
	Quantity() float64
	isItem()
}

// HerbItem is a single herb at a given mass.
type HerbItem struct {
	Herb entities.Herb `json:"herb"`
	Mass float64       `json:"mass"`
}

func (HerbItem) Kind() Kind          { return KindHerb }
func (i HerbItem) Quantity() float64 { return i.Mass }
func (HerbItem) isItem()             {}

// Share is a normalized formula share. Both Percentage and Grams are always
// populated. Exact holds the unrounded normalized percentage and is the
// anchor every later mass is derived from; Percentage is its rounded display
// value.
type Share struct {
	HerbID     int     `json:"herbId,omitempty"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	Exact      float64 `json:"exactPercentage,omitempty"`
	Grams      float64 `json:"grams"`
}

// FormulaItem is a whole formula at a given total mass. Shares carry the
// per-herb mass derived at TotalMass.
type FormulaItem struct {
	Formula   entities.Formula `json:"formula"`
	TotalMass float64          `json:"totalMass"`
	Shares    []Share          `json:"shares"`
}

func (FormulaItem) Kind() Kind          { return KindFormula }
func (i FormulaItem) Quantity() float64 { return i.TotalMass }
func (FormulaItem) isItem()             {}

func sameHerb(a, b entities.Herb) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}

func sameFormula(a, b entities.Formula) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}
