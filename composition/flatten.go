package composition

import (
	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/logging"
)

// HerbCatalog resolves herb references found in formula shares.
type HerbCatalog interface {
	HerbByID(id int) (entities.Herb, bool)
	HerbByName(name string) (entities.Herb, bool)
}

// Flatten expands a formula at totalMass into standalone herb items, one per
// share, in share order.
func Flatten(formula entities.Formula, totalMass float64, catalog HerbCatalog) ([]HerbItem, error) {
	shares, err := NormalizeFormula(formula, totalMass)
	if err != nil {
		return nil, err
	}
	return flattenShares(shares, catalog), nil
}

// FlattenItem expands an existing formula item using its already normalized
// shares, so the breakdown matches what the item displays.
func FlattenItem(item FormulaItem, catalog HerbCatalog) ([]HerbItem, error) {
	if len(item.Shares) == 0 {
		return nil, ErrEmptyComposition
	}
	return flattenShares(item.Shares, catalog), nil
}

func flattenShares(shares []Share, catalog HerbCatalog) []HerbItem {
	items := make([]HerbItem, len(shares))
	for i, s := range shares {
		items[i] = HerbItem{Herb: ResolveHerb(s.HerbID, s.Name, catalog), Mass: s.Grams}
	}
	return items
}

// ResolveHerb looks the herb up by id when it is known, then by exact name.
// When neither matches, a placeholder herb with id 0 carrying only the name
// is returned so callers always get a populated record.
func ResolveHerb(id int, name string, catalog HerbCatalog) entities.Herb {
	if catalog != nil {
		if id != 0 {
			if herb, ok := catalog.HerbByID(id); ok {
				return herb
			}
		}
		if name != "" {
			if herb, ok := catalog.HerbByName(name); ok {
				return herb
			}
		}
	}

	logging.Debug("Unresolved herb reference, using placeholder", "herb_id", id, "name", name)
	return entities.Herb{ID: 0, Name: name}
}

// IsPlaceholder reports whether herb was synthesized by ResolveHerb.
func IsPlaceholder(herb entities.Herb) bool {
	return herb.ID == 0
}
