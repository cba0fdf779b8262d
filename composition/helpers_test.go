package composition

import (
	"math"
	"testing"

	"github.com/giygas/herbolaria-api/herbs/entities"
)

type fakeCatalog struct {
	herbs    []entities.Herb
	formulas []entities.Formula
}

func (c *fakeCatalog) HerbByID(id int) (entities.Herb, bool) {
	for _, h := range c.herbs {
		if h.ID == id {
			return h, true
		}
	}
	return entities.Herb{}, false
}

func (c *fakeCatalog) HerbByName(name string) (entities.Herb, bool) {
	for _, h := range c.herbs {
		if h.Name == name {
			return h, true
		}
	}
	return entities.Herb{}, false
}

func (c *fakeCatalog) FormulaByID(id int) (entities.Formula, bool) {
	for _, f := range c.formulas {
		if f.ID == id {
			return f, true
		}
	}
	return entities.Formula{}, false
}

func newTestCatalog() *fakeCatalog {
	return &fakeCatalog{
		herbs: []entities.Herb{
			{ID: 1, Name: "Ren Shen", Nature: "tibia", Flavor: "dulce"},
			{ID: 2, Name: "Bai Zhu", Nature: "tibia", Flavor: "amarga"},
			{ID: 3, Name: "Fu Ling", Nature: "neutra", Flavor: "dulce"},
			{ID: 4, Name: "Zhi Gan Cao", Nature: "tibia", Flavor: "dulce", Cautions: entities.NewText("Precaución en hipertensión")},
		},
	}
}

// fourGentlemen is the name-only formula used throughout the tests.
func fourGentlemen() entities.Formula {
	return entities.Formula{
		ID:   10,
		Name: "Si Jun Zi Tang",
		Shares: []entities.FormulaShare{
			{Name: "Ren Shen", Grams: entities.Float(30)},
			{Name: "Bai Zhu", Grams: entities.Float(30)},
			{Name: "Fu Ling", Grams: entities.Float(30)},
			{Name: "Zhi Gan Cao", Grams: entities.Float(10)},
		},
	}
}

func percentages(shares []Share) []float64 {
	out := make([]float64, len(shares))
	for i, s := range shares {
		out[i] = s.Percentage
	}
	return out
}

func grams(shares []Share) []float64 {
	out := make([]float64, len(shares))
	for i, s := range shares {
		out[i] = s.Grams
	}
	return out
}

func assertFloats(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %d values, got %d (%v)", label, len(want), len(got), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("%s[%d]: expected %v, got %v", label, i, want[i], got[i])
		}
	}
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
