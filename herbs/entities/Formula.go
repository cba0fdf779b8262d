package entities

// DefaultReferenceTotal is the standardization base of a formula when the
// catalog entry does not state one.
const DefaultReferenceTotal = 100.0

// FormulaShare is one herb's participation in a formula as authored in the
// catalog. Percentage and Grams are optional; at least one is expected but
// malformed imports may carry neither. HerbID is 0 when the source did not
// know the herb id and only the name is available.
type FormulaShare struct {
	HerbID     int      `json:"herbId,omitempty"`
	Name       string   `json:"name"`
	Percentage *float64 `json:"percentage,omitempty"`
	Grams      *float64 `json:"grams,omitempty"`
}

// Formula is a multi-herb catalog entry with an ordered list of shares.
type Formula struct {
	ID                 int            `json:"id"`
	Name               string         `json:"name"`
	AltNames           []string       `json:"altNames,omitempty"`
	Category           string         `json:"category,omitempty"`
	Contraindications  Text           `json:"contraindications,omitempty"`
	Cautions           Text           `json:"cautions,omitempty"`
	Shares             []FormulaShare `json:"shares"`
	ReferenceTotalMass float64        `json:"referenceTotalMass,omitempty"`
}

// ReferenceTotal returns the mass the shares' grams refer to, 100 when unset.
func (f Formula) ReferenceTotal() float64 {
	if f.ReferenceTotalMass > 0 {
		return f.ReferenceTotalMass
	}
	return DefaultReferenceTotal
}

func (f Formula) ContraindicationText() string { return f.Contraindications.String() }

func (f Formula) CautionText() string { return f.Cautions.String() }

// Float returns a pointer to v, handy when building shares by hand.
func Float(v float64) *float64 {
	return &v
}
