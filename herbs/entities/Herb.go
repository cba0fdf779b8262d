package entities

// Herb is a single herb from the catalog. It is reference data and is never
// modified by the composition engine.
type Herb struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Nature            string `json:"nature,omitempty"`
	Flavor            string `json:"flavor,omitempty"`
	Contraindications Text   `json:"contraindications,omitempty"`
	Cautions          Text   `json:"cautions,omitempty"`
}

func (h Herb) ContraindicationText() string { return h.Contraindications.String() }

func (h Herb) CautionText() string { return h.Cautions.String() }
