// Package interfaces defines the contracts between the catalog, prescription
// and HTTP layers of the herbolaria API so each can be tested in isolation.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/safety"
)

// CatalogQualityReport summarizes data quality issues found in a catalog load
type CatalogQualityReport struct {
	DuplicateHerbIDs     []int
	DuplicateFormulaIDs  []int
	HerbsWithoutName     int
	EmptyFormulas        []int // formula ids with no shares
	UnresolvedReferences int   // formula shares whose herb is not in the catalog
	SharesWithoutDose    int   // shares carrying neither percentage nor grams
	// Formula ids whose raw percentages deviate from 100 by more than a point
	// and get silently rescaled
	RescaledFormulas []int
}

// CatalogStore provides thread-safe access to the herb and formula catalog
// with atomic swaps for zero-downtime reloads.
type CatalogStore interface {
	composition.HerbCatalog
	composition.FormulaCatalog

	GetHerbs() []entities.Herb
	GetFormulas() []entities.Formula
	SearchHerbs(query string) []entities.Herb
	SearchFormulas(query string) []entities.Formula
	GetLastUpdated() time.Time
	GetServerStartTime() time.Time
	IsUpdating() bool

	UpdateData(herbs []entities.Herb, formulas []entities.Formula)
	BeginUpdate() bool
	EndUpdate()
}

// CatalogParser loads the catalog from its source files
type CatalogParser interface {
	ParseCatalog() ([]entities.Herb, []entities.Formula, error)
}

// RulesParser loads the optional custom safety rules
type RulesParser interface {
	ParseRules() (safety.RuleTable, error)
}

// Scheduler manages the background jobs
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler groups the API endpoints
type HTTPHandler interface {
	// Catalog
	ListHerbs(w http.ResponseWriter, r *http.Request)
	GetHerb(w http.ResponseWriter, r *http.Request)
	HerbWarnings(w http.ResponseWriter, r *http.Request)
	ListFormulas(w http.ResponseWriter, r *http.Request)
	GetFormula(w http.ResponseWriter, r *http.Request)
	FormulaComposition(w http.ResponseWriter, r *http.Request)
	FormulaWarnings(w http.ResponseWriter, r *http.Request)

	// Prescription drafts
	CreatePrescription(w http.ResponseWriter, r *http.Request)
	GetPrescription(w http.ResponseWriter, r *http.Request)
	DeletePrescription(w http.ResponseWriter, r *http.Request)
	AddHerb(w http.ResponseWriter, r *http.Request)
	AddFormula(w http.ResponseWriter, r *http.Request)
	SetItemQuantity(w http.ResponseWriter, r *http.Request)
	RemoveItem(w http.ResponseWriter, r *http.Request)
	ClearItems(w http.ResponseWriter, r *http.Request)
	SetConditions(w http.ResponseWriter, r *http.Request)
	SavePrescription(w http.ResponseWriter, r *http.Request)

	// Saved records
	ListRecords(w http.ResponseWriter, r *http.Request)
	GetRecord(w http.ResponseWriter, r *http.Request)
	ReopenRecord(w http.ResponseWriter, r *http.Request)

	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker reports the service health
type HealthChecker interface {
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled catalog reload
	CalculateNextUpdate() time.Time
}

// DataValidator validates user input and catalog data
type DataValidator interface {
	ValidateInput(input string) error
	ValidateID(input string) (int, error)
	ValidateIndex(input string) (int, error)
	ValidateQuantity(quantity float64) error
	ValidateConditions(keys []string) ([]string, error)
	ReportCatalogQuality(herbs []entities.Herb, formulas []entities.Formula) *CatalogQualityReport
}

// Draft is a prescription being edited, with the patient conditions used to
// evaluate warnings.
type Draft struct {
	ID           string                   `json:"id"`
	Patient      string                   `json:"patient,omitempty"`
	Conditions   []string                 `json:"conditions"`
	Prescription composition.Prescription `json:"-"`
	CreatedAt    time.Time                `json:"createdAt"`
	UpdatedAt    time.Time                `json:"updatedAt"`
}

// DraftStore keeps drafts in memory. Update applies fn under the draft's lock;
// an expectedVersion >= 0 must match the current prescription version.
type DraftStore interface {
	Create(patient string, conditions []string) Draft
	Get(id string) (Draft, error)
	Update(id string, expectedVersion int, fn func(Draft) (Draft, error)) (Draft, error)
	Delete(id string) error
	PurgeIdle(ttl time.Duration) int
	Count() int
}

// SavedRecord is a saved prescription with its snapshot composition
type SavedRecord struct {
	ID           string             `json:"id"`
	DraftID      string             `json:"draftId,omitempty"`
	Patient      string             `json:"patient,omitempty"`
	Conditions   []string           `json:"conditions"`
	Record       composition.Record `json:"record"`
	TotalMass    float64            `json:"totalMass"`
	RulesVersion string             `json:"rulesVersion"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// RecordRepository persists saved prescriptions
type RecordRepository interface {
	Save(ctx context.Context, record SavedRecord) error
	Get(ctx context.Context, id string) (SavedRecord, error)
	List(ctx context.Context, limit int) ([]SavedRecord, error)
	Ping(ctx context.Context) error
	Close() error
}
