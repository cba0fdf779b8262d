package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/metrics"
	"github.com/giygas/herbolaria-api/safety"
)

type warningsResponse struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Conditions   []string        `json:"conditions"`
	RulesVersion string          `json:"rulesVersion"`
	Warnings     safety.Warnings `json:"warnings"`
}

type flattenedHerb struct {
	HerbID     int     `json:"herbId"`
	Name       string  `json:"name"`
	Mass       float64 `json:"mass"`
	Unresolved bool    `json:"unresolved,omitempty"`
}

type compositionResponse struct {
	ID        int                 `json:"id"`
	Name      string              `json:"name"`
	TotalMass float64             `json:"totalMass"`
	Shares    []composition.Share `json:"shares"`
	Herbs     []flattenedHerb     `json:"herbs"`
}

// searchQuery validates ?search= when present
func (h *HTTPHandlerImpl) searchQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	if search == "" {
		return "", true
	}
	if err := h.validator.ValidateInput(search); err != nil {
		logging.Warn("Unusual user input", "search", search)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return search, true
}

// ListHerbs returns every herb, or those matching ?search=
func (h *HTTPHandlerImpl) ListHerbs(w http.ResponseWriter, r *http.Request) {
	search, ok := h.searchQuery(w, r)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, h.dataStore.SearchHerbs(search))
}

// GetHerb returns a herb by id
func (h *HTTPHandlerImpl) GetHerb(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	herb, found := h.dataStore.HerbByID(id)
	if !found {
		h.RespondWithError(w, http.StatusNotFound, "Herb not found")
		return
	}
	h.RespondWithJSON(w, http.StatusOK, herb)
}

// HerbWarnings evaluates a herb against ?conditions=
func (h *HTTPHandlerImpl) HerbWarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	conditions, ok := h.queryConditions(w, r)
	if !ok {
		return
	}

	herb, found := h.dataStore.HerbByID(id)
	if !found {
		h.RespondWithError(w, http.StatusNotFound, "Herb not found")
		return
	}

	evaluator := h.rules.Current()
	warnings := evaluator.Evaluate(herb, toConditionSet(conditions))
	metrics.RecordWarnings(len(warnings.Contraindications), len(warnings.Cautions))

	h.RespondWithJSON(w, http.StatusOK, warningsResponse{
		ID:           herb.ID,
		Name:         herb.Name,
		Conditions:   conditions,
		RulesVersion: evaluator.Version(),
		Warnings:     warnings,
	})
}

// ListFormulas returns every formula, or those whose name or alternative
// name matches ?search=
func (h *HTTPHandlerImpl) ListFormulas(w http.ResponseWriter, r *http.Request) {
	search, ok := h.searchQuery(w, r)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, h.dataStore.SearchFormulas(search))
}

// GetFormula returns a formula as authored in the catalog
func (h *HTTPHandlerImpl) GetFormula(w http.ResponseWriter, r *http.Request) {
	formula, ok := h.formulaFromPath(w, r)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, formula)
}

// FormulaComposition returns the normalized shares and the flattened herbs
// of a formula at ?total= grams (default: the formula's reference total)
func (h *HTTPHandlerImpl) FormulaComposition(w http.ResponseWriter, r *http.Request) {
	formula, ok := h.formulaFromPath(w, r)
	if !ok {
		return
	}

	total := formula.ReferenceTotal()
	if raw := r.URL.Query().Get("total"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.RespondWithError(w, http.StatusBadRequest, "total must be a number")
			return
		}
		if err := h.validator.ValidateQuantity(parsed); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		total = parsed
	}

	shares, err := composition.NormalizeFormula(formula, total)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	item := composition.FormulaItem{Formula: formula, TotalMass: total, Shares: shares}
	herbItems, err := composition.FlattenItem(item, h.dataStore)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	h.RespondWithJSON(w, http.StatusOK, compositionResponse{
		ID:        formula.ID,
		Name:      formula.Name,
		TotalMass: total,
		Shares:    shares,
		Herbs:     toFlattenedHerbs(herbItems),
	})
}

// FormulaWarnings evaluates a formula and its constituent herbs against
// ?conditions=
func (h *HTTPHandlerImpl) FormulaWarnings(w http.ResponseWriter, r *http.Request) {
	formula, ok := h.formulaFromPath(w, r)
	if !ok {
		return
	}
	conditions, ok := h.queryConditions(w, r)
	if !ok {
		return
	}

	evaluator := h.rules.Current()
	active := toConditionSet(conditions)
	var warnings safety.Warnings

	shares, err := composition.NormalizeFormula(formula, formula.ReferenceTotal())
	if err != nil {
		// A formula without shares can still carry its own warnings
		warnings = evaluator.Evaluate(formula, active)
	} else {
		item := composition.FormulaItem{Formula: formula, TotalMass: formula.ReferenceTotal(), Shares: shares}
		warnings = evaluator.EvaluateItem(item, active, h.dataStore)
	}
	metrics.RecordWarnings(len(warnings.Contraindications), len(warnings.Cautions))

	h.RespondWithJSON(w, http.StatusOK, warningsResponse{
		ID:           formula.ID,
		Name:         formula.Name,
		Conditions:   conditions,
		RulesVersion: evaluator.Version(),
		Warnings:     warnings,
	})
}

func (h *HTTPHandlerImpl) formulaFromPath(w http.ResponseWriter, r *http.Request) (entities.Formula, bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return entities.Formula{}, false
	}

	formula, found := h.dataStore.FormulaByID(id)
	if !found {
		h.RespondWithError(w, http.StatusNotFound, "Formula not found")
		return entities.Formula{}, false
	}
	return formula, true
}

func toFlattenedHerbs(items []composition.HerbItem) []flattenedHerb {
	out := make([]flattenedHerb, len(items))
	for i, item := range items {
		out[i] = flattenedHerb{
			HerbID:     item.Herb.ID,
			Name:       item.Herb.Name,
			Mass:       item.Mass,
			Unresolved: composition.IsPlaceholder(item.Herb),
		}
	}
	return out
}
