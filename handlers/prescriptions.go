package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/metrics"
	"github.com/giygas/herbolaria-api/safety"
)

type itemView struct {
	Index      int                 `json:"index"`
	Type       composition.Kind    `json:"type"`
	ID         int                 `json:"id"`
	Name       string              `json:"name"`
	Quantity   float64             `json:"quantity"`
	Shares     []composition.Share `json:"shares,omitempty"`
	Unresolved bool                `json:"unresolved,omitempty"`
	Warnings   safety.Warnings     `json:"warnings"`
}

type prescriptionView struct {
	ID           string     `json:"id"`
	Patient      string     `json:"patient,omitempty"`
	Conditions   []string   `json:"conditions"`
	Version      int        `json:"version"`
	Items        []itemView `json:"items"`
	TotalMass    float64    `json:"totalMass"`
	RulesVersion string     `json:"rulesVersion"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type createPrescriptionRequest struct {
	Patient    string   `json:"patient"`
	Conditions []string `json:"conditions"`
}

type addHerbRequest struct {
	HerbID int     `json:"herbId"`
	Name   string  `json:"name"`
	Mass   float64 `json:"mass"`
}

type addFormulaRequest struct {
	FormulaID         int     `json:"formulaId"`
	TotalMass         float64 `json:"totalMass"`
	AsIndividualHerbs bool    `json:"asIndividualHerbs"`
}

type quantityRequest struct {
	Quantity float64 `json:"quantity"`
}

type conditionsRequest struct {
	Conditions []string `json:"conditions"`
}

// view decorates a draft with per-item warnings for its conditions
func (h *HTTPHandlerImpl) view(draft interfaces.Draft) prescriptionView {
	evaluator := h.rules.Current()
	active := toConditionSet(draft.Conditions)
	items := make([]itemView, 0, len(draft.Prescription.Items))
	contraindications, cautions := 0, 0

	for i, item := range draft.Prescription.Items {
		v := itemView{
			Index:    i,
			Type:     item.Kind(),
			Quantity: item.Quantity(),
			Warnings: evaluator.EvaluateItem(item, active, h.dataStore),
		}
		switch it := item.(type) {
		case composition.HerbItem:
			v.ID = it.Herb.ID
			v.Name = it.Herb.Name
			v.Unresolved = composition.IsPlaceholder(it.Herb)
		case composition.FormulaItem:
			v.ID = it.Formula.ID
			v.Name = it.Formula.Name
			v.Shares = it.Shares
		}
		contraindications += len(v.Warnings.Contraindications)
		cautions += len(v.Warnings.Cautions)
		items = append(items, v)
	}
	metrics.RecordWarnings(contraindications, cautions)

	return prescriptionView{
		ID:           draft.ID,
		Patient:      draft.Patient,
		Conditions:   draft.Conditions,
		Version:      draft.Prescription.Version,
		Items:        items,
		TotalMass:    composition.TotalMass(draft.Prescription),
		RulesVersion: evaluator.Version(),
		CreatedAt:    draft.CreatedAt,
		UpdatedAt:    draft.UpdatedAt,
	}
}

func (h *HTTPHandlerImpl) respondWithDraft(w http.ResponseWriter, code int, draft interfaces.Draft) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(draft.Prescription.Version)))
	h.RespondWithJSON(w, code, h.view(draft))
}

// updatePrescription runs op on the draft named by {id}, honoring If-Match.
// It reports whether the update was committed.
func (h *HTTPHandlerImpl) updatePrescription(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	op func(composition.Prescription) (composition.Prescription, error),
) bool {
	version, err := expectedVersion(r)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}

	draft, err := h.drafts.Update(chi.URLParam(r, "id"), version, func(d interfaces.Draft) (interfaces.Draft, error) {
		p, err := op(d.Prescription)
		if err != nil {
			return d, err
		}
		d.Prescription = p
		return d, nil
	})
	metrics.RecordOperation(operation, err)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return false
	}

	h.respondWithDraft(w, http.StatusOK, draft)
	return true
}

// CreatePrescription starts an empty draft
func (h *HTTPHandlerImpl) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req createPrescriptionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	req.Patient = strings.TrimSpace(req.Patient)
	if req.Patient != "" {
		if err := h.validator.ValidateInput(req.Patient); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("patient: %s", err))
			return
		}
	}

	conditions, err := h.validator.ValidateConditions(req.Conditions)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft := h.drafts.Create(req.Patient, conditions)
	metrics.RecordOperation("create", nil)
	metrics.DraftsActive.Set(float64(h.drafts.Count()))

	w.Header().Set("Location", "/prescriptions/"+draft.ID)
	h.respondWithDraft(w, http.StatusCreated, draft)
}

// GetPrescription returns a draft with its warnings
func (h *HTTPHandlerImpl) GetPrescription(w http.ResponseWriter, r *http.Request) {
	draft, err := h.drafts.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	h.respondWithDraft(w, http.StatusOK, draft)
}

// DeletePrescription discards a draft
func (h *HTTPHandlerImpl) DeletePrescription(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(chi.URLParam(r, "id")); err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	metrics.DraftsActive.Set(float64(h.drafts.Count()))
	w.WriteHeader(http.StatusNoContent)
}

// AddHerb adds a herb by catalog id or by name. A name the catalog does not
// know is kept as a free-text herb.
func (h *HTTPHandlerImpl) AddHerb(w http.ResponseWriter, r *http.Request) {
	var req addHerbRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateQuantity(req.Mass); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var herb entities.Herb
	switch {
	case req.HerbID > 0:
		found, ok := h.dataStore.HerbByID(req.HerbID)
		if !ok {
			h.RespondWithError(w, http.StatusNotFound, "Herb not found")
			return
		}
		herb = found
	case strings.TrimSpace(req.Name) != "":
		name := strings.TrimSpace(req.Name)
		if err := h.validator.ValidateInput(name); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		herb = composition.ResolveHerb(0, name, h.dataStore)
	default:
		h.RespondWithError(w, http.StatusBadRequest, "herbId or name is required")
		return
	}

	ok := h.updatePrescription(w, r, "add_herb", func(p composition.Prescription) (composition.Prescription, error) {
		return composition.AddHerb(p, herb, req.Mass)
	})
	if ok && composition.IsPlaceholder(herb) {
		metrics.UnresolvedHerbReferencesTotal.Inc()
	}
}

// AddFormula adds a catalog formula either as one item or flattened into its
// herbs
func (h *HTTPHandlerImpl) AddFormula(w http.ResponseWriter, r *http.Request) {
	var req addFormulaRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateQuantity(req.TotalMass); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	formula, ok := h.dataStore.FormulaByID(req.FormulaID)
	if !ok {
		h.RespondWithError(w, http.StatusNotFound, "Formula not found")
		return
	}

	if !req.AsIndividualHerbs {
		h.updatePrescription(w, r, "add_formula", func(p composition.Prescription) (composition.Prescription, error) {
			return composition.AddFormula(p, formula, req.TotalMass)
		})
		return
	}

	var expansion composition.Expansion
	ok = h.updatePrescription(w, r, "add_formula_herbs", func(p composition.Prescription) (composition.Prescription, error) {
		next, e, err := composition.ExpandFormula(p, formula, req.TotalMass, h.dataStore)
		if err != nil {
			return p, err
		}
		expansion = e
		return next, nil
	})
	if !ok {
		return
	}

	if n := expansion.Unresolved(); n > 0 {
		metrics.UnresolvedHerbReferencesTotal.Add(float64(n))
		logging.Debug("Formula flattened with unresolved herbs", "formula_id", formula.ID, "unresolved", n)
	}
	if n := len(expansion.Dropped); n > 0 {
		metrics.DroppedFormulaSharesTotal.Add(float64(n))
	}
}

// itemIndex validates the {index} URL parameter
func (h *HTTPHandlerImpl) itemIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := h.validator.ValidateIndex(raw)
	if err != nil {
		logging.Warn("Unusual user input", "index", raw)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return index, true
}

// SetItemQuantity changes the mass of one item; formula items are rescaled
func (h *HTTPHandlerImpl) SetItemQuantity(w http.ResponseWriter, r *http.Request) {
	index, ok := h.itemIndex(w, r)
	if !ok {
		return
	}

	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validator.ValidateQuantity(req.Quantity); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.updatePrescription(w, r, "set_quantity", func(p composition.Prescription) (composition.Prescription, error) {
		return composition.SetItemQuantity(p, index, req.Quantity)
	})
}

// RemoveItem drops one item
func (h *HTTPHandlerImpl) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, ok := h.itemIndex(w, r)
	if !ok {
		return
	}

	h.updatePrescription(w, r, "remove_item", func(p composition.Prescription) (composition.Prescription, error) {
		return composition.RemoveItem(p, index)
	})
}

// ClearItems empties the prescription
func (h *HTTPHandlerImpl) ClearItems(w http.ResponseWriter, r *http.Request) {
	h.updatePrescription(w, r, "clear", func(p composition.Prescription) (composition.Prescription, error) {
		return composition.Clear(p), nil
	})
}

// SetConditions replaces the patient conditions used for warnings
func (h *HTTPHandlerImpl) SetConditions(w http.ResponseWriter, r *http.Request) {
	var req conditionsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	conditions, err := h.validator.ValidateConditions(req.Conditions)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err := h.drafts.Update(chi.URLParam(r, "id"), -1, func(d interfaces.Draft) (interfaces.Draft, error) {
		d.Conditions = conditions
		return d, nil
	})
	metrics.RecordOperation("set_conditions", err)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	h.respondWithDraft(w, http.StatusOK, draft)
}

// SavePrescription snapshots the draft into a persistent record. Formula
// items are stored with their resolved composition.
func (h *HTTPHandlerImpl) SavePrescription(w http.ResponseWriter, r *http.Request) {
	draft, err := h.drafts.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	if len(draft.Prescription.Items) == 0 {
		metrics.RecordOperation("save", composition.ErrEmptyComposition)
		h.RespondWithError(w, http.StatusUnprocessableEntity, "prescription has no items")
		return
	}

	record := interfaces.SavedRecord{
		ID:           uuid.NewString(),
		DraftID:      draft.ID,
		Patient:      draft.Patient,
		Conditions:   draft.Conditions,
		Record:       composition.ToRecord(draft.Prescription),
		TotalMass:    composition.TotalMass(draft.Prescription),
		RulesVersion: h.rules.Current().Version(),
		CreatedAt:    time.Now().UTC(),
	}

	err = h.records.Save(r.Context(), record)
	metrics.RecordOperation("save", err)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	logging.Info("Prescription saved", "record_id", record.ID, "draft_id", draft.ID, "items", len(record.Record.Items))
	w.Header().Set("Location", "/records/"+record.ID)
	h.RespondWithJSON(w, http.StatusCreated, record)
}
