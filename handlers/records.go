package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/metrics"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

// ListRecords returns saved prescriptions, newest first
func (h *HTTPHandlerImpl) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecordLimit {
			h.RespondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := h.records.List(r.Context(), limit)
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []interfaces.SavedRecord{}
	}

	h.RespondWithJSON(w, http.StatusOK, records)
}

// GetRecord returns one saved prescription
func (h *HTTPHandlerImpl) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, record)
}

// ReopenRecord hydrates a saved prescription into a new editable draft.
// Formula items come back from their stored composition, herbs resolve
// against the current catalog.
func (h *HTTPHandlerImpl) ReopenRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}

	prescription, err := composition.FromRecord(record.Record, h.dataStore, h.dataStore)
	metrics.RecordOperation("reopen", err)
	if err != nil {
		logging.Warn("Saved record could not be reopened", "record_id", record.ID, "error", err)
		h.respondWithDomainError(w, r, err)
		return
	}

	draft := h.drafts.Create(record.Patient, record.Conditions)
	draft, err = h.drafts.Update(draft.ID, -1, func(d interfaces.Draft) (interfaces.Draft, error) {
		d.Prescription = prescription
		return d, nil
	})
	if err != nil {
		h.respondWithDomainError(w, r, err)
		return
	}
	metrics.DraftsActive.Set(float64(h.drafts.Count()))

	w.Header().Set("Location", "/prescriptions/"+draft.ID)
	h.respondWithDraft(w, http.StatusCreated, draft)
}
