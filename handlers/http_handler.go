// Package handlers implements the HTTP endpoints of the herbolaria API with
// injected dependencies.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/safety"
	"github.com/giygas/herbolaria-api/storage"
)

// maxJSONBody caps request bodies decoded by the handlers
const maxJSONBody = 64 * 1024

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore     interfaces.CatalogStore
	validator     interfaces.DataValidator
	rules         *safety.Source
	drafts        interfaces.DraftStore
	records       interfaces.RecordRepository
	healthChecker interfaces.HealthChecker
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	dataStore interfaces.CatalogStore,
	validator interfaces.DataValidator,
	rules *safety.Source,
	drafts interfaces.DraftStore,
	records interfaces.RecordRepository,
	healthChecker interfaces.HealthChecker,
) *HTTPHandlerImpl {
	if rules == nil {
		rules = safety.NewSource(nil)
	}
	return &HTTPHandlerImpl{
		dataStore:     dataStore,
		validator:     validator,
		rules:         rules,
		drafts:        drafts,
		records:       records,
		healthChecker: healthChecker,
	}
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Warn("Failed to write response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// respondWithDomainError maps sentinel errors to HTTP codes. Unknown errors
// are logged and hidden behind a 500.
func (h *HTTPHandlerImpl) respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, composition.ErrInvalidQuantity):
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, composition.ErrEmptyComposition):
		h.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, composition.ErrItemNotFound),
		errors.Is(err, storage.ErrDraftNotFound),
		errors.Is(err, storage.ErrRecordNotFound):
		h.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrVersionConflict):
		h.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		logging.Error("Request failed", "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON decodes a bounded request body into dst
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// pathID validates the {id} URL parameter as a catalog id
func (h *HTTPHandlerImpl) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := h.validator.ValidateID(idStr)
	if err != nil {
		logging.Warn("Unusual user input", "id", idStr)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

// queryConditions parses ?conditions=a,b into a validated key list
func (h *HTTPHandlerImpl) queryConditions(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	raw := r.URL.Query().Get("conditions")
	var keys []string
	if raw != "" {
		keys = strings.Split(raw, ",")
	}

	conditions, err := h.validator.ValidateConditions(keys)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return conditions, true
}

// expectedVersion reads the optional If-Match header. Without it any version
// is accepted.
func expectedVersion(r *http.Request) (int, error) {
	raw := strings.Trim(strings.TrimPrefix(r.Header.Get("If-Match"), "W/"), `" `)
	if raw == "" || raw == "*" {
		return -1, nil
	}
	version, err := strconv.Atoi(raw)
	if err != nil || version < 0 {
		return -1, fmt.Errorf("If-Match must be a prescription version")
	}
	return version, nil
}

func toConditionSet(keys []string) safety.Conditions {
	set := make(safety.Conditions, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// HealthCheck reports the service health
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.healthChecker.HealthCheck()
	h.RespondWithJSON(w, httpStatus, map[string]any{
		"status": status,
		"data":   data,
	})
}
