package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/giygas/herbolaria-api/composition"
	"github.com/giygas/herbolaria-api/data"
	"github.com/giygas/herbolaria-api/herbs/entities"
	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/metrics"
	"github.com/giygas/herbolaria-api/safety"
	"github.com/giygas/herbolaria-api/storage"
	"github.com/giygas/herbolaria-api/validation"
)

// ============================================================================
// TEST FIXTURES
// ============================================================================

type mockHealthChecker struct {
	status     string
	httpStatus int
}

func (m *mockHealthChecker) HealthCheck() (string, map[string]any, int) {
	return m.status, map[string]any{"herbs": 4}, m.httpStatus
}

func (m *mockHealthChecker) CalculateNextUpdate() time.Time {
	return time.Now().Add(time.Hour)
}

func testCatalog() ([]entities.Herb, []entities.Formula) {
	herbs := []entities.Herb{
		{ID: 1, Name: "Ren Shen", Nature: "Templada", Contraindications: entities.NewText("Embarazo")},
		{ID: 2, Name: "Bai Zhu", Cautions: entities.NewText("Precaución durante la lactancia")},
		{ID: 3, Name: "Fu Ling"},
		{ID: 4, Name: "Zhi Gan Cao", Cautions: entities.NewText("Hipertensión")},
	}
	formulas := []entities.Formula{
		{
			ID:   10,
			Name: "Si Jun Zi Tang",
			Shares: []entities.FormulaShare{
				{HerbID: 1, Name: "Ren Shen", Percentage: entities.Float(25)},
				{HerbID: 2, Name: "Bai Zhu", Percentage: entities.Float(25)},
				{HerbID: 3, Name: "Fu Ling", Percentage: entities.Float(25)},
				{HerbID: 4, Name: "Zhi Gan Cao", Percentage: entities.Float(25)},
			},
		},
		{
			ID:   11,
			Name: "Fu Ling Wu Mei",
			Shares: []entities.FormulaShare{
				{Name: "Wu Mei", Percentage: entities.Float(50)},
				{HerbID: 3, Name: "Fu Ling", Percentage: entities.Float(50)},
			},
		},
		{ID: 12, Name: "Vacía"},
	}
	return herbs, formulas
}

type testEnv struct {
	router  http.Handler
	handler *HTTPHandlerImpl
	drafts  *storage.DraftStore
	records *storage.SQLiteRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := data.NewDataContainer()
	herbs, formulas := testCatalog()
	store.UpdateData(herbs, formulas)

	records, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	t.Cleanup(func() { records.Close() })

	drafts := storage.NewDraftStore()
	handler := NewHTTPHandler(store, validation.NewDataValidator(), nil, drafts, records,
		&mockHealthChecker{status: "healthy", httpStatus: http.StatusOK})

	return &testEnv{
		router:  newTestRouter(handler),
		handler: handler,
		drafts:  drafts,
		records: records,
	}
}

func newTestRouter(h interfaces.HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)

	r.Get("/herbs", h.ListHerbs)
	r.Get("/herbs/{id}", h.GetHerb)
	r.Get("/herbs/{id}/warnings", h.HerbWarnings)
	r.Get("/formulas", h.ListFormulas)
	r.Get("/formulas/{id}", h.GetFormula)
	r.Get("/formulas/{id}/composition", h.FormulaComposition)
	r.Get("/formulas/{id}/warnings", h.FormulaWarnings)

	r.Post("/prescriptions", h.CreatePrescription)
	r.Get("/prescriptions/{id}", h.GetPrescription)
	r.Delete("/prescriptions/{id}", h.DeletePrescription)
	r.Post("/prescriptions/{id}/herbs", h.AddHerb)
	r.Post("/prescriptions/{id}/formulas", h.AddFormula)
	r.Put("/prescriptions/{id}/items/{index}", h.SetItemQuantity)
	r.Delete("/prescriptions/{id}/items/{index}", h.RemoveItem)
	r.Delete("/prescriptions/{id}/items", h.ClearItems)
	r.Put("/prescriptions/{id}/conditions", h.SetConditions)
	r.Post("/prescriptions/{id}/save", h.SavePrescription)

	r.Get("/records", h.ListRecords)
	r.Get("/records/{id}", h.GetRecord)
	r.Post("/records/{id}/draft", h.ReopenRecord)
	return r
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

type testItem struct {
	Index      int                 `json:"index"`
	Type       string              `json:"type"`
	ID         int                 `json:"id"`
	Name       string              `json:"name"`
	Quantity   float64             `json:"quantity"`
	Shares     []composition.Share `json:"shares"`
	Unresolved bool                `json:"unresolved"`
	Warnings   struct {
		Contraindications []string `json:"contraindications"`
		Cautions          []string `json:"cautions"`
	} `json:"warnings"`
}

type testPrescription struct {
	ID           string     `json:"id"`
	Patient      string     `json:"patient"`
	Conditions   []string   `json:"conditions"`
	Version      int        `json:"version"`
	Items        []testItem `json:"items"`
	TotalMass    float64    `json:"totalMass"`
	RulesVersion string     `json:"rulesVersion"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func (e *testEnv) newDraft(t *testing.T, body string) testPrescription {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/prescriptions", body)
	expectStatus(t, rr, http.StatusCreated)
	return decode[testPrescription](t, rr)
}

// ============================================================================
// RESPONSE HELPERS
// ============================================================================

func TestRespondWithJSON(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, nil, nil, nil)

	rr := httptest.NewRecorder()
	h.RespondWithJSON(rr, http.StatusOK, []string{"item1", "item2"})

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	if rr.Body.String() != `["item1","item2"]` {
		t.Errorf("Unexpected body %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.RespondWithJSON(rr, http.StatusOK, func() {})
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Unmarshalable payload should give 500, got %d", rr.Code)
	}
}

func TestRespondWithError(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, nil, nil, nil)

	rr := httptest.NewRecorder()
	h.RespondWithError(rr, http.StatusNotFound, "Herb not found")

	body := decode[map[string]any](t, rr)
	if body["error"] != "Not Found" || body["message"] != "Herb not found" || body["code"] != float64(404) {
		t.Errorf("Unexpected error body %v", body)
	}
}

func TestRespondWithDomainError(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("set: %w", composition.ErrInvalidQuantity), http.StatusBadRequest},
		{composition.ErrEmptyComposition, http.StatusUnprocessableEntity},
		{composition.ErrItemNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: x", storage.ErrDraftNotFound), http.StatusNotFound},
		{storage.ErrRecordNotFound, http.StatusNotFound},
		{storage.ErrVersionConflict, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.respondWithDomainError(rr, req, tt.err)
		if rr.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rr.Code)
		}
	}
}

func TestExpectedVersion(t *testing.T) {
	tests := []struct {
		header  string
		want    int
		wantErr bool
	}{
		{"", -1, false},
		{"*", -1, false},
		{`"3"`, 3, false},
		{`W/"7"`, 7, false},
		{"12", 12, false},
		{"abc", -1, true},
		{"-2", -1, true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.header != "" {
			req.Header.Set("If-Match", tt.header)
		}
		got, err := expectedVersion(req)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("If-Match %q: got (%d, %v), want %d (err %v)", tt.header, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "")
	expectStatus(t, rr, http.StatusOK)

	body := decode[map[string]any](t, rr)
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if _, ok := body["data"].(map[string]any); !ok {
		t.Errorf("Expected data object, got %v", body["data"])
	}
}

// ============================================================================
// CATALOG ENDPOINTS
// ============================================================================

func TestListHerbs(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
	}{
		{"all herbs", "/herbs", http.StatusOK, 4},
		{"search by name", "/herbs?search=ren", http.StatusOK, 1},
		{"search without match", "/herbs?search=xyz", http.StatusOK, 0},
		{"invalid search", "/herbs?search=%3Cscript%3E", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path, "")
			expectStatus(t, rr, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			herbs := decode[[]entities.Herb](t, rr)
			if len(herbs) != tt.wantCount {
				t.Errorf("Expected %d herbs, got %d", tt.wantCount, len(herbs))
			}
		})
	}
}

func TestGetHerb(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/herbs/1", "")
	expectStatus(t, rr, http.StatusOK)
	if herb := decode[entities.Herb](t, rr); herb.Name != "Ren Shen" {
		t.Errorf("Expected Ren Shen, got %q", herb.Name)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/herbs/99", ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/herbs/abc", ""), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/herbs/0", ""), http.StatusBadRequest)
}

func TestHerbWarnings(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/herbs/1/warnings?conditions=pregnancy,hypertension", "")
	expectStatus(t, rr, http.StatusOK)

	resp := decode[warningsResponse](t, rr)
	if len(resp.Warnings.Contraindications) != 1 || resp.Warnings.Contraindications[0] != "Contraindicated in pregnancy" {
		t.Errorf("Unexpected contraindications %v", resp.Warnings.Contraindications)
	}
	if len(resp.Warnings.Cautions) != 0 {
		t.Errorf("Expected no cautions, got %v", resp.Warnings.Cautions)
	}
	if resp.RulesVersion == "" {
		t.Error("Expected a rules version")
	}

	// No conditions, no warnings
	rr = env.do(t, http.MethodGet, "/herbs/1/warnings", "")
	expectStatus(t, rr, http.StatusOK)
	if resp := decode[warningsResponse](t, rr); len(resp.Warnings.Contraindications) != 0 {
		t.Errorf("Expected no warnings, got %v", resp.Warnings)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/herbs/1/warnings?conditions=bad%20key!", ""), http.StatusBadRequest)
}

func TestHerbWarnings_CustomRulesReload(t *testing.T) {
	env := newTestEnv(t)
	path := "/herbs/4/warnings?conditions=bloodPressure"

	resp := decode[warningsResponse](t, env.do(t, http.MethodGet, path, ""))
	if len(resp.Warnings.Cautions) != 0 || resp.RulesVersion != "2" {
		t.Fatalf("Unknown condition should be ignored by the default rules, got %+v", resp)
	}

	_, err := env.handler.rules.Load(safety.RuleTable{Version: "c1", Rules: []safety.Rule{{
		Key:     "bloodPressure",
		Markers: []string{"hipertension"},
		Caution: "Monitor blood pressure",
	}}})
	if err != nil {
		t.Fatal(err)
	}

	resp = decode[warningsResponse](t, env.do(t, http.MethodGet, path, ""))
	if len(resp.Warnings.Cautions) != 1 || resp.Warnings.Cautions[0] != "Monitor blood pressure" {
		t.Errorf("Expected the custom caution, got %v", resp.Warnings.Cautions)
	}
	if resp.RulesVersion != "2+c1" {
		t.Errorf("Expected rules version 2+c1, got %q", resp.RulesVersion)
	}
}

func TestListAndGetFormulas(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/formulas", "")
	expectStatus(t, rr, http.StatusOK)
	if formulas := decode[[]entities.Formula](t, rr); len(formulas) != 3 {
		t.Errorf("Expected 3 formulas, got %d", len(formulas))
	}

	rr = env.do(t, http.MethodGet, "/formulas/10", "")
	expectStatus(t, rr, http.StatusOK)
	if f := decode[entities.Formula](t, rr); f.Name != "Si Jun Zi Tang" || len(f.Shares) != 4 {
		t.Errorf("Unexpected formula %+v", f)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/formulas/404", ""), http.StatusNotFound)
}

func TestFormulaComposition(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/formulas/10/composition?total=200", "")
	expectStatus(t, rr, http.StatusOK)

	resp := decode[compositionResponse](t, rr)
	if resp.TotalMass != 200 || len(resp.Shares) != 4 || len(resp.Herbs) != 4 {
		t.Fatalf("Unexpected composition %+v", resp)
	}
	for _, h := range resp.Herbs {
		if h.Mass != 50 {
			t.Errorf("Expected 50g of %s, got %v", h.Name, h.Mass)
		}
	}

	rr = env.do(t, http.MethodGet, "/formulas/11/composition", "")
	expectStatus(t, rr, http.StatusOK)
	resp = decode[compositionResponse](t, rr)
	unresolved := 0
	for _, h := range resp.Herbs {
		if h.Unresolved {
			unresolved++
			if h.Name != "Wu Mei" {
				t.Errorf("Unexpected unresolved herb %q", h.Name)
			}
		}
	}
	if unresolved != 1 {
		t.Errorf("Expected one unresolved herb, got %d", unresolved)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/formulas/12/composition", ""), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodGet, "/formulas/10/composition?total=abc", ""), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/formulas/10/composition?total=-5", ""), http.StatusBadRequest)
}

func TestFormulaWarnings(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/formulas/10/warnings?conditions=pregnancy,breastfeeding", "")
	expectStatus(t, rr, http.StatusOK)

	resp := decode[warningsResponse](t, rr)
	if len(resp.Warnings.Contraindications) != 1 {
		t.Errorf("Expected pregnancy contraindication from Ren Shen, got %v", resp.Warnings.Contraindications)
	}
	if len(resp.Warnings.Cautions) != 1 || resp.Warnings.Cautions[0] != "Use with caution during breastfeeding" {
		t.Errorf("Expected breastfeeding caution from Bai Zhu, got %v", resp.Warnings.Cautions)
	}

	// A formula without shares still answers
	expectStatus(t, env.do(t, http.MethodGet, "/formulas/12/warnings?conditions=pregnancy", ""), http.StatusOK)
}

// ============================================================================
// PRESCRIPTION ENDPOINTS
// ============================================================================

func TestCreatePrescription(t *testing.T) {
	env := newTestEnv(t)

	p := env.newDraft(t, `{"patient":"Ana López","conditions":["pregnancy"," pregnancy "]}`)
	if p.ID == "" || p.Version != 0 || len(p.Items) != 0 {
		t.Errorf("Unexpected new draft %+v", p)
	}
	if len(p.Conditions) != 1 || p.Conditions[0] != "pregnancy" {
		t.Errorf("Expected de-duplicated conditions, got %v", p.Conditions)
	}

	// Empty body is allowed
	rr := env.do(t, http.MethodPost, "/prescriptions", "")
	expectStatus(t, rr, http.StatusCreated)
	if rr.Header().Get("Location") == "" {
		t.Error("Expected a Location header")
	}

	expectStatus(t, env.do(t, http.MethodPost, "/prescriptions", `{"patient":"<script>"}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/prescriptions", `{"unknown":1}`), http.StatusBadRequest)

	if env.drafts.Count() != 2 {
		t.Errorf("Expected 2 drafts, got %d", env.drafts.Count())
	}
}

func TestGetAndDeletePrescription(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, "")

	rr := env.do(t, http.MethodGet, "/prescriptions/"+p.ID, "")
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("ETag") != `"0"` {
		t.Errorf("Expected ETag \"0\", got %q", rr.Header().Get("ETag"))
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/prescriptions/"+p.ID, ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/prescriptions/"+p.ID, ""), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/prescriptions/"+p.ID, ""), http.StatusNotFound)
}

func TestAddHerb(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, `{"conditions":["pregnancy"]}`)
	path := "/prescriptions/" + p.ID + "/herbs"

	rr := env.do(t, http.MethodPost, path, `{"herbId":1,"mass":10}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if p.Version != 1 || len(p.Items) != 1 {
		t.Fatalf("Unexpected draft %+v", p)
	}
	if got := p.Items[0].Warnings.Contraindications; len(got) != 1 {
		t.Errorf("Expected pregnancy contraindication, got %v", got)
	}

	// Same herb merges
	rr = env.do(t, http.MethodPost, path, `{"name":"Ren Shen","mass":5}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if len(p.Items) != 1 || p.Items[0].Quantity != 15 {
		t.Errorf("Expected a merged 15g item, got %+v", p.Items)
	}

	// Unknown names become free-text herbs
	rr = env.do(t, http.MethodPost, path, `{"name":"Hierba Desconocida","mass":3}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if len(p.Items) != 2 || !p.Items[1].Unresolved || p.Items[1].ID != 0 {
		t.Errorf("Expected an unresolved second item, got %+v", p.Items)
	}
	if p.TotalMass != 18 {
		t.Errorf("Expected total mass 18, got %v", p.TotalMass)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown id", `{"herbId":99,"mass":5}`, http.StatusNotFound},
		{"no herb", `{"mass":5}`, http.StatusBadRequest},
		{"zero mass", `{"herbId":1,"mass":0}`, http.StatusBadRequest},
		{"too much", `{"herbId":1,"mass":100000}`, http.StatusBadRequest},
		{"bad name", `{"name":"DROP TABLE;","mass":1}`, http.StatusBadRequest},
		{"malformed", `{"herbId":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodPost, path, tt.body), tt.want)
		})
	}

	expectStatus(t, env.do(t, http.MethodPost, "/prescriptions/missing/herbs", `{"herbId":1,"mass":5}`), http.StatusNotFound)
}

func TestAddFormula(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, "")
	path := "/prescriptions/" + p.ID + "/formulas"

	rr := env.do(t, http.MethodPost, path, `{"formulaId":10,"totalMass":100}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if len(p.Items) != 1 || p.Items[0].Type != "formula" || len(p.Items[0].Shares) != 4 {
		t.Fatalf("Unexpected formula item %+v", p.Items)
	}
	if p.Items[0].Shares[0].Grams != 25 {
		t.Errorf("Expected 25g shares, got %v", p.Items[0].Shares[0].Grams)
	}

	rr = env.do(t, http.MethodPost, path, `{"formulaId":11,"totalMass":40,"asIndividualHerbs":true}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if len(p.Items) != 3 {
		t.Fatalf("Expected formula plus two herbs, got %+v", p.Items)
	}
	unresolved := 0
	for _, item := range p.Items[1:] {
		if item.Type != "herb" || item.Quantity != 20 {
			t.Errorf("Unexpected flattened item %+v", item)
		}
		if item.Unresolved {
			unresolved++
		}
	}
	if unresolved != 1 {
		t.Errorf("Expected Wu Mei unresolved, got %d unresolved", unresolved)
	}

	expectStatus(t, env.do(t, http.MethodPost, path, `{"formulaId":404,"totalMass":10}`), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, path, `{"formulaId":12,"totalMass":10}`), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodPost, path, `{"formulaId":10,"totalMass":-1}`), http.StatusBadRequest)
}

func TestEditItems(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, "")
	base := "/prescriptions/" + p.ID

	expectStatus(t, env.do(t, http.MethodPost, base+"/herbs", `{"herbId":3,"mass":12}`), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, base+"/formulas", `{"formulaId":10,"totalMass":100}`), http.StatusOK)

	rr := env.do(t, http.MethodPut, base+"/items/1", `{"quantity":200}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if p.Items[1].Quantity != 200 {
		t.Errorf("Expected formula at 200g, got %v", p.Items[1].Quantity)
	}
	for _, s := range p.Items[1].Shares {
		if s.Grams != 50 || s.Percentage != 25 {
			t.Errorf("Expected rescaled share 25%%/50g, got %+v", s)
		}
	}

	// Herbs keep a minimum mass
	expectStatus(t, env.do(t, http.MethodPut, base+"/items/0", `{"quantity":0.5}`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPut, base+"/items/9", `{"quantity":5}`), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPut, base+"/items/x", `{"quantity":5}`), http.StatusBadRequest)

	rr = env.do(t, http.MethodDelete, base+"/items/0", "")
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if len(p.Items) != 1 || p.Items[0].Type != "formula" || p.Items[0].Index != 0 {
		t.Errorf("Unexpected items after removal %+v", p.Items)
	}
	expectStatus(t, env.do(t, http.MethodDelete, base+"/items/5", ""), http.StatusNotFound)

	rr = env.do(t, http.MethodDelete, base+"/items", "")
	expectStatus(t, rr, http.StatusOK)
	if p = decode[testPrescription](t, rr); len(p.Items) != 0 || p.TotalMass != 0 {
		t.Errorf("Expected an empty prescription, got %+v", p)
	}
}

func TestIfMatchConflict(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, "")
	path := "/prescriptions/" + p.ID + "/herbs"

	rr := env.do(t, http.MethodPost, path, `{"herbId":1,"mass":5}`, "If-Match", `"0"`)
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("ETag") != `"1"` {
		t.Errorf("Expected ETag \"1\", got %q", rr.Header().Get("ETag"))
	}

	// Stale version
	expectStatus(t, env.do(t, http.MethodPost, path, `{"herbId":2,"mass":5}`, "If-Match", `"0"`), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, path, `{"herbId":2,"mass":5}`, "If-Match", "nope"), http.StatusBadRequest)

	got, err := env.drafts.Get(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Prescription.Items) != 1 {
		t.Errorf("Conflicting write should not apply, got %d items", len(got.Prescription.Items))
	}
}

func TestUnresolvedReferencesCountedOnCommit(t *testing.T) {
	testCases := []struct {
		name    string
		path    string
		body    string
		ifMatch string
		status  int
		want    float64
	}{
		{"Free-text herb committed", "/herbs", `{"name":"Sha Ren","mass":3}`, "", http.StatusOK, 1},
		{"Free-text herb on stale version", "/herbs", `{"name":"Sha Ren","mass":3}`, `"7"`, http.StatusConflict, 0},
		{"Catalog herb by name", "/herbs", `{"name":"Fu Ling","mass":3}`, "", http.StatusOK, 0},
		{"Flattened formula committed", "/formulas", `{"formulaId":11,"totalMass":40,"asIndividualHerbs":true}`, "", http.StatusOK, 1},
		{"Flattened formula on stale version", "/formulas", `{"formulaId":11,"totalMass":40,"asIndividualHerbs":true}`, `"7"`, http.StatusConflict, 0},
		{"Formula kept whole", "/formulas", `{"formulaId":11,"totalMass":40}`, "", http.StatusOK, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.newDraft(t, "")

			var headers []string
			if tc.ifMatch != "" {
				headers = []string{"If-Match", tc.ifMatch}
			}

			before := testutil.ToFloat64(metrics.UnresolvedHerbReferencesTotal)
			expectStatus(t, env.do(t, http.MethodPost, "/prescriptions/"+p.ID+tc.path, tc.body, headers...), tc.status)
			if got := testutil.ToFloat64(metrics.UnresolvedHerbReferencesTotal) - before; got != tc.want {
				t.Errorf("Expected %v unresolved references counted, got %v", tc.want, got)
			}
		})
	}
}

func TestSetConditions(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, "")
	base := "/prescriptions/" + p.ID

	expectStatus(t, env.do(t, http.MethodPost, base+"/herbs", `{"herbId":4,"mass":6}`), http.StatusOK)

	rr := env.do(t, http.MethodPut, base+"/conditions", `{"conditions":["hypertension"]}`)
	expectStatus(t, rr, http.StatusOK)
	p = decode[testPrescription](t, rr)
	if len(p.Items[0].Warnings.Cautions) != 1 {
		t.Errorf("Expected hypertension caution, got %+v", p.Items[0].Warnings)
	}
	if p.Version != 1 {
		t.Errorf("Conditions should not bump the prescription version, got %d", p.Version)
	}

	expectStatus(t, env.do(t, http.MethodPut, base+"/conditions", `{"conditions":["a b"]}`), http.StatusBadRequest)
}

// ============================================================================
// RECORDS
// ============================================================================

func TestSaveAndReopen(t *testing.T) {
	env := newTestEnv(t)
	p := env.newDraft(t, `{"patient":"Ana","conditions":["pregnancy"]}`)
	base := "/prescriptions/" + p.ID

	// Nothing to save yet
	expectStatus(t, env.do(t, http.MethodPost, base+"/save", ""), http.StatusUnprocessableEntity)

	expectStatus(t, env.do(t, http.MethodPost, base+"/herbs", `{"herbId":1,"mass":9}`), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, base+"/formulas", `{"formulaId":10,"totalMass":60}`), http.StatusOK)

	rr := env.do(t, http.MethodPost, base+"/save", "")
	expectStatus(t, rr, http.StatusCreated)
	saved := decode[interfaces.SavedRecord](t, rr)
	if saved.ID == "" || saved.DraftID != p.ID || saved.TotalMass != 69 || len(saved.Record.Items) != 2 {
		t.Fatalf("Unexpected saved record %+v", saved)
	}
	if snap := saved.Record.Items[1].CustomFormula; snap == nil || len(snap.Shares) != 4 {
		t.Errorf("Formula items should carry their composition, got %+v", saved.Record.Items[1])
	}

	rr = env.do(t, http.MethodGet, "/records", "")
	expectStatus(t, rr, http.StatusOK)
	if list := decode[[]interfaces.SavedRecord](t, rr); len(list) != 1 {
		t.Errorf("Expected 1 record, got %d", len(list))
	}

	expectStatus(t, env.do(t, http.MethodGet, "/records/"+saved.ID, ""), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/records/unknown", ""), http.StatusNotFound)

	rr = env.do(t, http.MethodPost, "/records/"+saved.ID+"/draft", "")
	expectStatus(t, rr, http.StatusCreated)
	reopened := decode[testPrescription](t, rr)
	if reopened.ID == p.ID || reopened.Patient != "Ana" || len(reopened.Items) != 2 {
		t.Fatalf("Unexpected reopened draft %+v", reopened)
	}
	if reopened.Items[1].Quantity != 60 || len(reopened.Items[1].Shares) != 4 {
		t.Errorf("Formula should come back from its snapshot, got %+v", reopened.Items[1])
	}
	if len(reopened.Items[0].Warnings.Contraindications) != 1 {
		t.Errorf("Reopened draft should keep its conditions, got %+v", reopened.Items[0].Warnings)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/records/unknown/draft", ""), http.StatusNotFound)
}

func TestListRecordsLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		p := env.newDraft(t, "")
		expectStatus(t, env.do(t, http.MethodPost, "/prescriptions/"+p.ID+"/herbs", `{"herbId":3,"mass":5}`), http.StatusOK)
		expectStatus(t, env.do(t, http.MethodPost, "/prescriptions/"+p.ID+"/save", ""), http.StatusCreated)
	}

	rr := env.do(t, http.MethodGet, "/records?limit=2", "")
	expectStatus(t, rr, http.StatusOK)
	if list := decode[[]interfaces.SavedRecord](t, rr); len(list) != 2 {
		t.Errorf("Expected 2 records, got %d", len(list))
	}

	for _, bad := range []string{"0", "-1", "abc", "501"} {
		rr := env.do(t, http.MethodGet, "/records?limit="+bad, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", bad, rr.Code)
		}
	}

	// Empty repository lists as an empty array
	empty := newTestEnv(t)
	rr = empty.do(t, http.MethodGet, "/records", "")
	expectStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected [], got %s", rr.Body.String())
	}
}
