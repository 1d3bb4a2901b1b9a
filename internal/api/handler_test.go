package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medlink/m/domain"
	"medlink/m/internal/alternatives"
	"medlink/m/internal/auth"
	"medlink/m/internal/database"
	"medlink/m/internal/inventory"
	"medlink/m/internal/metrics"
	"medlink/m/internal/migrations"
	"medlink/m/internal/search"
	"medlink/m/internal/sos"
	"medlink/m/internal/store"
)

const kmPerDegreeLat = 111.19492664455873

type harness struct {
	t        *testing.T
	db       *sqlx.DB
	store    *store.Store
	issuer   *auth.Issuer
	router   http.Handler
	apollo   domain.PharmacyLocation
	medplus  domain.PharmacyLocation
	patient  string
	pharmacy string
	rival    string
	admin    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	st := store.New(db)
	issuer := auth.NewIssuer("test-secret")
	handler := New(Deps{
		Search:      search.NewEngine(st, alternatives.NewDefault(st, st)),
		SOS:         sos.NewService(st, nil),
		Inventory:   inventory.NewService(st),
		Issuer:      issuer,
		Metrics:     metrics.New(),
		CORSOrigins: []string{"*"},
	})

	h := &harness{t: t, db: db, store: st, issuer: issuer, router: handler.Router()}
	h.apollo = domain.PharmacyLocation{
		Name:     "Apollo",
		Phone:    "080-2222",
		Address:  "MG Road",
		Location: &domain.Coordinates{Latitude: 12.9716, Longitude: 77.5946},
	}
	h.medplus = domain.PharmacyLocation{Name: "MedPlus", Address: "Indiranagar"}
	require.NoError(t, st.CreatePharmacy(context.Background(), &h.apollo))
	require.NoError(t, st.CreatePharmacy(context.Background(), &h.medplus))

	h.patient = h.token(domain.Actor{UserID: 21, Role: domain.RolePatient})
	h.pharmacy = h.token(domain.Actor{UserID: 31, Role: domain.RolePharmacy, PharmacyID: h.apollo.ID})
	h.rival = h.token(domain.Actor{UserID: 32, Role: domain.RolePharmacy, PharmacyID: h.medplus.ID})
	h.admin = h.token(domain.Actor{UserID: 1, Role: domain.RoleAdmin})
	return h
}

func (h *harness) token(actor domain.Actor) string {
	token, err := h.issuer.Generate(actor, time.Hour)
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) addStock(pharmacyID int64, name string, price *float64) domain.StockEntry {
	h.t.Helper()
	entry := domain.StockEntry{
		PharmacyID: pharmacyID,
		Name:       name,
		Quantity:   10,
		Expiry:     domain.NewDate(2030, time.January, 1),
		Price:      price,
	}
	require.NoError(h.t, h.store.CreateStock(context.Background(), &entry))
	return entry
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/medicines/search?query=dolo", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/medicines/search?query=dolo", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decode[errorResponse](t, rec).Error)
}

func TestSearch_AlternativeWithDistance(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.AddMapping(context.Background(), "Dolo", "Paracetamol")
	require.NoError(t, err)
	price := 25.0
	stock := h.addStock(h.apollo.ID, "Paracetamol", &price)

	lat := 12.9716 + 3/kmPerDegreeLat
	rec := h.do(http.MethodGet, fmt.Sprintf("/medicines/search?query=Dolo&lat=%v&lng=77.5946", lat), h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	results := decode[[]domain.SearchResult](t, rec)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, stock.ID, r.StockID)
	assert.Equal(t, "Paracetamol", r.MedicineName)
	assert.Equal(t, "Apollo", r.PharmacyName)
	assert.True(t, r.IsAlternative)
	assert.Equal(t, "Dolo", r.OriginalSearch)
	assert.Equal(t, domain.ConfidenceMapping, r.Confidence)
	require.NotNil(t, r.DistanceKm)
	assert.Equal(t, 3.0, *r.DistanceKm)
	require.NotNil(t, r.Price)
	assert.Equal(t, 25.0, *r.Price)
}

func TestSearch_ShortQueryAndBadCoordinates(t *testing.T) {
	h := newHarness(t)
	h.addStock(h.apollo.ID, "Paracetamol", nil)

	rec := h.do(http.MethodGet, "/medicines/search?query=P", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(http.MethodGet, "/medicines/search?query=para&lat=12.9", h.patient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Fields, "lat")

	rec = h.do(http.MethodGet, "/medicines/search?query=para&lat=120&lng=77", h.patient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/medicines/search?query=para&lat=north&lng=77", h.patient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/medicines/search?query=para", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]domain.SearchResult](t, rec)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].DistanceKm)
	assert.Nil(t, results[0].Price)
}

func TestSearch_StorageFailureIs500(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Close())

	rec := h.do(http.MethodGet, "/medicines/search?query=dolo", h.patient, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[errorResponse](t, rec).Error)
}

func TestSOSLifecycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/sos", h.patient, map[string]any{"medicine_name": "Paracetamol"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[domain.DistressSignal](t, rec)
	assert.Equal(t, int64(21), first.PatientID)
	assert.Equal(t, domain.SignalOpen, first.Status)

	rec = h.do(http.MethodPost, "/sos", h.patient, map[string]any{
		"medicine_name": "Insulin", "latitude": 12.97, "longitude": 77.59,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, "/sos", h.pharmacy, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	open := decode[[]domain.DistressSignal](t, rec)
	require.Len(t, open, 2)
	assert.Equal(t, "Insulin", open[0].MedicineName)

	rec = h.do(http.MethodGet, "/sos/nearby?lat=12.97&lng=77.59&radius=5", h.pharmacy, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nearby := decode[[]domain.NearbySignal](t, rec)
	require.Len(t, nearby, 2)
	require.NotNil(t, nearby[0].DistanceKm)
	assert.Equal(t, 0.0, *nearby[0].DistanceKm)
	assert.Nil(t, nearby[1].DistanceKm)

	rec = h.do(http.MethodGet, "/sos/nearby?radius=5", h.pharmacy, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := fmt.Sprintf("/sos/%d/resolve", first.ID)
	rec = h.do(http.MethodPost, path, h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"resolved"}`, rec.Body.String())
	rec = h.do(http.MethodPost, path, h.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/sos?limit=10", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.DistressSignal](t, rec), 1)
}

func TestSOS_Errors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/sos", h.pharmacy, map[string]any{"medicine_name": "Insulin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/sos", h.patient, map[string]any{"medicine_name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Fields, "medicine_name")

	rec = h.do(http.MethodPost, "/sos", h.patient, map[string]any{"medicine_name": "Insulin", "latitude": 12.9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/sos", h.patient, `{"medicine_name":"Insulin","urgent":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/sos", h.patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/sos?limit=ten", h.pharmacy, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/sos/999/resolve", h.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/sos/abc/resolve", h.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/sos/1/resolve", h.pharmacy, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInventory(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/inventory", h.pharmacy, map[string]any{
		"name": "Insulin", "quantity": 4, "expiry": "2027-06-30", "price": 320,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[domain.StockEntry](t, rec)
	assert.Equal(t, h.apollo.ID, entry.PharmacyID)
	assert.Equal(t, "2027-06-30", entry.Expiry.String())

	rec = h.do(http.MethodPost, "/inventory", h.pharmacy, map[string]any{"name": "Insulin", "expiry": "30/06/2027"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Fields, "expiry")

	rec = h.do(http.MethodGet, "/inventory", h.pharmacy, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.StockEntry](t, rec), 1)

	rec = h.do(http.MethodGet, "/inventory", h.rival, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(http.MethodGet, "/inventory/search?query=insu", h.rival, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(http.MethodGet, "/inventory/search?query=insu", h.pharmacy, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.SearchResult](t, rec), 1)

	path := fmt.Sprintf("/inventory/%d", entry.ID)
	rec = h.do(http.MethodPut, path, h.rival, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPut, path, h.pharmacy, map[string]any{"clear_price": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[domain.StockEntry](t, rec).Price)

	rec = h.do(http.MethodPut, "/inventory/999", h.pharmacy, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, path, h.patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodDelete, path, h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodDelete, path, h.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin(t *testing.T) {
	h := newHarness(t)
	h.addStock(h.medplus.ID, "Ibuprofen", nil)
	soon := domain.StockEntry{PharmacyID: h.apollo.ID, Name: "Cough Syrup", Quantity: 2, Expiry: domain.DateOf(time.Now().UTC()).AddDays(3)}
	require.NoError(t, h.store.CreateStock(context.Background(), &soon))

	rec := h.do(http.MethodPost, "/admin/alternatives", h.pharmacy, map[string]any{"medicine_name": "Brufen", "alternative_name": "Ibuprofen"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/admin/alternatives", h.admin, map[string]any{"medicine_name": "Brufen", "alternative_name": "Ibuprofen"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/admin/alternatives", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mappings := decode[[]domain.AlternativeMapping](t, rec)
	require.Len(t, mappings, 1)
	assert.Equal(t, "Brufen", mappings[0].Source)

	rec = h.do(http.MethodGet, "/medicines/search?query=brufen", h.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]domain.SearchResult](t, rec)
	require.Len(t, results, 1)
	assert.Equal(t, "Ibuprofen", results[0].MedicineName)

	rec = h.do(http.MethodGet, "/admin/expiry-scan", h.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	expiring := decode[[]domain.ExpiringStock](t, rec)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].StockID)
	assert.Equal(t, "Apollo", expiring[0].PharmacyName)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/medicines/search?query=zz", h.patient, nil)

	rec := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `medlink_searches_total{outcome="empty"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/medicines/search"`)
}
