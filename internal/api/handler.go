package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"medlink/m/domain"
	"medlink/m/internal/auth"
	"medlink/m/internal/inventory"
	"medlink/m/internal/metrics"
	"medlink/m/internal/search"
	"medlink/m/internal/sos"
	"medlink/m/internal/validation"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	search      *search.Engine
	sos         *sos.Service
	inventory   *inventory.Service
	issuer      *auth.Issuer
	metrics     *metrics.Metrics
	corsOrigins []string
}

type Deps struct {
	Search      *search.Engine
	SOS         *sos.Service
	Inventory   *inventory.Service
	Issuer      *auth.Issuer
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// New constructs a Handler.
func New(d Deps) *Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return &Handler{
		search:      d.Search,
		sos:         d.SOS,
		inventory:   d.Inventory,
		issuer:      d.Issuer,
		metrics:     d.Metrics,
		corsOrigins: d.CORSOrigins,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.Use(requestID)
	r.Use(h.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(h.issuer.Middleware(unauthorized))

		pr.Get("/medicines/search", h.searchMedicines)

		pr.Route("/sos", func(r chi.Router) {
			r.With(requireRole(domain.RolePatient)).Post("/", h.createSOS)
			r.With(requireRole(domain.RolePharmacy, domain.RoleAdmin)).Get("/", h.listSOS)
			r.With(requireRole(domain.RolePharmacy, domain.RoleAdmin)).Get("/nearby", h.nearbySOS)
			r.With(requireRole(domain.RoleAdmin)).Post("/{id}/resolve", h.resolveSOS)
		})

		pr.Route("/inventory", func(r chi.Router) {
			r.With(requireRole(domain.RolePharmacy)).Get("/", h.listInventory)
			r.With(requireRole(domain.RolePharmacy)).Post("/", h.addInventory)
			r.With(requireRole(domain.RolePharmacy)).Get("/search", h.searchInventory)
			r.With(requireRole(domain.RolePharmacy)).Put("/{id}", h.updateInventory)
			r.With(requireRole(domain.RolePharmacy, domain.RoleAdmin)).Delete("/{id}", h.removeInventory)
		})

		pr.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(domain.RoleAdmin))
			r.Get("/alternatives", h.listAlternatives)
			r.Post("/alternatives", h.addAlternative)
			r.Get("/expiry-scan", h.expiryScan)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actorOf(r *http.Request) domain.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

// Medicine search

type coordinateParams struct {
	Latitude  *float64 `json:"lat" validate:"omitempty,latitude"`
	Longitude *float64 `json:"lng" validate:"omitempty,longitude"`
}

func parseCoordinates(r *http.Request) (coordinateParams, error) {
	var p coordinateParams
	var err error
	if p.Latitude, err = floatParam(r, "lat"); err != nil {
		return p, err
	}
	if p.Longitude, err = floatParam(r, "lng"); err != nil {
		return p, err
	}
	if err := validation.Struct(p); err != nil {
		return p, err
	}
	return p, validation.Pair("lat", p.Latitude, "lng", p.Longitude)
}

func (h *Handler) searchMedicines(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoordinates(r)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	h.runSearch(w, r, search.Query{
		Text:      r.URL.Query().Get("query"),
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
	})
}

func (h *Handler) runSearch(w http.ResponseWriter, r *http.Request, q search.Query) {
	results, err := h.search.Search(r.Context(), q)
	if err != nil {
		h.metrics.RecordSearch(metrics.SearchError)
		respondAppError(w, r, err)
		return
	}
	h.metrics.RecordSearch(searchOutcome(q.Text, results))
	respondJSON(w, http.StatusOK, results)
}

func searchOutcome(text string, results []domain.SearchResult) string {
	switch {
	case utf8.RuneCountInString(strings.TrimSpace(text)) < search.MinQueryLength:
		return metrics.SearchShort
	case len(results) == 0:
		return metrics.SearchEmpty
	case results[0].IsAlternative:
		return metrics.SearchAlternative
	default:
		return metrics.SearchExact
	}
}

// SOS handlers

type createSOSRequest struct {
	MedicineName string   `json:"medicine_name"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

func (h *Handler) createSOS(w http.ResponseWriter, r *http.Request) {
	var req createSOSRequest
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, r, err)
		return
	}
	signal, err := h.sos.Create(r.Context(), sos.CreateSignal{
		PatientID:    actorOf(r).UserID,
		MedicineName: req.MedicineName,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	h.metrics.RecordSOS("created")
	respondJSON(w, http.StatusCreated, signal)
}

func (h *Handler) listSOS(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	signals, err := h.sos.ListOpen(r.Context(), limit)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signals)
}

func (h *Handler) nearbySOS(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoordinates(r)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if coords.Latitude == nil {
		respondAppError(w, r, validationRequired("lat", "lng"))
		return
	}
	radius, err := floatParam(r, "radius")
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	radiusKm := 0.0
	if radius != nil {
		radiusKm = *radius
	}

	signals, err := h.sos.ListOpenNear(r.Context(), *coords.Latitude, *coords.Longitude, radiusKm, limit)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, signals)
}

func (h *Handler) resolveSOS(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if err := h.sos.Resolve(r.Context(), id); err != nil {
		respondAppError(w, r, err)
		return
	}
	h.metrics.RecordSOS("resolve")
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// Inventory handlers

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.inventory.ListForPharmacy(r.Context(), actorOf(r).PharmacyID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) addInventory(w http.ResponseWriter, r *http.Request) {
	var req inventory.NewStock
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, r, err)
		return
	}
	entry, err := h.inventory.Add(r.Context(), actorOf(r).PharmacyID, req)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) updateInventory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	var req inventory.StockUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, r, err)
		return
	}
	entry, err := h.inventory.Update(r.Context(), actorOf(r), id, req)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) removeInventory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if err := h.inventory.Remove(r.Context(), actorOf(r), id); err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// searchInventory searches only the caller's own pharmacy.
func (h *Handler) searchInventory(w http.ResponseWriter, r *http.Request) {
	pharmacyID := actorOf(r).PharmacyID
	h.runSearch(w, r, search.Query{
		Text:       r.URL.Query().Get("query"),
		PharmacyID: &pharmacyID,
	})
}

// Admin handlers

func (h *Handler) listAlternatives(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.inventory.ListMappings(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mappings)
}

func (h *Handler) addAlternative(w http.ResponseWriter, r *http.Request) {
	var req inventory.NewMapping
	if err := decodeJSON(r, &req); err != nil {
		respondAppError(w, r, err)
		return
	}
	mapping, err := h.inventory.AddMapping(r.Context(), req)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, mapping)
}

func (h *Handler) expiryScan(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days")
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	expiring, err := h.inventory.ExpiringWithin(r.Context(), days)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, expiring)
}
