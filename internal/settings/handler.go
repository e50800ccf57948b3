package settings

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bascecoride/ecoride-server-deploy104/internal/vehicles"
	"github.com/bascecoride/ecoride-server-deploy104/pkg/jwt"
)

// Handler exposes the settings admin endpoints. Writes land in the
// store and fan out an invalidation so every node reloads.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the settings service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns a chi.Router with the settings routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jwt.RequireAuth)

	r.Get("/", h.List)
	r.Put("/radius", h.SetRadius)
	r.Put("/rates", h.SetRates)

	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"values":           h.svc.All(),
		"search_radius_km": h.svc.SearchRadiusKm(),
		"rates":            h.svc.Rates(),
	})
}

func (h *Handler) SetRadius(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RadiusKm float64 `json:"radius_km"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RadiusKm <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "radius_km must be > 0"})
		return
	}
	if err := h.svc.Set(r.Context(), KeySearchRadiusKm, strconv.FormatFloat(req.RadiusKm, 'f', -1, 64)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"radius_km": h.svc.SearchRadiusKm()})
}

func (h *Handler) SetRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vehicle string   `json:"vehicle"`
		Minimum *float64 `json:"minimum,omitempty"`
		PerKm   *float64 `json:"per_km,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	vt, err := vehicles.Parse(req.Vehicle)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Minimum == nil && req.PerKm == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nothing to update"})
		return
	}

	prefix := "fare." + vehicleKey(vt)
	if req.Minimum != nil {
		if err := h.svc.Set(r.Context(), prefix+".minimum", formatFloat(*req.Minimum)); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.PerKm != nil {
		if err := h.svc.Set(r.Context(), prefix+".per_km", formatFloat(*req.PerKm)); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": h.svc.Rates()})
}

func vehicleKey(vt vehicles.Type) string {
	switch vt {
	case vehicles.Motorcycle:
		return "motorcycle"
	case vehicles.Tricycle:
		return "tricycle"
	default:
		return "cab"
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
