package rides

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bascecoride/ecoride-server-deploy104/pkg/jwt"
)

// Handler exposes the REST read surface for rides. Mutations go through
// the websocket session layer; REST is for history and lookups.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the ride service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns a chi.Router with all ride routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jwt.RequireAuth)

	r.Get("/", h.ListMine)
	r.Get("/{id}", h.GetByID)

	return r
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	list, err := h.svc.History(r.Context(), claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []*Ride{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	ride, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !h.svc.isParticipant(ride, Actor{ID: claims.UserID}) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not your ride"})
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// EstimateFares prices a distance across all vehicle types. Mounted at
// /fares, outside the rides subtree.
func (h *Handler) EstimateFares(w http.ResponseWriter, r *http.Request) {
	dist, err := strconv.ParseFloat(r.URL.Query().Get("distance_km"), 64)
	if err != nil || dist < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "distance_km query parameter is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distance_km": dist,
		"fares":       h.svc.EstimateFares(dist),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
