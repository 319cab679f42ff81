package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/colorhit/internal/store"
)

// HitsHandler serves the hit log under /api/hits.
type HitsHandler struct {
	store *store.Store
}

// NewHitsHandler creates a new HitsHandler with the given store.
func NewHitsHandler(s *store.Store) *HitsHandler {
	return &HitsHandler{store: s}
}

type hitResponse struct {
	ID        string  `json:"id"`
	Team      string  `json:"team"`
	Color     string  `json:"color"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Score     float64 `json:"score"`
	Mass      uint32  `json:"mass"`
	FrameTime int64   `json:"frameTime"`
	CreatedAt string  `json:"created_at"`
}

type listHitsResponse struct {
	Hits   []hitResponse  `json:"hits"`
	Counts map[string]int `json:"counts"`
}

func toHitResponse(h *store.Hit) hitResponse {
	return hitResponse{
		ID:        h.ID,
		Team:      h.Team,
		Color:     h.Color,
		X:         h.X,
		Y:         h.Y,
		Score:     h.Score,
		Mass:      h.Mass,
		FrameTime: h.FrameTime,
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
}

// ServeHTTP implements the http.Handler interface.
// Paths: /api/hits or /api/hits/{id}
func (h *HitsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/hits"), "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.clear(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.get(w, r, id)
}

// list handles GET /api/hits?limit=N.
func (h *HitsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	hits, err := h.store.Hits().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hits")
		return
	}
	counts, err := h.store.Hits().CountByTeam(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count hits")
		return
	}

	resp := listHitsResponse{
		Hits:   make([]hitResponse, 0, len(hits)),
		Counts: counts,
	}
	for _, hit := range hits {
		resp.Hits = append(resp.Hits, toHitResponse(hit))
	}
	writeJSON(w, http.StatusOK, resp)
}

// get handles GET /api/hits/{id}.
func (h *HitsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	hit, err := h.store.Hits().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Hit not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get hit")
		return
	}
	writeJSON(w, http.StatusOK, toHitResponse(hit))
}

// clear handles DELETE /api/hits.
func (h *HitsHandler) clear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Hits().DeleteAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear hits")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
