package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler methods for routerHandlers.
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetPlayers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 25)
	offset := queryInt(r, "offset", 0)

	// The engine expects pre-clamped inputs; this is the caller-side clamp.
	if limit < 1 {
		limit = 1
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	page := h.engine.GetPage(r.Context(), limit, offset)
	writeJSON(w, page)
}

func (h *routerHandlers) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}

	entity, ok := h.engine.GetEntity(r.Context(), id)
	if !ok {
		writeError(w, "Unknown entity", http.StatusNotFound)
		return
	}
	writeJSON(w, entity)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"indexSize": h.engine.IndexSize(r.Context()),
	}
	if h.hub != nil {
		stats["wsClients"] = h.hub.ClientCount()
	}
	writeJSON(w, stats)
}

// Helper functions (package-level for reuse)

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
