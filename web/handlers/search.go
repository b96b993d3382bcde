package handlers

import (
	"net/http"
	"strconv"

	"github.com/prodexhq/prodex/internal/search"
)

// SearchHandler handles the vector search endpoint.
type SearchHandler struct {
	service *search.Service
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search handles GET /api/search — tenant-scoped similarity search.
//
// Query parameters:
//   - q      — query text (required)
//   - tenant — tenant id (falls back to X-Tenant-ID header)
//   - k      — max results (default 5, max 50)
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		tenantID = r.Header.Get("X-Tenant-ID")
	}
	query := r.URL.Query().Get("q")

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "k must be an integer", err)
			return
		}
		k = parsed
	}
	if k > 50 {
		k = 50
	}

	results, err := h.service.Search(r.Context(), tenantID, query, k)
	if err != nil {
		respondError(w, statusForError(err), "search failed", err)
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Total:   len(results),
		Query:   query,
	})
}
