package api

import (
	"net/http"
)

// ListCategories returns active categories with their product counts
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.queries.Categories(r.Context())
	if err != nil {
		h.failList(w, r, "categories", err)
		return
	}
	respondList(w, http.StatusOK, "categories", categories, nil)
}
