package handlers

import "net/http"

// GetCatalog returns the queryable schema: tables, columns with their
// semantic kinds, and the enumerated value domains.
func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Catalog)
}
