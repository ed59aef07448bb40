package handlers

import "net/http"

// GetBoundaries returns the town-district geometry as a GeoJSON
// FeatureCollection, ready for choropleth rendering on the client.
func (h *Handlers) GetBoundaries(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Boundaries == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "境界データが読み込まれていません。"})
		return
	}
	writeJSON(w, http.StatusOK, h.cfg.Boundaries.FeatureCollection())
}
