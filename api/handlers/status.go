package handlers

import "net/http"

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health reports liveness and store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Store.Ping(r.Context()); err != nil {
		h.log.Error("Store ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded",
			Error:  "store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
