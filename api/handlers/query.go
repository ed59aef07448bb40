package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/toshima-abt/hachiq/pkg/store"
)

type QueryRequest struct {
	SQL string `json:"sql"`
}

type QueryResponse struct {
	Columns   []store.Column `json:"columns"`
	Rows      [][]any        `json:"rows"`
	RowCount  int            `json:"row_count"`
	ElapsedMs int64          `json:"elapsed_ms"`
}

// ExecuteQuery runs a caller-supplied statement. The statement passes
// through the same validator as generated SQL; there is no bypass.
func (h *Handlers) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		http.Error(w, "SQL is required", http.StatusBadRequest)
		return
	}

	validated, err := h.cfg.Guard.Validate(req.SQL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	start := time.Now()
	rs, err := h.cfg.Store.Query(r.Context(), validated.SQL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Columns:   rs.Columns,
		Rows:      rs.Rows,
		RowCount:  len(rs.Rows),
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}
