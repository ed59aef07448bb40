package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/toshima-abt/hachiq/pkg/pipeline"
)

type GenerateRequest struct {
	Question string `json:"question"`

	// Year and Topic are optional hints, as on /api/ask.
	Year  int    `json:"year,omitempty"`
	Topic string `json:"topic,omitempty"`
}

type GenerateResponse struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation,omitempty"`
	Tables      []string `json:"tables,omitempty"`
	Attempts    int      `json:"attempts"`
}

// GenerateSQL turns a natural-language question into a validated SELECT
// without executing it. Unlike /api/ask, a rejected statement is fed back
// to the model with the validator's complaint, up to the attempt budget.
func (h *Handlers) GenerateSQL(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question is required", http.StatusBadRequest)
		return
	}

	cand, err := h.cfg.Pipeline.Generate(r.Context(), pipeline.Question{
		Text:      req.Question,
		YearHint:  req.Year,
		TopicHint: req.Topic,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		SQL:         cand.SQL,
		Explanation: cand.Explanation,
		Tables:      cand.Tables,
		Attempts:    cand.Attempts,
	})
}
