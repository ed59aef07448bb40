package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/toshima-abt/hachiq/api/metrics"
	"github.com/toshima-abt/hachiq/pkg/pipeline"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

type AskRequest struct {
	Question string `json:"question"`

	// Year and Topic are optional hints forwarded to the pipeline, for
	// example from a year picker or a category tab next to the input box.
	Year  int    `json:"year,omitempty"`
	Topic string `json:"topic,omitempty"`

	// SessionID groups questions from one conversation. A newer question
	// on the same session cancels this one; whichever way the older run
	// ends, it comes back with 409 and Superseded set.
	SessionID string `json:"session_id,omitempty"`
}

// AskResponse wraps the pipeline's answer bundle. Superseded marks an
// answer that was outrun by a newer question on the same session; when the
// superseded run still produced a bundle it is included so a client may
// keep it for history.
type AskResponse struct {
	*pipeline.Bundle
	Superseded bool `json:"superseded,omitempty"`
}

// Ask runs the full pipeline for one question and returns the answer
// bundle: SQL, result, presentation plan, derived metrics and narrative.
func (h *Handlers) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "Question is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var token string
	if req.SessionID != "" {
		ctx, token = h.sessions.begin(ctx, req.SessionID)
	}

	bundle, err := h.cfg.Pipeline.Ask(ctx, pipeline.Question{
		Text:      req.Question,
		YearHint:  req.Year,
		TopicHint: req.Topic,
	})

	superseded := req.SessionID != "" && !h.sessions.current(req.SessionID, token)
	if err != nil {
		if superseded {
			metrics.QuestionsTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
			h.log.Info("Question superseded by a newer one", "session", req.SessionID)
			writeJSON(w, http.StatusConflict, AskResponse{Superseded: true})
			return
		}
		metrics.QuestionsTotal.WithLabelValues(outcomeFor(err)).Inc()
		h.writeError(w, err)
		return
	}

	if superseded {
		metrics.QuestionsTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		h.log.Info("Answer superseded by a newer question",
			"session", req.SessionID, "invocation", bundle.ID)
		writeJSON(w, http.StatusConflict, AskResponse{Bundle: bundle, Superseded: true})
		return
	}

	metrics.RecordQuestion(metrics.OutcomeAnswered,
		bundle.Timings.GenerateMS, bundle.Timings.ExecuteMS, bundle.Timings.NarrateMS)
	writeJSON(w, http.StatusOK, AskResponse{Bundle: bundle})
}

func outcomeFor(err error) string {
	var (
		genErr  *pipeline.GenerationError
		execErr *store.ExecutionError
	)
	switch {
	case errors.As(err, &genErr):
		return metrics.OutcomeGenerationFailed
	case errors.As(err, &execErr):
		return metrics.OutcomeExecutionFailed
	case sqlguard.IsUnsafe(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
