package handlers

import (
	"errors"
	"net/http"

	"github.com/toshima-abt/hachiq/api/metrics"
	"github.com/toshima-abt/hachiq/pkg/pipeline"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

// ErrorResponse is the JSON envelope for every failed request. Error holds
// the user-facing message; Rule and Reason carry machine-readable causes
// for validation and execution failures.
type ErrorResponse struct {
	Error      string `json:"error"`
	Rule       string `json:"rule,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Superseded bool   `json:"superseded,omitempty"`
}

// writeError maps a pipeline or store failure onto a status code and an
// ErrorResponse. Internal detail is logged, never returned to the client;
// validator verdicts are safe to show verbatim.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var (
		genErr    *pipeline.GenerationError
		unsafeErr *sqlguard.UnsafeQueryError
		execErr   *store.ExecutionError
	)

	switch {
	case errors.As(err, &genErr):
		resp := ErrorResponse{
			Error:    "SQLを生成できませんでした。質問を言い換えてお試しください。",
			Attempts: genErr.Attempts,
		}
		// The last failure inside the attempt loop may have been a
		// validation rejection; surface its rule.
		if errors.As(genErr.Err, &unsafeErr) {
			resp.Rule = string(unsafeErr.Rule)
			metrics.ValidatorRejections.WithLabelValues(string(unsafeErr.Rule)).Inc()
		}
		h.log.Warn("SQL generation failed", "attempts", genErr.Attempts, "error", genErr.Err)
		writeJSON(w, http.StatusBadGateway, resp)

	case errors.As(err, &unsafeErr):
		metrics.ValidatorRejections.WithLabelValues(string(unsafeErr.Rule)).Inc()
		h.log.Warn("Unsafe statement rejected", "rule", unsafeErr.Rule, "detail", unsafeErr.Detail)
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: unsafeErr.Error(),
			Rule:  string(unsafeErr.Rule),
		})

	case errors.As(err, &execErr):
		status := http.StatusBadRequest
		if execErr.Reason == store.ReasonTimeout {
			status = http.StatusGatewayTimeout
		}
		h.log.Warn("Query execution failed", "reason", execErr.Reason, "error", execErr.Err)
		writeJSON(w, status, ErrorResponse{
			Error:  "クエリの実行に失敗しました。",
			Reason: string(execErr.Reason),
		})

	default:
		h.log.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "内部エラーが発生しました。",
		})
	}
}
