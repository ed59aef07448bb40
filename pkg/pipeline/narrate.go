package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toshima-abt/hachiq/pkg/store"
)

// noDataMessage stands in for the narrative when the query matched nothing.
const noDataMessage = "データが見つかりませんでした。"

// Narrate produces the short Japanese comment on a result, grounded in a
// sample of its rows. Empty results short-circuit to a fixed message
// without a model call.
func (p *Pipeline) Narrate(ctx context.Context, question string, rs *store.ResultSet) (string, error) {
	if rs == nil || rs.Empty() {
		return noDataMessage, nil
	}

	sample, err := encodeRows(rs, p.cfg.NarrateRowLimit)
	if err != nil {
		return "", fmt.Errorf("failed to encode result sample: %w", err)
	}
	userPrompt := fmt.Sprintf("質問: %s\nデータサンプル: %s", question, sample)

	response, err := p.cfg.LLM.Complete(ctx, p.cfg.Prompts.Narrate, userPrompt)
	if err != nil {
		return "", fmt.Errorf("LLM completion failed: %w", err)
	}
	summary := strings.TrimSpace(response)
	if summary == "" {
		return "", fmt.Errorf("empty summary in response")
	}
	return summary, nil
}

// encodeRows renders at most limit rows as JSON records for the prompt.
func encodeRows(rs *store.ResultSet, limit int) (string, error) {
	n := len(rs.Rows)
	if n > limit {
		n = limit
	}
	records := make([]map[string]any, 0, n)
	for _, row := range rs.Rows[:n] {
		rec := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row) {
				rec[col.Name] = row[i]
			}
		}
		records = append(records, rec)
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
