package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toshima-abt/hachiq/pkg/sqlguard"
)

// GenerateResponse is the expected JSON response from the generate step.
type GenerateResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// synthesizeAttempts caps the extraction retry inside Ask: one amended
// retry after an unusable response, then give up.
const synthesizeAttempts = 2

// synthesize calls the model and extracts one statement from its response.
// Only extraction failures are retried; the caller validates the result and
// a rejection there is final. Transport failures are not retried either.
func (p *Pipeline) synthesize(ctx context.Context, q Question) (Candidate, error) {
	systemPrompt := buildGeneratePrompt(p.cfg.Prompts.Generate, p.cfg.Catalog.Describe())
	userPrompt := buildUserPrompt(q)

	var lastErr error
	for attempt := 1; attempt <= synthesizeAttempts; attempt++ {
		response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt, WithCacheControl())
		if err != nil {
			return Candidate{}, &GenerationError{Attempts: attempt, Err: fmt.Errorf("LLM completion failed: %w", err)}
		}

		sql, explanation, method, err := parseGenerateResponse(response)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to extract SQL from response, retrying", "attempt", attempt, "error", err)
			userPrompt = amendExtraction(q)
			continue
		}

		return Candidate{
			SQL:         sql,
			Explanation: explanation,
			Method:      method,
			Attempts:    attempt,
			Raw:         response,
		}, nil
	}

	return Candidate{}, &GenerationError{Attempts: synthesizeAttempts, Err: lastErr}
}

// Generate asks the model for a statement and validates it, feeding both
// extraction and validation failures back to the model up to MaxAttempts
// times. This is the explicit regeneration surface behind POST /api/generate;
// Ask never retries a rejected statement.
func (p *Pipeline) Generate(ctx context.Context, q Question) (Candidate, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Candidate{}, fmt.Errorf("question is required")
	}

	systemPrompt := buildGeneratePrompt(p.cfg.Prompts.Generate, p.cfg.Catalog.Describe())
	userPrompt := buildUserPrompt(q)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt, WithCacheControl())
		if err != nil {
			return Candidate{}, &GenerationError{Attempts: attempt, Err: fmt.Errorf("LLM completion failed: %w", err)}
		}

		sql, explanation, method, err := parseGenerateResponse(response)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to extract SQL from response, retrying", "attempt", attempt, "error", err)
			userPrompt = amendExtraction(q)
			continue
		}

		validated, err := p.cfg.Guard.Validate(sql)
		if err != nil {
			if sqlguard.IsUnsafe(err) {
				lastErr = err
				p.log.Warn("Generated SQL rejected, retrying", "attempt", attempt, "error", err)
				userPrompt = amendValidation(q, sql, err)
				continue
			}
			return Candidate{}, fmt.Errorf("failed to validate sql: %w", err)
		}

		return Candidate{
			SQL:         validated.SQL,
			Explanation: explanation,
			Tables:      validated.Tables,
			Method:      method,
			Attempts:    attempt,
			Raw:         response,
		}, nil
	}

	return Candidate{}, &GenerationError{Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// buildGeneratePrompt combines the prompt body with the catalog description.
func buildGeneratePrompt(base, catalogDescription string) string {
	return base + "\n\n" + catalogDescription
}

// buildUserPrompt renders the question and its optional hints.
func buildUserPrompt(q Question) string {
	var b strings.Builder
	b.WriteString("### ユーザーの質問\n")
	b.WriteString(q.Text)
	if q.YearHint != 0 || q.TopicHint != "" {
		b.WriteString("\n\n### 補足条件")
		if q.YearHint != 0 {
			fmt.Fprintf(&b, "\n- 対象年度: %d年", q.YearHint)
		}
		if q.TopicHint != "" {
			fmt.Fprintf(&b, "\n- 関連トピック: %s", q.TopicHint)
		}
	}
	return b.String()
}

// amendValidation rebuilds the user prompt with the rejected statement and
// the validator's complaint.
func amendValidation(q Question, sql string, err error) string {
	return fmt.Sprintf(
		"%s\n\n### 前回生成されたSQL\n```sql\n%s\n```\n\n### 検証エラー\n%s\n\n上記のエラーを修正したSQLクエリを、指定のJSON形式で出力してください。",
		buildUserPrompt(q), sql, err,
	)
}

// amendExtraction rebuilds the user prompt after an unparseable response.
func amendExtraction(q Question) string {
	return fmt.Sprintf(
		"%s\n\n前回の出力からSQLを抽出できませんでした。次のJSONオブジェクトのみを出力してください。\n{\"sql\": \"<SQLクエリ>\", \"explanation\": \"<説明>\"}",
		buildUserPrompt(q),
	)
}

// parseGenerateResponse extracts SQL and explanation from the LLM response.
func parseGenerateResponse(response string) (sql, explanation string, method ExtractionMethod, err error) {
	response = strings.TrimSpace(response)

	// First, try to parse as JSON
	jsonStr := extractJSON(response)
	if jsonStr != "" {
		var parsed GenerateResponse
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil && parsed.SQL != "" {
			return cleanSQL(parsed.SQL), parsed.Explanation, ExtractJSON, nil
		}
	}

	// Fall back to extracting SQL from code blocks
	sql = extractSQLFromCodeBlocks(response)
	if sql != "" {
		return sql, extractExplanation(response), ExtractFenced, nil
	}

	// Last resort: treat the whole response as SQL if it looks like SQL
	if looksLikeSQL(response) {
		return cleanSQL(response), "", ExtractBare, nil
	}

	return "", "", "", fmt.Errorf("could not extract SQL from response")
}

// extractSQLFromCodeBlocks finds SQL in markdown code blocks.
func extractSQLFromCodeBlocks(response string) string {
	if start := strings.Index(response, "```sql"); start != -1 {
		start += 6 // len("```sql")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return cleanSQL(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if looksLikeSQL(content) {
				return cleanSQL(content)
			}
		}
	}

	return ""
}

// looksLikeSQL checks if text appears to be a SQL statement.
func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	sqlKeywords := []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"}
	for _, kw := range sqlKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

// cleanSQL normalizes SQL by trimming whitespace and removing trailing semicolons.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	return sql
}

// extractExplanation returns the prose outside code blocks, shortened.
func extractExplanation(response string) string {
	var b strings.Builder
	rest := response
	for {
		start := strings.Index(rest, "```")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		end := strings.Index(rest[start+3:], "```")
		if end == -1 {
			break
		}
		rest = rest[start+3+end+3:]
	}
	explanation := strings.Join(strings.Fields(b.String()), " ")
	return truncate(explanation, 200)
}

// extractJSON finds a JSON object in the response, preferring fenced blocks.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += 7 // len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			content := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(content, "{") {
				return content
			}
		}
	}

	if strings.HasPrefix(response, "{") {
		return extractJSONObject(response, 0)
	}

	if start := strings.Index(response, "{"); start != -1 {
		return extractJSONObject(response, start)
	}

	return ""
}

// extractJSONObject extracts a complete JSON object starting at the given
// position, properly handling strings that may contain braces.
func extractJSONObject(s string, start int) string {
	if start >= len(s) || s[start] != '{' {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
