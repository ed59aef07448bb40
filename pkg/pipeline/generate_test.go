package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

func TestPipeline_Generate_ParsesJSONResponse(t *testing.T) {
	t.Parallel()

	genSQL := "SELECT town_name, num_offices FROM business_stats WHERE year = 2021 ORDER BY num_offices DESC LIMIT 5"
	llm := &mockLLMClient{responses: []string{generateJSON(genSQL, "事業所数の上位5町")}}
	p := newTestPipeline(t, llm, unusedQuerier())

	cand, err := p.Generate(t.Context(), Question{Text: "2021年の事業所数トップ5は？"})
	require.NoError(t, err)

	require.Equal(t, genSQL, cand.SQL)
	require.Equal(t, "事業所数の上位5町", cand.Explanation)
	require.Equal(t, []string{"business_stats"}, cand.Tables)
	require.Equal(t, ExtractJSON, cand.Method)
	require.Equal(t, 1, cand.Attempts)
	require.Contains(t, cand.Raw, genSQL)

	require.Len(t, llm.calls, 1)
	require.True(t, llm.calls[0].opts.CacheSystemPrompt)
	require.Contains(t, llm.calls[0].system, "SELECT文のみを生成してください")
	require.Contains(t, llm.calls[0].system, "business_stats")
	require.Contains(t, llm.calls[0].user, "### ユーザーの質問")
}

func TestPipeline_Generate_PassesHintsToPrompt(t *testing.T) {
	t.Parallel()

	genSQL := "SELECT town_name, num_offices FROM business_stats WHERE year = 2021 AND industry_name = '建設業' LIMIT 10"
	llm := &mockLLMClient{responses: []string{generateJSON(genSQL, "")}}
	p := newTestPipeline(t, llm, unusedQuerier())

	_, err := p.Generate(t.Context(), Question{Text: "事業所数は？", YearHint: 2021, TopicHint: "建設業"})
	require.NoError(t, err)

	require.Len(t, llm.calls, 1)
	user := llm.calls[0].user
	require.Contains(t, user, "### 補足条件")
	require.Contains(t, user, "対象年度: 2021年")
	require.Contains(t, user, "関連トピック: 建設業")
}

func TestPipeline_Generate_AcceptsFencedSQL(t *testing.T) {
	t.Parallel()

	response := "以下のクエリで集計できます。\n```sql\nSELECT year, SUM(num_population) AS total FROM population GROUP BY year\n```\n参考にしてください。"
	llm := &mockLLMClient{responses: []string{response}}
	p := newTestPipeline(t, llm, unusedQuerier())

	cand, err := p.Generate(t.Context(), Question{Text: "年ごとの人口合計は？"})
	require.NoError(t, err)

	require.Equal(t, "SELECT year, SUM(num_population) AS total FROM population GROUP BY year\nLIMIT 10000", cand.SQL)
	require.Equal(t, []string{"population"}, cand.Tables)
	require.Equal(t, ExtractFenced, cand.Method)
	require.Contains(t, cand.Explanation, "以下のクエリで集計できます。")
}

func TestPipeline_Generate_AcceptsEmbeddedJSON(t *testing.T) {
	t.Parallel()

	response := `回答します。 {"sql": "SELECT town_name FROM population LIMIT 3", "explanation": "町名の一覧"} 以上です。`
	llm := &mockLLMClient{responses: []string{response}}
	p := newTestPipeline(t, llm, unusedQuerier())

	cand, err := p.Generate(t.Context(), Question{Text: "町名を3つ教えて"})
	require.NoError(t, err)
	require.Equal(t, "SELECT town_name FROM population LIMIT 3", cand.SQL)
	require.Equal(t, "町名の一覧", cand.Explanation)
	require.Equal(t, ExtractJSON, cand.Method)
}

func TestPipeline_Generate_RetriesOnRejectedSQL(t *testing.T) {
	t.Parallel()

	goodSQL := "SELECT town_name, num_offices FROM business_stats LIMIT 5"
	llm := &mockLLMClient{responses: []string{
		generateJSON("SELECT ghost_col FROM business_stats", ""),
		generateJSON(goodSQL, ""),
	}}
	p := newTestPipeline(t, llm, unusedQuerier())

	cand, err := p.Generate(t.Context(), Question{Text: "事業所数は？"})
	require.NoError(t, err)
	require.Equal(t, goodSQL, cand.SQL)
	require.Equal(t, 2, cand.Attempts)

	require.Len(t, llm.calls, 2)
	retry := llm.calls[1].user
	require.Contains(t, retry, "### ユーザーの質問\n事業所数は？")
	require.Contains(t, retry, "### 前回生成されたSQL")
	require.Contains(t, retry, "SELECT ghost_col FROM business_stats")
	require.Contains(t, retry, "### 検証エラー")
	require.Contains(t, retry, "ghost_col")
}

func TestPipeline_Generate_RetriesOnUnparseableResponse(t *testing.T) {
	t.Parallel()

	goodSQL := "SELECT town_name FROM population LIMIT 3"
	llm := &mockLLMClient{responses: []string{
		"すみません、質問の意図がわかりませんでした。",
		generateJSON(goodSQL, ""),
	}}
	p := newTestPipeline(t, llm, unusedQuerier())

	cand, err := p.Generate(t.Context(), Question{Text: "町名を教えて"})
	require.NoError(t, err)
	require.Equal(t, 2, cand.Attempts)

	require.Len(t, llm.calls, 2)
	require.Contains(t, llm.calls[1].user, "前回の出力からSQLを抽出できませんでした")
}

func TestPipeline_Generate_FailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []string{
		generateJSON("DROP TABLE business_stats", ""),
		generateJSON("DROP TABLE population", ""),
		generateJSON("DROP TABLE crimes", ""),
	}}
	p := newTestPipeline(t, llm, unusedQuerier())

	_, err := p.Generate(t.Context(), Question{Text: "全部消して"})
	require.Error(t, err)
	require.ErrorContains(t, err, "sql generation failed after 3 attempts")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	require.Equal(t, 3, genErr.Attempts)
	require.True(t, sqlguard.IsUnsafe(genErr.Err))
	require.Len(t, llm.calls, 3)
}

func TestPipeline_Generate_TransportErrorFailsFast(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{err: errors.New("connection refused")}
	p := newTestPipeline(t, llm, unusedQuerier())

	_, err := p.Generate(t.Context(), Question{Text: "事業所数は？"})
	require.Error(t, err)
	require.ErrorContains(t, err, "LLM completion failed")
	require.Len(t, llm.calls, 1)

	// An unreachable model is a generation failure, reported after the one
	// call that surfaced it.
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	require.Equal(t, 1, genErr.Attempts)
}

func TestParseGenerateResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		response        string
		wantSQL         string
		wantExplanation string
		wantMethod      ExtractionMethod
		wantErr         bool
	}{
		{
			name:            "plain json",
			response:        `{"sql": "SELECT 1;", "explanation": "定数"}`,
			wantSQL:         "SELECT 1",
			wantExplanation: "定数",
			wantMethod:      ExtractJSON,
		},
		{
			name:            "fenced json",
			response:        "```json\n{\"sql\": \"SELECT 2\", \"explanation\": \"二\"}\n```",
			wantSQL:         "SELECT 2",
			wantExplanation: "二",
			wantMethod:      ExtractJSON,
		},
		{
			name:            "json embedded in prose",
			response:        `結果: {"sql": "SELECT 3", "explanation": "三"} 以上`,
			wantSQL:         "SELECT 3",
			wantExplanation: "三",
			wantMethod:      ExtractJSON,
		},
		{
			name:            "sql fence",
			response:        "結果です。\n```sql\nSELECT town_name FROM population;\n```",
			wantSQL:         "SELECT town_name FROM population",
			wantExplanation: "結果です。",
			wantMethod:      ExtractFenced,
		},
		{
			name:       "generic fence with sql",
			response:   "```\nselect year from crimes\n```",
			wantSQL:    "select year from crimes",
			wantMethod: ExtractFenced,
		},
		{
			name:       "bare sql",
			response:   "SELECT num_offices FROM business_stats",
			wantSQL:    "SELECT num_offices FROM business_stats",
			wantMethod: ExtractBare,
		},
		{
			name:     "no sql at all",
			response: "該当するデータはありません。",
			wantErr:  true,
		},
		{
			name:     "json with empty sql",
			response: `{"sql": "", "explanation": "なし"}`,
			wantErr:  true,
		},
		{
			name:     "unescaped newline breaks json",
			response: "{\"sql\": \"SELECT 1\nFROM x\"}",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sql, explanation, method, err := parseGenerateResponse(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSQL, sql)
			require.Equal(t, tt.wantExplanation, explanation)
			require.Equal(t, tt.wantMethod, method)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		start int
		want  string
	}{
		{
			name:  "nested objects and braces in strings",
			input: `{"a": "b{c}", "d": {"e": 1}} trailing`,
			start: 0,
			want:  `{"a": "b{c}", "d": {"e": 1}}`,
		},
		{
			name:  "escaped quote inside string",
			input: `{"a": "x\"y}"}`,
			start: 0,
			want:  `{"a": "x\"y}"}`,
		},
		{
			name:  "unbalanced",
			input: `{"a": 1`,
			start: 0,
			want:  "",
		},
		{
			name:  "start not a brace",
			input: `no json here`,
			start: 0,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, extractJSONObject(tt.input, tt.start))
		})
	}
}

// unusedQuerier fails the test if the pipeline executes anything.
func unusedQuerier() *mockQuerier {
	return &mockQuerier{respond: func(sql string) (*store.ResultSet, error) {
		return nil, errors.New("unexpected query: " + sql)
	}}
}
