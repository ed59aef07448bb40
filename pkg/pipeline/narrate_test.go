package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/store"
)

func TestPipeline_Narrate_SummarizesSample(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []string{"  横山町が120事業所で最多です。\n"}}
	p := newTestPipeline(t, llm, unusedQuerier())

	summary, err := p.Narrate(t.Context(), "事業所数が多い町は？", businessRanking())
	require.NoError(t, err)
	require.Equal(t, "横山町が120事業所で最多です。", summary)

	require.Len(t, llm.calls, 1)
	call := llm.calls[0]
	require.False(t, call.opts.CacheSystemPrompt)
	require.Contains(t, call.system, "2〜4文で要約する")
	require.Contains(t, call.user, "質問: 事業所数が多い町は？")
	require.Contains(t, call.user, `"town_name":"横山町"`)
	require.Contains(t, call.user, `"num_offices":120`)
}

func TestPipeline_Narrate_EmptyResultSkipsModel(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{}
	p := newTestPipeline(t, llm, unusedQuerier())

	rs := &store.ResultSet{Columns: []store.Column{{Name: "town_name", Kind: catalog.KindGeoKey}}}
	summary, err := p.Narrate(t.Context(), "2030年の人口は？", rs)
	require.NoError(t, err)
	require.Equal(t, "データが見つかりませんでした。", summary)
	require.Empty(t, llm.calls)
}

func TestPipeline_Narrate_CapsSampledRows(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []string{"要約です。"}}
	p := newTestPipeline(t, llm, unusedQuerier(), func(c *Config) { c.NarrateRowLimit = 1 })

	_, err := p.Narrate(t.Context(), "事業所数は？", businessRanking())
	require.NoError(t, err)

	require.Len(t, llm.calls, 1)
	require.Contains(t, llm.calls[0].user, "横山町")
	require.NotContains(t, llm.calls[0].user, "旭町")
}

func TestPipeline_Narrate_TransportError(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{err: errors.New("anthropic API error: overloaded")}
	p := newTestPipeline(t, llm, unusedQuerier())

	_, err := p.Narrate(t.Context(), "事業所数は？", businessRanking())
	require.Error(t, err)
	require.ErrorContains(t, err, "LLM completion failed")
}

func TestPipeline_Narrate_BlankResponse(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []string{"   \n"}}
	p := newTestPipeline(t, llm, unusedQuerier())

	_, err := p.Narrate(t.Context(), "事業所数は？", businessRanking())
	require.Error(t, err)
	require.ErrorContains(t, err, "empty summary in response")
}
