//go:build evals

package evals_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/toshima-abt/hachiq/pkg/pipeline"
)

func TestEvals_Anthropic_AskProducesJapaneseSummary(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	p := newEvalPipeline(t, &scriptedQuerier{rs: rankingResult()})

	bundle, err := p.Ask(context.Background(), pipeline.Question{Text: "事業所数が多い町トップ3は？"})
	require.NoError(t, err)

	t.Logf("SQL:\n%s", bundle.SQL)
	t.Logf("Summary:\n%s", bundle.Summary)

	require.Equal(t, pipeline.VisBar, bundle.Plan.Kind)
	require.NotEmpty(t, bundle.Summary)
	require.NotEqual(t, "データが見つかりませんでした。", bundle.Summary)

	// The narrative prompt asks for 2-4 plain sentences.
	require.Greater(t, utf8.RuneCountInString(bundle.Summary), 10)
	require.NotContains(t, bundle.Summary, "```")
	require.True(t,
		strings.Contains(bundle.Summary, "横山町") || strings.Contains(bundle.Summary, "事業所"),
		"summary should mention the data: %s", bundle.Summary)
}
