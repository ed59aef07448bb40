//go:build evals

package evals_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toshima-abt/hachiq/pkg/pipeline"
)

func TestEvals_Anthropic_GenerateRankingQuestion(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	p := newEvalPipeline(t, &scriptedQuerier{rs: rankingResult()})

	cand, err := p.Generate(context.Background(), pipeline.Question{Text: "2021年の建設業の事業所数が多い町トップ5は？"})
	require.NoError(t, err)

	t.Logf("Generated SQL:\n%s", cand.SQL)

	require.Contains(t, cand.Tables, "business_stats")
	require.Contains(t, cand.SQL, "2021")
	require.Contains(t, cand.SQL, "建設業")

	upper := strings.ToUpper(cand.SQL)
	require.Contains(t, upper, "ORDER BY")
	require.Contains(t, upper, "LIMIT")
}

func TestEvals_Anthropic_GenerateCrimeQuestion(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	p := newEvalPipeline(t, &scriptedQuerier{rs: rankingResult()})

	cand, err := p.Generate(context.Background(), pipeline.Question{Text: "2023年の自転車盗の件数が多い町はどこ？"})
	require.NoError(t, err)

	t.Logf("Generated SQL:\n%s", cand.SQL)

	require.Contains(t, cand.Tables, "crimes")
	require.Contains(t, cand.SQL, "自転車盗")
}

func TestEvals_Anthropic_GenerateJoinsAcrossTables(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	p := newEvalPipeline(t, &scriptedQuerier{rs: rankingResult()})

	cand, err := p.Generate(context.Background(), pipeline.Question{Text: "2021年の町ごとの人口あたり事業所数を出して"})
	require.NoError(t, err)

	t.Logf("Generated SQL:\n%s", cand.SQL)

	require.Contains(t, cand.Tables, "business_stats")
	require.Contains(t, cand.Tables, "population")
}

func TestEvals_Anthropic_GenerateHonorsHints(t *testing.T) {
	t.Parallel()
	requireAPIKey(t)

	p := newEvalPipeline(t, &scriptedQuerier{rs: rankingResult()})

	// The question itself names no year or industry; both arrive as hints.
	cand, err := p.Generate(context.Background(), pipeline.Question{
		Text:      "事業所数が多い町トップ5は？",
		YearHint:  2021,
		TopicHint: "建設業",
	})
	require.NoError(t, err)

	t.Logf("Generated SQL:\n%s", cand.SQL)

	require.Contains(t, cand.Tables, "business_stats")
	require.Contains(t, cand.SQL, "2021")
	require.Contains(t, cand.SQL, "建設業")
}
