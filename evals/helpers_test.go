//go:build evals

package evals_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/pipeline"
	"github.com/toshima-abt/hachiq/pkg/pipeline/prompts"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

func init() {
	possiblePaths := []string{".env", "../.env"}

	for _, path := range possiblePaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
}

// requireAPIKey skips the test when no Anthropic credentials are present,
// so the eval suite is a no-op in offline CI runs.
func requireAPIKey(t *testing.T) {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval test")
	}
}

func evalModel() anthropic.Model {
	if m := os.Getenv("HACHIQ_MODEL"); m != "" {
		return anthropic.Model(m)
	}
	return anthropic.Model("claude-sonnet-4-20250514")
}

// newEvalPipeline wires a pipeline with the real Anthropic client and the
// given querier. Evals target model behavior, so the store is replaced
// with canned results rather than a live DuckDB file.
func newEvalPipeline(t *testing.T, querier pipeline.Querier) *pipeline.Pipeline {
	t.Helper()

	cat := catalog.Hachioji()
	guard, err := sqlguard.New(sqlguard.Config{Catalog: cat})
	require.NoError(t, err)
	loaded, err := prompts.Load()
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.Config{
		Logger:     testLogger(t),
		LLM:        pipeline.NewAnthropicLLMClient(evalModel(), 2048),
		Querier:    querier,
		Guard:      guard,
		Catalog:    cat,
		Prompts:    loaded,
		Boundaries: boundarySet{"横山町": {}, "旭町": {}, "台町": {}},
	})
	require.NoError(t, err)
	return p
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// scriptedQuerier answers every statement with the same canned result.
type scriptedQuerier struct {
	rs *store.ResultSet
}

func (q *scriptedQuerier) Query(_ context.Context, _ string) (*store.ResultSet, error) {
	return q.rs, nil
}

// boundarySet is a BoundaryMatcher over a fixed name set.
type boundarySet map[string]struct{}

func (b boundarySet) Match(name string) bool {
	_, ok := b[name]
	return ok
}

func rankingResult() *store.ResultSet {
	return &store.ResultSet{
		Columns: []store.Column{
			{Name: "town_name", Kind: catalog.KindGeoKey},
			{Name: "num_offices", Kind: catalog.KindMeasure},
		},
		Rows: [][]any{
			{"横山町", int64(120)},
			{"旭町", int64(45)},
			{"台町", int64(30)},
		},
	}
}
