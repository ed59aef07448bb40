// Package pipeline turns a natural-language question about the city's
// statistics into a presentation bundle: a validated SQL statement, its
// bounded result, a chart or map plan, optional derived metrics and a short
// Japanese narrative.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/pipeline/prompts"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

// Config holds the configuration for the pipeline.
type Config struct {
	Logger  *slog.Logger
	LLM     LLMClient
	Querier Querier
	Guard   *sqlguard.Guard
	Catalog *catalog.Catalog
	Prompts *prompts.Prompts

	// Boundaries enables map plans. Optional: without it every spatial
	// result degrades to a bar chart or table.
	Boundaries store.BoundaryMatcher

	// MaxAttempts bounds the generate-validate loop. Defaults to 3.
	MaxAttempts int

	// BarRowLimit is the most rows a bar chart may carry. Defaults to 60.
	BarRowLimit int

	// MapRowLimit is the most rows a map may carry. Defaults to 500.
	MapRowLimit int

	// NarrateRowLimit caps the rows sampled into the summary prompt.
	// Defaults to 30.
	NarrateRowLimit int

	Clock clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.LLM == nil {
		return fmt.Errorf("llm client is required")
	}
	if cfg.Querier == nil {
		return fmt.Errorf("querier is required")
	}
	if cfg.Guard == nil {
		return fmt.Errorf("guard is required")
	}
	if cfg.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if cfg.Prompts == nil {
		return fmt.Errorf("prompts are required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BarRowLimit == 0 {
		cfg.BarRowLimit = 60
	}
	if cfg.MapRowLimit == 0 {
		cfg.MapRowLimit = 500
	}
	if cfg.NarrateRowLimit == 0 {
		cfg.NarrateRowLimit = 30
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Pipeline answers questions end to end.
type Pipeline struct {
	log *slog.Logger
	cfg Config
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pipeline config: %w", err)
	}
	return &Pipeline{log: cfg.Logger, cfg: cfg}, nil
}

// Ask runs the full pipeline for one question. A statement the validator
// rejects aborts the question; only Generate feeds rejections back to the
// model.
func (p *Pipeline) Ask(ctx context.Context, q Question) (*Bundle, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("question is required")
	}

	id := uuid.NewString()
	log := p.log.With("invocation", id)
	clock := p.cfg.Clock
	totalStart := clock.Now()

	log.Info("Generating SQL", "question", truncate(q.Text, 120))
	genStart := clock.Now()
	cand, err := p.synthesize(ctx, q)
	if err != nil {
		return nil, err
	}
	validated, err := p.cfg.Guard.Validate(cand.SQL)
	if err != nil {
		log.Warn("Generated SQL rejected", "method", cand.Method, "error", err)
		return nil, err
	}
	cand.SQL = validated.SQL
	cand.Tables = validated.Tables
	genDur := clock.Since(genStart)
	log.Info("Generated SQL", "attempts", cand.Attempts, "method", cand.Method, "tables", cand.Tables, "duration", genDur)

	execStart := clock.Now()
	rs, err := p.cfg.Querier.Query(ctx, cand.SQL)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	execDur := clock.Since(execStart)
	log.Info("Executed query", "rows", len(rs.Rows), "duration", execDur)

	plan := p.Classify(q.Text, rs)

	rs, derivedCols := Augment(rs)
	if len(derivedCols) > 0 {
		log.Debug("Derived indicator columns", "columns", derivedCols)
	}

	var warnings []string
	var metrics *MetricsReport
	if DetectMetricIntent(q.Text) || len(derivedCols) > 0 {
		metrics, err = p.Derive(ctx, q, cand.SQL)
		if err != nil {
			log.Warn("Failed to derive metrics", "error", err)
			warnings = append(warnings, "指標の計算に失敗しました。")
			metrics = nil
		}
	}

	narStart := clock.Now()
	summary, err := p.Narrate(ctx, q.Text, rs)
	if err != nil {
		log.Warn("Failed to generate summary", "error", err)
		warnings = append(warnings, "AIによる分析コメントの生成に失敗しました。")
		summary = "AIによる分析コメントの生成に失敗しました。"
	}
	narDur := clock.Since(narStart)

	log.Info("Question answered",
		"kind", plan.Kind,
		"rows", len(rs.Rows),
		"warnings", len(warnings),
		"duration", clock.Since(totalStart),
	)

	return &Bundle{
		ID:          id,
		Question:    q.Text,
		SQL:         cand.SQL,
		Explanation: cand.Explanation,
		Attempts:    cand.Attempts,
		Result:      rs,
		Plan:        plan,
		Metrics:     metrics,
		Summary:     summary,
		Warnings:    warnings,
		Timings: Timings{
			GenerateMS: genDur.Milliseconds(),
			ExecuteMS:  execDur.Milliseconds(),
			NarrateMS:  narDur.Milliseconds(),
			TotalMS:    clock.Since(totalStart).Milliseconds(),
		},
	}, nil
}

// truncate shortens s for log lines.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
