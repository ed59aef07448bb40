package pipeline

import (
	"context"
	"fmt"

	"github.com/toshima-abt/hachiq/pkg/store"
)

// CompleteOptions holds options for LLM completion.
type CompleteOptions struct {
	CacheSystemPrompt bool // Enable prompt caching for the system prompt
}

// CompleteOption is a functional option for Complete.
type CompleteOption func(*CompleteOptions)

// WithCacheControl enables prompt caching for the system prompt. The prompt
// body plus the catalog description is identical across calls, so caching it
// cuts cost and latency on repeated questions.
func WithCacheControl() CompleteOption {
	return func(o *CompleteOptions) {
		o.CacheSystemPrompt = true
	}
}

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}

// Querier executes validated SQL against the snapshot.
type Querier interface {
	Query(ctx context.Context, sql string) (*store.ResultSet, error)
}

// Question is one natural-language request. The hints are optional
// structured refinements a caller may pass alongside the text; zero values
// mean no hint. A question lives for one invocation.
type Question struct {
	Text string `json:"text"`

	// YearHint pins the survey year when the caller already knows it, for
	// example from a year picker next to the input box.
	YearHint int `json:"year,omitempty"`

	// TopicHint names the subject area (an industry, a crime category) the
	// caller has preselected.
	TopicHint string `json:"topic,omitempty"`
}

// ExtractionMethod records how a statement was recovered from the raw model
// response.
type ExtractionMethod string

const (
	ExtractJSON   ExtractionMethod = "json"
	ExtractFenced ExtractionMethod = "fenced"
	ExtractBare   ExtractionMethod = "bare"
)

// Candidate is a statement extracted from a model response, with its
// provenance. After validation SQL holds the validator's normalized text,
// not the raw extraction.
type Candidate struct {
	SQL         string           `json:"sql"`
	Explanation string           `json:"explanation,omitempty"`
	Tables      []string         `json:"tables,omitempty"`
	Method      ExtractionMethod `json:"method,omitempty"`
	Attempts    int              `json:"attempts"`

	// Raw is the full model response the statement came from. Kept for
	// logging, never serialized.
	Raw string `json:"-"`
}

// VisKind selects the presentation for a result.
type VisKind string

const (
	VisTable VisKind = "table"
	VisBar   VisKind = "bar"
	VisMap   VisKind = "map"
)

// BarPlan describes a bar chart: one label axis, one or more measure series.
type BarPlan struct {
	LabelColumn  string   `json:"label_column"`
	ValueColumns []string `json:"value_columns"`
}

// MapPlan describes a choropleth keyed on district names.
type MapPlan struct {
	KeyColumn   string     `json:"key_column"`
	ValueColumn string     `json:"value_column"`
	Center      [2]float64 `json:"center"` // lat, lon
	// DroppedRows counts result rows whose key matched no district boundary.
	DroppedRows int `json:"dropped_rows"`
}

// Plan is the chosen presentation for a result.
type Plan struct {
	Kind VisKind  `json:"kind"`
	Bar  *BarPlan `json:"bar,omitempty"`
	Map  *MapPlan `json:"map,omitempty"`
}

// Timings records per-stage wall time in milliseconds.
type Timings struct {
	GenerateMS int64 `json:"generate_ms"`
	ExecuteMS  int64 `json:"execute_ms"`
	NarrateMS  int64 `json:"narrate_ms"`
	TotalMS    int64 `json:"total_ms"`
}

// Bundle is the complete answer to one question: the validated statement,
// its result, the presentation plan, optional derived metrics and the
// narrative summary.
type Bundle struct {
	ID          string           `json:"id"`
	Question    string           `json:"question"`
	SQL         string           `json:"sql"`
	Explanation string           `json:"explanation,omitempty"`
	Attempts    int              `json:"attempts"`
	Result      *store.ResultSet `json:"result"`
	Plan        Plan             `json:"plan"`
	Metrics     *MetricsReport   `json:"metrics,omitempty"`
	Summary     string           `json:"summary"`
	Warnings    []string         `json:"warnings,omitempty"`
	Timings     Timings          `json:"timings"`
}

// GenerationError reports that no valid statement came out of the model
// within the attempt budget. It wraps the last extraction or validation
// failure.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("sql generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
