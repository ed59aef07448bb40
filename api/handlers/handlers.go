// Package handlers implements the HTTP handlers of the hachiq API: the
// question pipeline, direct validated query execution, catalog inspection
// and health reporting.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/geo"
	"github.com/toshima-abt/hachiq/pkg/pipeline"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

// Pipeline is the question-answering engine behind the API. Implemented by
// *pipeline.Pipeline.
type Pipeline interface {
	Ask(ctx context.Context, q pipeline.Question) (*pipeline.Bundle, error)
	Generate(ctx context.Context, q pipeline.Question) (pipeline.Candidate, error)
}

// Store is the subset of the statistics store the handlers use.
type Store interface {
	Query(ctx context.Context, sql string) (*store.ResultSet, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Logger   *slog.Logger
	Pipeline Pipeline
	Store    Store
	Guard    *sqlguard.Guard
	Catalog  *catalog.Catalog

	// Boundaries backs GET /api/boundaries so map clients can fetch the
	// district geometry. Optional: without it the route answers 404.
	Boundaries *geo.Index

	// SessionTTL is how long a session's newest invocation token is
	// remembered. Defaults to 30 minutes.
	SessionTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.Guard == nil {
		return fmt.Errorf("guard is required")
	}
	if cfg.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	return nil
}

// Handlers carries the API's dependencies. One instance serves all routes.
type Handlers struct {
	cfg      Config
	log      *slog.Logger
	sessions *sessionRegistry
}

func New(cfg Config) (*Handlers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate handlers config: %w", err)
	}
	return &Handlers{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: newSessionRegistry(cfg.SessionTTL),
	}, nil
}

// Register mounts the API routes on the router.
func (h *Handlers) Register(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/catalog", h.GetCatalog)
	r.Get("/api/boundaries", h.GetBoundaries)
	r.Post("/api/generate", h.GenerateSQL)
	r.Post("/api/query", h.ExecuteQuery)
	r.Post("/api/ask", h.Ask)
}

// Close releases the session registry's expiry goroutine.
func (h *Handlers) Close() {
	h.sessions.stop()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
