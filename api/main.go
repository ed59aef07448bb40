package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/toshima-abt/hachiq/api/config"
	"github.com/toshima-abt/hachiq/api/handlers"
	"github.com/toshima-abt/hachiq/api/metrics"
	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/geo"
	"github.com/toshima-abt/hachiq/pkg/pipeline"
	"github.com/toshima-abt/hachiq/pkg/pipeline/prompts"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	verbose := pflag.Bool("verbose", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	if err := run(log, config.Load()); err != nil {
		log.Error("API server failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg config.Config) error {
	ctx := context.Background()

	cat := catalog.Hachioji()

	guard, err := sqlguard.New(sqlguard.Config{Catalog: cat, RowCeiling: cfg.RowCap})
	if err != nil {
		return err
	}

	loaded, err := prompts.Load()
	if err != nil {
		return err
	}

	// The boundary file is optional: without it map answers degrade to
	// bar charts and tables, everything else keeps working.
	var boundaries *geo.Index
	if idx, err := geo.Load(cfg.BoundaryPath); err != nil {
		log.Warn("Boundary file unavailable, map answers disabled",
			"path", cfg.BoundaryPath, "error", err)
	} else {
		boundaries = idx
		log.Info("Boundary file loaded", "path", cfg.BoundaryPath, "districts", idx.Len())
	}

	storeCfg := store.Config{
		Logger:       log,
		Catalog:      cat,
		Path:         cfg.DatabasePath,
		QueryTimeout: cfg.QueryTimeout,
		RowCap:       cfg.RowCap,
	}
	if boundaries != nil {
		storeCfg.Boundaries = boundaries
	}
	st, err := store.Open(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if missing, err := st.MissingTables(ctx); err != nil {
		log.Warn("Could not verify catalog tables", "error", err)
	} else if len(missing) > 0 {
		log.Warn("Catalog tables missing from store", "tables", missing)
	}

	llm := pipeline.NewAnthropicLLMClient(anthropic.Model(cfg.Model), cfg.MaxTokens)

	pipeCfg := pipeline.Config{
		Logger:  log,
		LLM:     llm,
		Querier: st,
		Guard:   guard,
		Catalog: cat,
		Prompts: loaded,
	}
	if boundaries != nil {
		pipeCfg.Boundaries = boundaries
	}
	pipe, err := pipeline.New(pipeCfg)
	if err != nil {
		return err
	}

	h, err := handlers.New(handlers.Config{
		Logger:     log,
		Pipeline:   pipe,
		Store:      st,
		Guard:      guard,
		Catalog:    cat,
		Boundaries: boundaries,
		SessionTTL: cfg.SessionTTL,
	})
	if err != nil {
		return err
	}
	defer h.Close()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("API server starting", "addr", cfg.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case sig := <-shutdown:
		log.Info("Shutting down gracefully", "signal", sig.String())
	}

	// Give existing connections time to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("Server stopped gracefully")
	return nil
}
