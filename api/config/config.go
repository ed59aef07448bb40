// Package config reads the API server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults match the local development setup: a DuckDB file and boundary
// GeoJSON produced by the ETL under data/, and the Vite dev server origin.
const (
	DefaultAddr         = ":8080"
	DefaultDatabasePath = "data/hachioji.duckdb"
	DefaultBoundaryPath = "data/hachioji_towns.geojson"
	DefaultModel        = "claude-sonnet-4-20250514"
	DefaultMaxTokens    = 2048
	DefaultQueryTimeout = 30 * time.Second
	DefaultRowCap       = 10000
	DefaultSessionTTL   = 30 * time.Minute
)

type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string

	// DatabasePath locates the DuckDB statistics file.
	DatabasePath string

	// BoundaryPath locates the town boundary GeoJSON. The server starts
	// without it; map answers then degrade to bar charts and tables.
	BoundaryPath string

	// AllowedOrigins are the CORS origins permitted to call the API.
	AllowedOrigins []string

	// Model is the Anthropic model used for generation and narration.
	Model string

	// MaxTokens bounds a single model response.
	MaxTokens int64

	// QueryTimeout bounds a single DuckDB statement.
	QueryTimeout time.Duration

	// RowCap bounds the rows a statement may return.
	RowCap int

	// SessionTTL is how long a session's latest invocation is remembered
	// for supersede tracking.
	SessionTTL time.Duration
}

// Load reads the configuration from HACHIQ_* environment variables,
// falling back to the defaults above.
func Load() Config {
	return Config{
		Addr:           envString("HACHIQ_API_ADDR", DefaultAddr),
		DatabasePath:   envString("HACHIQ_DB_PATH", DefaultDatabasePath),
		BoundaryPath:   envString("HACHIQ_GEOJSON_PATH", DefaultBoundaryPath),
		AllowedOrigins: envList("HACHIQ_CORS_ORIGINS", []string{"http://localhost:5173"}),
		Model:          envString("HACHIQ_MODEL", DefaultModel),
		MaxTokens:      int64(envInt("HACHIQ_MAX_TOKENS", DefaultMaxTokens)),
		QueryTimeout:   envDuration("HACHIQ_QUERY_TIMEOUT", DefaultQueryTimeout),
		RowCap:         envInt("HACHIQ_ROW_CAP", DefaultRowCap),
		SessionTTL:     envDuration("HACHIQ_SESSION_TTL", DefaultSessionTTL),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
