// Package store executes validated statements against the read-only DuckDB
// snapshot produced by the nightly ingest. Every query is bounded by a
// deadline and a row cap so a pathological statement cannot pin the API.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/toshima-abt/hachiq/pkg/catalog"
)

// Reason classifies why an execution failed.
type Reason string

const (
	ReasonTimeout Reason = "timeout"
	ReasonRowCap  Reason = "row_cap_exceeded"
	ReasonQuery   Reason = "query_failed"
)

// ExecutionError reports a failed or out-of-bounds execution.
type ExecutionError struct {
	Reason Reason
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (%s): %v", e.Reason, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

type Config struct {
	Logger  *slog.Logger
	Catalog *catalog.Catalog

	// Path locates the DuckDB file. It is always opened read-only.
	Path string

	// Boundaries enables geo key inference for aliased columns. Optional.
	Boundaries BoundaryMatcher

	// QueryTimeout bounds a single statement. Defaults to 30s.
	QueryTimeout time.Duration

	// RowCap bounds the rows a statement may return. Defaults to 10000.
	RowCap int

	Clock clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if cfg.Path == "" {
		return fmt.Errorf("path is required")
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.RowCap == 0 {
		cfg.RowCap = 10000
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store wraps the snapshot database.
type Store struct {
	log *slog.Logger
	cfg Config
	db  *sql.DB
}

// Open opens the snapshot read-only and pings it until it responds. The
// ingest replaces the file atomically, so a failed ping right after a
// refresh is expected to clear on retry.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store config: %w", err)
	}

	db, err := sql.Open("duckdb", cfg.Path+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 0 {
			cfg.Logger.Warn("Failed to ping database, retrying", "attempt", attempt, "path", cfg.Path)
		}
		attempt++
		return struct{}{}, db.PingContext(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(30*time.Second))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{log: cfg.Logger, cfg: cfg, db: db}

	if missing, err := s.MissingTables(ctx); err != nil {
		cfg.Logger.Warn("Failed to verify snapshot schema", "error", err)
	} else if len(missing) > 0 {
		cfg.Logger.Warn("Snapshot is missing catalog tables", "missing", missing)
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the snapshot is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// MissingTables returns the catalog tables absent from the snapshot.
func (s *Store) MissingTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_name FROM duckdb_tables()`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	var missing []string
	for _, name := range s.cfg.Catalog.TableNames() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// Query executes one validated statement and returns the normalized result.
// It enforces the configured deadline and row cap.
func (s *Store) Query(ctx context.Context, sqlText string) (*ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	start := s.cfg.Clock.Now()

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, s.execError(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.execError(ctx, fmt.Errorf("failed to get columns: %w", err))
	}

	var out [][]any
	for rows.Next() {
		if len(out) >= s.cfg.RowCap {
			return nil, &ExecutionError{
				Reason: ReasonRowCap,
				Err:    fmt.Errorf("result exceeds %d rows", s.cfg.RowCap),
			}
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, s.execError(ctx, fmt.Errorf("failed to scan row: %w", err))
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, s.execError(ctx, fmt.Errorf("error iterating rows: %w", err))
	}

	s.log.Debug("query executed",
		"rows", len(out),
		"columns", len(columns),
		"duration", s.cfg.Clock.Since(start),
	)

	return &ResultSet{
		Columns: inferColumns(s.cfg.Catalog, s.cfg.Boundaries, columns, out),
		Rows:    out,
	}, nil
}

func (s *Store) execError(ctx context.Context, err error) error {
	reason := ReasonQuery
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return &ExecutionError{Reason: reason, Err: err}
}

// normalizeValue maps driver-specific values onto the small set of types the
// rest of the pipeline understands. DuckDB returns HUGEINT aggregates as
// *big.Int; values beyond int64 degrade to their decimal string.
func normalizeValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case *big.Int:
		if v.IsInt64() {
			return v.Int64()
		}
		return v.String()
	default:
		return v
	}
}
