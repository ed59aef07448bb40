// Package cli implements the hachiq command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

const (
	defaultDBPath      = "data/hachioji.duckdb"
	defaultGeoJSONPath = "data/hachioji_towns.geojson"
	defaultModel       = "claude-sonnet-4-20250514"
)

func Run() ExitCode {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hachiq",
		Short: "Ask questions about Hachioji city statistics in Japanese.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var dbPath string
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envWithDefault("HACHIQ_DB_PATH", defaultDBPath), "path to the DuckDB statistics file (env: HACHIQ_DB_PATH)")

	var geojsonPath string
	rootCmd.PersistentFlags().StringVar(&geojsonPath, "geojson", envWithDefault("HACHIQ_GEOJSON_PATH", defaultGeoJSONPath), "path to the town boundary GeoJSON (env: HACHIQ_GEOJSON_PATH)")

	rootCmd.AddCommand(
		NewAskCmd().Command(),
		NewValidateCmd().Command(),
		NewCatalogCmd().Command(),
		NewServeInfoCmd().Command(),
	)

	return rootCmd
}

// newLogger writes to stderr so formatted answers on stdout stay clean.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func envWithDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}
