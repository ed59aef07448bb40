package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/toshima-abt/hachiq/api/config"
)

type ServeInfoCmd struct{}

func NewServeInfoCmd() *ServeInfoCmd {
	return &ServeInfoCmd{}
}

// Command prints the configuration the API server would start with, after
// environment overrides. Handy for checking a deployment before launching it.
func (c *ServeInfoCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-info",
		Short: "Print the effective API server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			printServeInfo(config.Load())
			return nil
		},
	}

	return cmd
}

func printServeInfo(cfg config.Config) {
	apiKey := "未設定"
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		apiKey = "設定済み"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"環境変数", "現在値"})

	rows := [][]string{
		{"HACHIQ_API_ADDR", cfg.Addr},
		{"HACHIQ_DB_PATH", cfg.DatabasePath},
		{"HACHIQ_GEOJSON_PATH", cfg.BoundaryPath},
		{"HACHIQ_CORS_ORIGINS", strings.Join(cfg.AllowedOrigins, ", ")},
		{"HACHIQ_MODEL", cfg.Model},
		{"HACHIQ_MAX_TOKENS", fmt.Sprintf("%d", cfg.MaxTokens)},
		{"HACHIQ_QUERY_TIMEOUT", cfg.QueryTimeout.String()},
		{"HACHIQ_ROW_CAP", fmt.Sprintf("%d", cfg.RowCap)},
		{"HACHIQ_SESSION_TTL", cfg.SessionTTL.String()},
		{"ANTHROPIC_API_KEY", apiKey},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}
