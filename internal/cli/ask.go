package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/geo"
	"github.com/toshima-abt/hachiq/pkg/pipeline"
	"github.com/toshima-abt/hachiq/pkg/pipeline/prompts"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
	"github.com/toshima-abt/hachiq/pkg/store"
)

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question about the city statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			dbPath, err := cmd.Root().PersistentFlags().GetString("db")
			if err != nil {
				return fmt.Errorf("failed to get db flag: %w", err)
			}
			geojsonPath, err := cmd.Root().PersistentFlags().GetString("geojson")
			if err != nil {
				return fmt.Errorf("failed to get geojson flag: %w", err)
			}
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}
			model, err := cmd.Flags().GetString("model")
			if err != nil {
				return fmt.Errorf("failed to get model flag: %w", err)
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return fmt.Errorf("failed to get timeout flag: %w", err)
			}
			year, err := cmd.Flags().GetInt("year")
			if err != nil {
				return fmt.Errorf("failed to get year flag: %w", err)
			}
			topic, err := cmd.Flags().GetString("topic")
			if err != nil {
				return fmt.Errorf("failed to get topic flag: %w", err)
			}

			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format: %s", format)
			}

			log := newLogger(verbose)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			pipe, st, err := newAskPipeline(ctx, log, dbPath, geojsonPath, model, timeout)
			if err != nil {
				log.Error("Failed to build pipeline", "error", err)
				os.Exit(1)
			}
			defer st.Close()

			q := pipeline.Question{Text: args[0], YearHint: year, TopicHint: topic}
			bundle, err := pipe.Ask(ctx, q)
			if err != nil {
				log.Error("Failed to answer question", "error", err)
				os.Exit(1)
			}

			if format == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(bundle); err != nil {
					return fmt.Errorf("failed to encode answer: %w", err)
				}
				return nil
			}

			printBundle(bundle)
			return nil
		},
	}

	cmd.Flags().String("format", "table", "Output format (table, json)")
	cmd.Flags().String("model", defaultModel, "Anthropic model for generation and narration")
	cmd.Flags().Duration("timeout", 30*time.Second, "Per-statement execution timeout")
	cmd.Flags().Int("year", 0, "Restrict the question to one survey year")
	cmd.Flags().String("topic", "", "Industry or crime category the question is about")

	return cmd
}

func newAskPipeline(ctx context.Context, log *slog.Logger, dbPath, geojsonPath, model string, timeout time.Duration) (*pipeline.Pipeline, *store.Store, error) {
	cat := catalog.Hachioji()

	guard, err := sqlguard.New(sqlguard.Config{Catalog: cat})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create guard: %w", err)
	}

	loaded, err := prompts.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	var boundaries *geo.Index
	if idx, err := geo.Load(geojsonPath); err != nil {
		log.Warn("Boundary file unavailable, map answers disabled", "path", geojsonPath, "error", err)
	} else {
		boundaries = idx
	}

	storeCfg := store.Config{
		Logger:       log,
		Catalog:      cat,
		Path:         dbPath,
		QueryTimeout: timeout,
	}
	if boundaries != nil {
		storeCfg.Boundaries = boundaries
	}
	st, err := store.Open(ctx, storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	pipeCfg := pipeline.Config{
		Logger:  log,
		LLM:     pipeline.NewAnthropicLLMClient(anthropic.Model(model), 2048),
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
		st.Close()
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return pipe, st, nil
}

func printBundle(b *pipeline.Bundle) {
	fmt.Println("SQL:")
	fmt.Println(b.SQL)
	if b.Explanation != "" {
		fmt.Println("説明:", b.Explanation)
	}
	fmt.Println()

	printResult(b.Result)
	printPlan(b.Plan)

	if b.Metrics != nil {
		printMetrics(b.Metrics)
	}

	fmt.Println()
	fmt.Println("【分析コメント】")
	fmt.Println(b.Summary)

	for _, warning := range b.Warnings {
		fmt.Println("※", warning)
	}
}

func printResult(rs *store.ResultSet) {
	if rs == nil || rs.Empty() {
		fmt.Println("データが見つかりませんでした。")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(rs.ColumnNames())

	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Printf("%d行\n", len(rs.Rows))
}

func printPlan(plan pipeline.Plan) {
	switch plan.Kind {
	case pipeline.VisBar:
		fmt.Printf("表示形式: 棒グラフ（軸: %s, 値: %s）\n",
			plan.Bar.LabelColumn, strings.Join(plan.Bar.ValueColumns, ", "))
	case pipeline.VisMap:
		fmt.Printf("表示形式: 地図（キー: %s, 値: %s）\n",
			plan.Map.KeyColumn, plan.Map.ValueColumn)
		if plan.Map.DroppedRows > 0 {
			fmt.Printf("※ 境界に一致しない%d行は地図に載りません\n", plan.Map.DroppedRows)
		}
	default:
		fmt.Println("表示形式: 表")
	}
}

func printMetrics(m *pipeline.MetricsReport) {
	fmt.Println()
	fmt.Println("【経済指標】")
	if m.Averages.OfficeDensity != nil {
		fmt.Printf("事業所密度（平均）: %.3f\n", *m.Averages.OfficeDensity)
	}
	if m.Averages.EmployeeRatio != nil {
		fmt.Printf("従業者比率（平均）: %.3f\n", *m.Averages.EmployeeRatio)
	}
	if m.Averages.OfficeSize != nil {
		fmt.Printf("事業所規模（平均）: %.1f人/所\n", *m.Averages.OfficeSize)
	}
	if m.Averages.OfficesPer1000 != nil {
		fmt.Printf("人口千人あたり事業所数（平均）: %.1f\n", *m.Averages.OfficesPer1000)
	}
	fmt.Println(m.Interpretation)
	fmt.Println(m.Context)
	if m.Insights != "" {
		fmt.Println(m.Insights)
	}
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.3f", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case bool:
		return fmt.Sprintf("%t", x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
