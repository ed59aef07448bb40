package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/store"
)

func TestPipeline_Classify(t *testing.T) {
	t.Parallel()

	geoCol := store.Column{Name: "town_name", Kind: catalog.KindGeoKey}
	catCol := store.Column{Name: "industry_name", Kind: catalog.KindCategory}
	yearCol := store.Column{Name: "year", Kind: catalog.KindTemporal}
	offices := store.Column{Name: "num_offices", Kind: catalog.KindMeasure}
	people := store.Column{Name: "num_population", Kind: catalog.KindMeasure}

	tests := []struct {
		name     string
		question string
		rs       *store.ResultSet
		opts     []func(*Config)
		want     Plan
	}{
		{
			name:     "nil result",
			question: "事業所数は？",
			rs:       nil,
			want:     Plan{Kind: VisTable},
		},
		{
			name:     "empty result",
			question: "事業所数は？",
			rs:       &store.ResultSet{Columns: []store.Column{geoCol, offices}},
			want:     Plan{Kind: VisTable},
		},
		{
			name:     "category label with one measure",
			question: "業種ごとの事業所数は？",
			rs: &store.ResultSet{
				Columns: []store.Column{catCol, offices},
				Rows:    [][]any{{"建設業", int64(120)}, {"製造業", int64(80)}, {"小売業", int64(60)}},
			},
			want: Plan{Kind: VisBar, Bar: &BarPlan{LabelColumn: "industry_name", ValueColumns: []string{"num_offices"}}},
		},
		{
			name:     "temporal label with two measures",
			question: "年ごとの事業所数と人口は？",
			rs: &store.ResultSet{
				Columns: []store.Column{yearCol, offices, people},
				Rows:    [][]any{{int64(2020), int64(100), int64(2300)}, {int64(2021), int64(120), int64(2400)}},
			},
			want: Plan{Kind: VisBar, Bar: &BarPlan{LabelColumn: "year", ValueColumns: []string{"num_offices", "num_population"}}},
		},
		{
			name:     "geo label with spatial question",
			question: "人口の分布を地図で見たい",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, people},
				Rows:    [][]any{{"横山町", int64(2400)}, {"旭町", int64(1500)}},
			},
			want: Plan{Kind: VisMap, Map: &MapPlan{
				KeyColumn:   "town_name",
				ValueColumn: "num_population",
				Center:      mapCenter,
			}},
		},
		{
			name:     "geo label with unmatched town",
			question: "人口の分布を地図で見たい",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, people},
				Rows:    [][]any{{"横山町", int64(2400)}, {"架空町", int64(999)}},
			},
			want: Plan{Kind: VisMap, Map: &MapPlan{
				KeyColumn:   "town_name",
				ValueColumn: "num_population",
				Center:      mapCenter,
				DroppedRows: 1,
			}},
		},
		{
			name:     "geo label without spatial hint picks bar",
			question: "人口が多いのは？",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, people},
				Rows:    [][]any{{"横山町", int64(2400)}, {"旭町", int64(1500)}},
			},
			want: Plan{Kind: VisBar, Bar: &BarPlan{LabelColumn: "town_name", ValueColumns: []string{"num_population"}}},
		},
		{
			name:     "too many rows for bar degrades to map",
			question: "人口が多いのは？",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, people},
				Rows:    [][]any{{"横山町", int64(2400)}, {"旭町", int64(1500)}, {"台町", int64(900)}},
			},
			opts: []func(*Config){func(c *Config) { c.BarRowLimit = 2 }},
			want: Plan{Kind: VisMap, Map: &MapPlan{
				KeyColumn:   "town_name",
				ValueColumn: "num_population",
				Center:      mapCenter,
			}},
		},
		{
			name:     "no boundaries degrades to bar",
			question: "人口の分布を地図で見たい",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, people},
				Rows:    [][]any{{"横山町", int64(2400)}},
			},
			opts: []func(*Config){func(c *Config) { c.Boundaries = nil }},
			want: Plan{Kind: VisBar, Bar: &BarPlan{LabelColumn: "town_name", ValueColumns: []string{"num_population"}}},
		},
		{
			name:     "two label columns",
			question: "町と年ごとの事業所数は？",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, yearCol, offices},
				Rows:    [][]any{{"横山町", int64(2021), int64(120)}},
			},
			want: Plan{Kind: VisTable},
		},
		{
			name:     "measures only",
			question: "合計は？",
			rs: &store.ResultSet{
				Columns: []store.Column{offices, people},
				Rows:    [][]any{{int64(120), int64(2400)}},
			},
			want: Plan{Kind: VisTable},
		},
		{
			name:     "exceeds both limits",
			question: "人口の分布を地図で見たい",
			rs: &store.ResultSet{
				Columns: []store.Column{geoCol, people},
				Rows:    [][]any{{"横山町", int64(2400)}, {"旭町", int64(1500)}, {"台町", int64(900)}},
			},
			opts: []func(*Config){func(c *Config) { c.BarRowLimit = 2; c.MapRowLimit = 2 }},
			want: Plan{Kind: VisTable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPipeline(t, &mockLLMClient{}, unusedQuerier(), tt.opts...)
			require.Equal(t, tt.want, p.Classify(tt.question, tt.rs))
		})
	}
}

func TestWantsMap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		question string
		want     bool
	}{
		{"犯罪件数の分布を地図で", true},
		{"どこの地域が多い？", true},
		{"事業所数が多い町トップ5は？", false},
		{"2021年の人口は？", false},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, wantsMap(tt.question))
		})
	}
}
