package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/store"
)

// metricHints are question fragments that call for the derived indicators.
var metricHints = []string{"密度", "比率", "割合", "世帯", "人口", "従業者", "あたり", "指標"}

// DetectMetricIntent reports whether the question asks for a derived
// indicator rather than the stored counts alone.
func DetectMetricIntent(question string) bool {
	for _, kw := range metricHints {
		if strings.Contains(question, kw) {
			return true
		}
	}
	return false
}

// QueryParams are the filters recovered from a generated statement and the
// question that produced it. Zero values mean "not filtered".
type QueryParams struct {
	Year     int    `json:"year,omitempty"`
	Industry string `json:"industry,omitempty"`
	Town     string `json:"town,omitempty"`
}

func (qp QueryParams) String() string {
	parts := make([]string, 0, 3)
	if qp.Year != 0 {
		parts = append(parts, fmt.Sprintf("year=%d", qp.Year))
	}
	if qp.Industry != "" {
		parts = append(parts, "industry="+qp.Industry)
	}
	if qp.Town != "" {
		parts = append(parts, "town="+qp.Town)
	}
	if len(parts) == 0 {
		return "no filters"
	}
	return strings.Join(parts, " ")
}

var (
	yearLiteral = regexp.MustCompile(`\b(20\d{2})\b`)
	townLiteral = regexp.MustCompile(`town_name\s*=\s*'([^']+)'`)
)

// ExtractQueryParams recovers year, industry and town filters from the
// generated SQL. Industry names are also looked up in the question itself,
// since the model sometimes answers a narrower slice than it was asked for.
func ExtractQueryParams(sql, question string) QueryParams {
	var params QueryParams
	if m := yearLiteral.FindStringSubmatch(sql); m != nil {
		params.Year, _ = strconv.Atoi(m[1])
	}
	for _, industry := range catalog.IndustryNames {
		if strings.Contains(sql, industry) || strings.Contains(question, industry) {
			params.Industry = industry
			break
		}
	}
	if m := townLiteral.FindStringSubmatch(sql); m != nil {
		params.Town = m[1]
	}
	return params
}

// metricFormula derives one indicator from two source columns.
type metricFormula struct {
	name  string
	num   string
	den   string
	scale float64
}

var metricFormulas = []metricFormula{
	{name: "office_density", num: "num_offices", den: "num_households", scale: 1},
	{name: "employee_ratio", num: "num_employees", den: "num_population", scale: 1},
	{name: "office_size", num: "num_employees", den: "num_offices", scale: 1},
	{name: "offices_per_1000_pop", num: "num_offices", den: "num_population", scale: 1000},
}

// Augment appends the derived indicator columns whose source columns
// co-occur in the result. Rows with a missing value or a zero denominator
// get a nil cell, never an error. Results without any complete source pair
// pass through untouched. The input is not modified.
func Augment(rs *store.ResultSet) (*store.ResultSet, []string) {
	if rs == nil || len(rs.Columns) == 0 {
		return rs, nil
	}

	type binding struct {
		metricFormula
		numIdx, denIdx int
	}
	var bindings []binding
	for _, f := range metricFormulas {
		numIdx, denIdx := rs.ColumnIndex(f.num), rs.ColumnIndex(f.den)
		if numIdx >= 0 && denIdx >= 0 {
			bindings = append(bindings, binding{f, numIdx, denIdx})
		}
	}
	if len(bindings) == 0 {
		return rs, nil
	}

	out := &store.ResultSet{
		Columns: make([]store.Column, 0, len(rs.Columns)+len(bindings)),
		Rows:    make([][]any, 0, len(rs.Rows)),
	}
	out.Columns = append(out.Columns, rs.Columns...)
	added := make([]string, 0, len(bindings))
	for _, b := range bindings {
		out.Columns = append(out.Columns, store.Column{Name: b.name, Kind: catalog.KindMeasure})
		added = append(added, b.name)
	}

	for _, row := range rs.Rows {
		next := make([]any, 0, len(row)+len(bindings))
		next = append(next, row...)
		for _, b := range bindings {
			num, okNum := asFloat(row[b.numIdx])
			den, okDen := asFloat(row[b.denIdx])
			if !okNum || !okDen || den == 0 {
				next = append(next, nil)
				continue
			}
			next = append(next, num/den*b.scale)
		}
		out.Rows = append(out.Rows, next)
	}
	return out, added
}

// MetricRow is one town-year observation joined across the business census
// and the resident register, with its derived indicators. A nil indicator
// means its denominator was zero or missing.
type MetricRow struct {
	Year           int      `json:"year"`
	Town           string   `json:"town_name"`
	Offices        int64    `json:"num_offices"`
	Employees      int64    `json:"num_employees"`
	Households     int64    `json:"num_households"`
	Population     int64    `json:"num_population"`
	OfficeDensity  *float64 `json:"office_density"`
	EmployeeRatio  *float64 `json:"employee_ratio"`
	OfficeSize     *float64 `json:"office_size"`
	OfficesPer1000 *float64 `json:"offices_per_1000_pop"`
}

// Averages are the indicator means over the rows that carry a value.
type Averages struct {
	OfficeDensity  *float64 `json:"office_density"`
	EmployeeRatio  *float64 `json:"employee_ratio"`
	OfficeSize     *float64 `json:"office_size"`
	OfficesPer1000 *float64 `json:"offices_per_1000_pop"`
}

// MetricsReport carries the derived-indicator analysis for one question.
type MetricsReport struct {
	Params         QueryParams `json:"params"`
	Rows           []MetricRow `json:"rows"`
	Averages       Averages    `json:"averages"`
	Interpretation string      `json:"interpretation"`
	Context        string      `json:"context"`
	Insights       string      `json:"insights,omitempty"`
}

// Derive recomputes the economic indicators from the base tables, filtered
// by whatever year, industry and town the generated statement asked about.
// Caller hints fill in filters the statement left implicit. The metric
// statement goes through the same guard as model output.
func (p *Pipeline) Derive(ctx context.Context, q Question, sql string) (*MetricsReport, error) {
	params := ExtractQueryParams(sql, q.Text)
	if params.Year == 0 {
		params.Year = q.YearHint
	}
	if params.Industry == "" && q.TopicHint != "" {
		for _, industry := range catalog.IndustryNames {
			if strings.Contains(q.TopicHint, industry) {
				params.Industry = industry
				break
			}
		}
	}

	validated, err := p.cfg.Guard.Validate(buildMetricSQL(params))
	if err != nil {
		return nil, fmt.Errorf("failed to validate metric query: %w", err)
	}
	rs, err := p.cfg.Querier.Query(ctx, validated.SQL)
	if err != nil {
		return nil, fmt.Errorf("failed to execute metric query: %w", err)
	}

	rows := scanMetricRows(rs)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no business and population rows matched (%s)", params)
	}

	avg := averageMetrics(rows)
	return &MetricsReport{
		Params:         params,
		Rows:           rows,
		Averages:       avg,
		Interpretation: Interpret(avg),
		Context:        contextExplanation(q.Text, rows),
		Insights:       densityInsights(rows),
	}, nil
}

// buildMetricSQL joins the business census against the resident register
// per town and year. Business rows are summed across industries unless an
// industry filter narrows them first.
func buildMetricSQL(params QueryParams) string {
	var b strings.Builder
	b.WriteString("SELECT b.year, b.town_name")
	b.WriteString(", SUM(b.num_offices) AS num_offices")
	b.WriteString(", SUM(b.num_employees) AS num_employees")
	b.WriteString(", MAX(p.num_households) AS num_households")
	b.WriteString(", MAX(p.num_population) AS num_population")
	b.WriteString(" FROM business_stats AS b")
	b.WriteString(" JOIN population AS p ON b.year = p.year AND b.town_name = p.town_name")

	var conds []string
	if params.Year != 0 {
		conds = append(conds, fmt.Sprintf("b.year = %d", params.Year))
	}
	if params.Industry != "" {
		conds = append(conds, fmt.Sprintf("b.industry_name = '%s'", escapeLiteral(params.Industry)))
	}
	if params.Town != "" {
		conds = append(conds, fmt.Sprintf("b.town_name = '%s'", escapeLiteral(params.Town)))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" GROUP BY b.year, b.town_name ORDER BY b.year, b.town_name")
	return b.String()
}

// escapeLiteral doubles single quotes for embedding in a SQL string literal.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// scanMetricRows converts the metric query result into typed rows.
func scanMetricRows(rs *store.ResultSet) []MetricRow {
	yearIdx := rs.ColumnIndex("year")
	townIdx := rs.ColumnIndex("town_name")
	officesIdx := rs.ColumnIndex("num_offices")
	employeesIdx := rs.ColumnIndex("num_employees")
	householdsIdx := rs.ColumnIndex("num_households")
	populationIdx := rs.ColumnIndex("num_population")
	if yearIdx < 0 || townIdx < 0 || officesIdx < 0 || employeesIdx < 0 || householdsIdx < 0 || populationIdx < 0 {
		return nil
	}

	rows := make([]MetricRow, 0, len(rs.Rows))
	for _, raw := range rs.Rows {
		town, _ := raw[townIdx].(string)
		row := MetricRow{
			Year:       int(asInt(raw[yearIdx])),
			Town:       town,
			Offices:    asInt(raw[officesIdx]),
			Employees:  asInt(raw[employeesIdx]),
			Households: asInt(raw[householdsIdx]),
			Population: asInt(raw[populationIdx]),
		}
		row.OfficeDensity = divide(float64(row.Offices), float64(row.Households), 1)
		row.EmployeeRatio = divide(float64(row.Employees), float64(row.Population), 1)
		row.OfficeSize = divide(float64(row.Employees), float64(row.Offices), 1)
		row.OfficesPer1000 = divide(float64(row.Offices), float64(row.Population), 1000)
		rows = append(rows, row)
	}
	return rows
}

// divide returns num/den*scale, or nil on a zero denominator.
func divide(num, den, scale float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den * scale
	return &v
}

func averageMetrics(rows []MetricRow) Averages {
	return Averages{
		OfficeDensity:  meanOf(rows, func(r MetricRow) *float64 { return r.OfficeDensity }),
		EmployeeRatio:  meanOf(rows, func(r MetricRow) *float64 { return r.EmployeeRatio }),
		OfficeSize:     meanOf(rows, func(r MetricRow) *float64 { return r.OfficeSize }),
		OfficesPer1000: meanOf(rows, func(r MetricRow) *float64 { return r.OfficesPer1000 }),
	}
}

func meanOf(rows []MetricRow, pick func(MetricRow) *float64) *float64 {
	var sum float64
	n := 0
	for _, r := range rows {
		if v := pick(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}

// Interpret renders a deterministic Japanese reading of the indicator
// averages. Thresholds follow the published municipal analysis notes.
func Interpret(a Averages) string {
	var parts []string
	if a.OfficeDensity != nil {
		d := *a.OfficeDensity
		switch {
		case d > 0.1:
			parts = append(parts, fmt.Sprintf("事業所密度が高水準（%.3f）で、商業活動が活発です。", d))
		case d > 0.05:
			parts = append(parts, fmt.Sprintf("事業所密度は標準的（%.3f）です。", d))
		default:
			parts = append(parts, fmt.Sprintf("事業所密度が低め（%.3f）で、住宅地中心のエリアです。", d))
		}
	}
	if a.EmployeeRatio != nil {
		r := *a.EmployeeRatio
		switch {
		case r > 0.3:
			parts = append(parts, fmt.Sprintf("従業者比率が高く（%.3f）、雇用が活発です。", r))
		case r > 0.2:
			parts = append(parts, fmt.Sprintf("従業者比率は標準的（%.3f）です。", r))
		default:
			parts = append(parts, fmt.Sprintf("従業者比率が低め（%.3f）です。", r))
		}
	}
	if a.OfficeSize != nil {
		s := *a.OfficeSize
		if s > 10 {
			parts = append(parts, fmt.Sprintf("平均事業所規模が大きく（%.1f人/所）、中規模以上の企業が多いです。", s))
		} else {
			parts = append(parts, fmt.Sprintf("平均事業所規模は小さめ（%.1f人/所）で、小規模事業所中心です。", s))
		}
	}
	if len(parts) == 0 {
		return "解釈できるデータがありません。"
	}
	return strings.Join(parts, " ")
}

// contextExplanation ties the computed indicators back to the question.
func contextExplanation(question string, rows []MetricRow) string {
	towns := map[string]struct{}{}
	years := map[int]struct{}{}
	for _, r := range rows {
		towns[r.Town] = struct{}{}
		years[r.Year] = struct{}{}
	}

	var parts []string
	if strings.Contains(question, "密度") || strings.Contains(question, "世帯") {
		parts = append(parts, "ご質問の内容に関連して、事業所密度（世帯数に対する事業所数の比率）を分析しました。")
	}
	if strings.Contains(question, "比率") || strings.Contains(question, "割合") || strings.Contains(question, "人口") {
		parts = append(parts, "従業者比率（人口に対する従業者数の割合）も計算し、地域の経済活動の活発さを評価しました。")
	}
	if strings.Contains(question, "規模") || strings.Contains(question, "従業者") {
		parts = append(parts, "事業所規模（1事業所あたりの従業者数）から、事業者の規模感を把握できます。")
	}
	switch {
	case len(towns) > 1 && len(years) > 1:
		parts = append(parts, fmt.Sprintf("%dの町名、%d年度のデータを比較しています。", len(towns), len(years)))
	case len(towns) > 1:
		parts = append(parts, fmt.Sprintf("%dの町名を比較しています。", len(towns)))
	case len(years) > 1:
		parts = append(parts, fmt.Sprintf("%d年度の推移を分析しています。", len(years)))
	}
	if len(parts) == 0 {
		return "ご質問に関連する経済指標を自動的に計算しました。以下の指標で地域の特徴を把握できます。"
	}
	return strings.Join(parts, " ")
}

// densityInsights names the top and bottom towns by office density at the
// latest year in the rows. Empty unless more than one town is present.
func densityInsights(rows []MetricRow) string {
	latest := 0
	towns := map[string]struct{}{}
	for _, r := range rows {
		towns[r.Town] = struct{}{}
		if r.Year > latest {
			latest = r.Year
		}
	}
	if len(towns) < 2 {
		return ""
	}

	var ranked []MetricRow
	for _, r := range rows {
		if r.Year == latest && r.OfficeDensity != nil {
			ranked = append(ranked, r)
		}
	}
	if len(ranked) == 0 {
		return ""
	}
	sort.Slice(ranked, func(i, j int) bool {
		if *ranked[i].OfficeDensity != *ranked[j].OfficeDensity {
			return *ranked[i].OfficeDensity > *ranked[j].OfficeDensity
		}
		return ranked[i].Town < ranked[j].Town
	})

	n := 3
	if len(ranked) < n {
		n = len(ranked)
	}
	format := func(rs []MetricRow) string {
		names := make([]string, len(rs))
		for i, r := range rs {
			names[i] = fmt.Sprintf("%s（%.3f）", r.Town, *r.OfficeDensity)
		}
		return strings.Join(names, "、")
	}
	top := format(ranked[:n])
	bottom := format(ranked[len(ranked)-n:])
	return fmt.Sprintf("事業所密度の地域差: 上位は%s。下位は%s。", top, bottom)
}

// asFloat coerces the scan types the store produces into a float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// asInt coerces the scan types the store produces into an int64.
func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
