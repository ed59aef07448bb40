package pipeline

import (
	"strings"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/store"
)

// mapCenter is the initial viewport for choropleths, lat/lon of central
// Hachioji.
var mapCenter = [2]float64{35.655, 139.33}

// spatialHints are question fragments that tip a spatially keyed result
// toward a map instead of a bar chart. A bare 町 does not count: ranking
// questions mention towns without asking for a spatial view.
var spatialHints = []string{"地図", "マップ", "分布", "どこ", "エリア", "地域"}

// Classify picks the presentation for a result. A single label column plus
// at least one measure makes a bar chart; when that label is the district
// key and enough rows match a known boundary, a map. Everything else stays
// a table, which always renders.
func (p *Pipeline) Classify(question string, rs *store.ResultSet) Plan {
	if rs == nil || rs.Empty() {
		return Plan{Kind: VisTable}
	}

	var labels, measures []store.Column
	for _, col := range rs.Columns {
		switch col.Kind {
		case catalog.KindMeasure:
			measures = append(measures, col)
		case catalog.KindGeoKey, catalog.KindTemporal, catalog.KindCategory:
			labels = append(labels, col)
		}
	}

	if len(labels) != 1 || len(measures) == 0 {
		return Plan{Kind: VisTable}
	}
	label := labels[0]

	barOK := len(rs.Rows) <= p.cfg.BarRowLimit

	mapOK := false
	matched := 0
	if label.Kind == catalog.KindGeoKey && p.cfg.Boundaries != nil && len(rs.Rows) <= p.cfg.MapRowLimit {
		matched = p.countMatched(rs, label.Name)
		mapOK = matched > 0
	}

	switch {
	case mapOK && (!barOK || wantsMap(question)):
		return Plan{Kind: VisMap, Map: &MapPlan{
			KeyColumn:   label.Name,
			ValueColumn: measures[0].Name,
			Center:      mapCenter,
			DroppedRows: len(rs.Rows) - matched,
		}}
	case barOK:
		names := make([]string, len(measures))
		for i, m := range measures {
			names[i] = m.Name
		}
		return Plan{Kind: VisBar, Bar: &BarPlan{
			LabelColumn:  label.Name,
			ValueColumns: names,
		}}
	default:
		return Plan{Kind: VisTable}
	}
}

// countMatched counts rows whose key value matches a district boundary.
func (p *Pipeline) countMatched(rs *store.ResultSet, keyColumn string) int {
	idx := rs.ColumnIndex(keyColumn)
	if idx < 0 {
		return 0
	}
	matched := 0
	for _, row := range rs.Rows {
		name, ok := row[idx].(string)
		if !ok {
			continue
		}
		if p.cfg.Boundaries.Match(name) {
			matched++
		}
	}
	return matched
}

// wantsMap reports whether the question itself asks for a spatial view.
func wantsMap(question string) bool {
	for _, hint := range spatialHints {
		if strings.Contains(question, hint) {
			return true
		}
	}
	return false
}
