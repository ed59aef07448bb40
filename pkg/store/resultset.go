package store

import (
	"strings"

	"github.com/toshima-abt/hachiq/pkg/catalog"
)

// BoundaryMatcher reports whether a value names a known district boundary.
// The geo index implements it; a nil matcher disables geo key inference.
type BoundaryMatcher interface {
	Match(name string) bool
}

// Column describes one result column together with its inferred semantic
// kind. Kinds drive presentation: geo keys can join the boundary file,
// temporals and categories become chart axes, measures become chart values.
type Column struct {
	Name string       `json:"name"`
	Kind catalog.Kind `json:"kind"`
}

// ResultSet is the bounded outcome of one executed statement. Row values are
// positional and normalized to string, int64, float64, bool or nil.
type ResultSet struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ColumnNames returns the column names in result order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (rs *ResultSet) ColumnIndex(name string) int {
	for i, c := range rs.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Empty reports whether the result has no rows.
func (rs *ResultSet) Empty() bool { return len(rs.Rows) == 0 }

// inferColumns assigns a semantic kind to every result column. A column
// named in the catalog keeps its catalog kind; otherwise the kind is
// inferred from the values: a mostly boundary-matching string column is a
// geo key, a year-named column with plausible year values is temporal, a
// numeric column is a measure, anything else is a category.
func inferColumns(cat *catalog.Catalog, geo BoundaryMatcher, names []string, rows [][]any) []Column {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Kind: inferKind(cat, geo, name, i, rows)}
	}
	return cols
}

func inferKind(cat *catalog.Catalog, geo BoundaryMatcher, name string, idx int, rows [][]any) catalog.Kind {
	if kind, ok := cat.ColumnKind(name); ok {
		return kind
	}

	var nonNull, matched, numeric int
	yearRange := true
	for _, row := range rows {
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		nonNull++
		if geo != nil {
			if s, ok := row[idx].(string); ok && geo.Match(s) {
				matched++
			}
		}
		if f, ok := numericValue(row[idx]); ok {
			numeric++
			if f < 1900 || f > 2100 {
				yearRange = false
			}
		}
	}
	if nonNull == 0 {
		return catalog.KindCategory
	}
	if geo != nil && matched*2 >= nonNull {
		return catalog.KindGeoKey
	}
	if numeric == nonNull {
		low := strings.ToLower(name)
		if yearRange && (strings.Contains(low, "year") || strings.Contains(low, "年")) {
			return catalog.KindTemporal
		}
		return catalog.KindMeasure
	}
	return catalog.KindCategory
}

func numericValue(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}
