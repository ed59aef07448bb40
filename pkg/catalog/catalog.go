// Package catalog holds the fixed description of the Hachioji statistical
// schema. It is the ground truth for prompt construction and for query
// validation: every table and column the pipeline may reference is declared
// here, together with enumerated value domains where a column is closed.
package catalog

import (
	"fmt"
	"strings"
	"sync"
)

// Kind classifies a column's analytical role. The executor reuses these
// kinds when inferring result-set column types.
type Kind string

const (
	KindTemporal Kind = "temporal" // year-valued
	KindGeoKey   Kind = "geokey"   // joinable to town boundary geometry
	KindCategory Kind = "category" // low-cardinality label
	KindMeasure  Kind = "measure"  // numeric quantity
)

// Column describes one column of a statistical table.
type Column struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"` // DuckDB type as loaded by the ETL
	Kind    Kind     `json:"kind"`
	Meaning string   `json:"meaning"` // Japanese meaning, shown to the model
	Domain  []string `json:"domain,omitempty"`
}

// Table describes one statistical table.
type Table struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Columns     []Column `json:"columns"`

	columns map[string]*Column
}

// Column returns the named column of the table.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.columns[strings.ToLower(name)]
	return c, ok
}

// Catalog is the immutable schema description. Built once, never mutated;
// schema changes ship as a new catalog alongside the refreshed store.
type Catalog struct {
	City     string  `json:"city"`
	Tables   []Table `json:"tables"`
	YearFrom int     `json:"year_from"`
	YearTo   int     `json:"year_to"`

	// CrimeTaxonomy lists the major:minor crime pairs exactly as the model
	// should reproduce them in literals.
	CrimeTaxonomy []string `json:"crime_taxonomy,omitempty"`

	tables  map[string]*Table
	columns map[string]*Column
}

// New builds a catalog and its lookup indexes.
func New(city string, yearFrom, yearTo int, tables []Table) *Catalog {
	c := &Catalog{
		City:     city,
		Tables:   tables,
		YearFrom: yearFrom,
		YearTo:   yearTo,
		tables:   make(map[string]*Table, len(tables)),
		columns:  make(map[string]*Column),
	}
	for i := range c.Tables {
		t := &c.Tables[i]
		t.columns = make(map[string]*Column, len(t.Columns))
		for j := range t.Columns {
			col := &t.Columns[j]
			key := strings.ToLower(col.Name)
			t.columns[key] = col
			// Shared columns (year, town_name) carry the same kind in every
			// table, so last-write-wins is safe for the flat index.
			c.columns[key] = col
		}
		c.tables[strings.ToLower(t.Name)] = t
	}
	return c
}

// Table returns the named table.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// HasColumn reports whether any table declares the named column.
func (c *Catalog) HasColumn(name string) bool {
	_, ok := c.columns[strings.ToLower(name)]
	return ok
}

// ColumnKind returns the analytical kind of the named column.
func (c *Catalog) ColumnKind(name string) (Kind, bool) {
	col, ok := c.columns[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return col.Kind, true
}

// TableNames returns the declared table names in catalog order.
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Describe renders the canonical textual form of the catalog: table
// definitions, column meanings, enumerated domains and year coverage. The
// rendering is embedded verbatim in prompts and is stable across calls.
func (c *Catalog) Describe() string {
	var b strings.Builder

	b.WriteString("### テーブル定義\n")
	for _, t := range c.Tables {
		b.WriteString(t.createStatement())
		b.WriteByte('\n')
	}

	b.WriteString("\n### カラム情報\n")
	for _, name := range c.columnOrder() {
		col := c.columns[strings.ToLower(name)]
		fmt.Fprintf(&b, "%s: %s\n", col.Name, col.Meaning)
	}

	for _, t := range c.Tables {
		for _, col := range t.Columns {
			if len(col.Domain) == 0 || col.Kind != KindCategory {
				continue
			}
			fmt.Fprintf(&b, "\n### 利用可能な%s\n", col.Meaning)
			b.WriteString(strings.Join(col.Domain, ", "))
			b.WriteByte('\n')
		}
	}

	if len(c.CrimeTaxonomy) > 0 {
		b.WriteString("\n### 利用可能な犯罪分類(大分類:小分類)\n")
		b.WriteString(strings.Join(c.CrimeTaxonomy, ", "))
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n### 対応年度\n%d年～%d年\n", c.YearFrom, c.YearTo)

	return b.String()
}

// createStatement renders the table as the CREATE TABLE the ETL issues.
func (t *Table) createStatement() string {
	parts := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		name := col.Name
		if name == "year" {
			name = `"year"` // reserved word in DuckDB
		}
		parts = append(parts, name+" "+col.Type)
	}
	return "CREATE TABLE " + t.Name + "(" + strings.Join(parts, ", ") + ");"
}

// columnOrder returns distinct column names in first-appearance order.
func (c *Catalog) columnOrder() []string {
	seen := make(map[string]bool)
	var order []string
	for _, t := range c.Tables {
		for _, col := range t.Columns {
			key := strings.ToLower(col.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			order = append(order, col.Name)
		}
	}
	return order
}

var (
	hachiojiOnce sync.Once
	hachioji     *Catalog
)

// Hachioji returns the compiled-in catalog for the Hachioji statistical
// store. The catalog is built once and shared; it is never mutated.
func Hachioji() *Catalog {
	hachiojiOnce.Do(func() {
		hachioji = newHachioji()
	})
	return hachioji
}
