package sqlguard

import (
	"strconv"
	"strings"

	"github.com/toshima-abt/hachiq/pkg/catalog"
)

// resolver walks the token stream twice: a structural pass collecting table
// references, aliases and the top-level LIMIT, then a resolution pass that
// checks every remaining identifier against the catalog.
type resolver struct {
	cat    *catalog.Catalog
	tokens []Token

	tables        map[string]bool
	aliasTarget   map[string]string // alias -> table name, "" for derived tables
	selectAliases map[string]bool
	columns       map[string]bool
	consumed      map[int]bool

	hasTopLevelLimit bool
}

func newResolver(cat *catalog.Catalog, tokens []Token) *resolver {
	return &resolver{
		cat:           cat,
		tokens:        tokens,
		tables:        make(map[string]bool),
		aliasTarget:   make(map[string]string),
		selectAliases: make(map[string]bool),
		columns:       make(map[string]bool),
		consumed:      make(map[int]bool),
	}
}

func (r *resolver) resolve() error {
	if err := r.collect(); err != nil {
		return err
	}
	return r.check()
}

// collect gathers table references and alias declarations. Parens opened by
// an allow-listed function are tracked so that FROM inside extract()-style
// calls is not mistaken for a table list, and AS inside cast() is not
// mistaken for an alias.
func (r *resolver) collect() error {
	n := len(r.tokens)
	var stack []bool // true = function-call paren
	for i := 0; i < n; i++ {
		tok := r.tokens[i]
		switch tok.Type {
		case tokenLParen:
			isFunc := false
			if i > 0 && identLike(r.tokens[i-1]) {
				prev := strings.ToLower(r.tokens[i-1].Literal)
				isFunc = allowedFunctions[prev] || typeKeywords[prev]
			}
			stack = append(stack, isFunc)
			continue
		case tokenRParen:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			// `) t` names the preceding derived table or expression. The
			// two cases are indistinguishable here, so the alias is usable
			// both as a qualifier and as a bare name.
			if i+1 < n && identLike(r.tokens[i+1]) {
				next := strings.ToLower(r.tokens[i+1].Literal)
				followedByCall := i+2 < n && r.tokens[i+2].Type == tokenLParen
				if !keywords[next] && !typeKeywords[next] && !followedByCall {
					if _, exists := r.aliasTarget[next]; !exists {
						r.aliasTarget[next] = ""
					}
					r.selectAliases[next] = true
					r.consumed[i+1] = true
				}
			}
			continue
		}
		if !identLike(tok) {
			continue
		}
		inFuncParen := len(stack) > 0 && stack[len(stack)-1]
		switch strings.ToLower(tok.Literal) {
		case "from", "join":
			if inFuncParen {
				continue // extract(x FROM y), trim(x FROM y)
			}
			var err error
			i, err = r.collectTableList(i)
			if err != nil {
				return err
			}
		case "as":
			if inFuncParen {
				continue // cast(x AS INTEGER)
			}
			if i+1 >= n || !identLike(r.tokens[i+1]) {
				continue
			}
			next := strings.ToLower(r.tokens[i+1].Literal)
			if keywords[next] || typeKeywords[next] {
				continue
			}
			if i > 0 && r.tokens[i-1].Type == tokenRParen {
				// `) AS t` may name a derived table, so the alias is also
				// usable as a qualifier.
				if _, exists := r.aliasTarget[next]; !exists {
					r.aliasTarget[next] = ""
				}
			}
			r.selectAliases[next] = true
			r.consumed[i+1] = true
		case "limit":
			if len(stack) == 0 {
				r.hasTopLevelLimit = true
			}
		}
	}
	return nil
}

// collectTableList parses the table sources following a FROM or JOIN token
// and returns the index of the last token it consumed.
func (r *resolver) collectTableList(fromIdx int) (int, error) {
	n := len(r.tokens)
	i := fromIdx
	for {
		j := i + 1
		if j >= n || r.tokens[j].Type == tokenLParen {
			// Derived table: the inner statement is scanned in place and
			// the closing paren's alias is collected by the caller.
			return i, nil
		}
		if !identLike(r.tokens[j]) {
			return i, nil
		}
		name := strings.ToLower(r.tokens[j].Literal)
		if keywords[name] {
			return i, nil
		}
		if j+1 < n && r.tokens[j+1].Type == tokenDot {
			return 0, &UnsafeQueryError{RuleUnknownTable, "unknown table " + strconv.Quote(r.dottedName(j))}
		}
		if j+1 < n && r.tokens[j+1].Type == tokenLParen {
			// Table-valued functions (read_csv, duckdb_settings, ...) are
			// not catalog tables and never executable here.
			return 0, &UnsafeQueryError{RuleUnknownTable, "unknown table " + strconv.Quote(r.tokens[j].Literal)}
		}
		if _, ok := r.cat.Table(name); !ok {
			return 0, &UnsafeQueryError{RuleUnknownTable, "unknown table " + strconv.Quote(r.tokens[j].Literal)}
		}
		r.tables[name] = true
		r.consumed[j] = true
		i = j

		k := j + 1
		if k < n && identLike(r.tokens[k]) && strings.ToLower(r.tokens[k].Literal) == "as" {
			k++
		}
		if k < n && identLike(r.tokens[k]) {
			alias := strings.ToLower(r.tokens[k].Literal)
			if !keywords[alias] && !typeKeywords[alias] {
				r.aliasTarget[alias] = name
				r.consumed[k] = true
				i = k
			}
		}
		if i+1 < n && r.tokens[i+1].Type == tokenComma {
			i++
			continue
		}
		return i, nil
	}
}

// check resolves every identifier the structural pass did not consume.
func (r *resolver) check() error {
	n := len(r.tokens)
	for i := 0; i < n; i++ {
		if r.consumed[i] || !identLike(r.tokens[i]) {
			continue
		}
		low := strings.ToLower(r.tokens[i].Literal)
		if keywords[low] || typeKeywords[low] {
			continue
		}
		if i+1 < n && r.tokens[i+1].Type == tokenLParen {
			if !allowedFunctions[low] {
				return &UnsafeQueryError{RuleUnknownFunction, "function " + strconv.Quote(r.tokens[i].Literal) + " is not allowed"}
			}
			continue
		}
		if i+1 < n && r.tokens[i+1].Type == tokenDot {
			var err error
			i, err = r.checkQualified(i)
			if err != nil {
				return err
			}
			continue
		}
		if r.tables[low] {
			continue
		}
		if _, ok := r.aliasTarget[low]; ok {
			continue
		}
		if r.selectAliases[low] {
			continue
		}
		if r.columnOfReferencedTables(low) {
			r.columns[low] = true
			continue
		}
		if r.cat.HasColumn(low) {
			return &UnsafeQueryError{RuleUnknownColumn, "column " + strconv.Quote(r.tokens[i].Literal) + " does not belong to the queried tables"}
		}
		return &UnsafeQueryError{RuleUnknownColumn, "unknown identifier " + strconv.Quote(r.tokens[i].Literal)}
	}
	return nil
}

// checkQualified resolves a `qualifier.member` reference starting at idx and
// returns the index of the last token of the reference.
func (r *resolver) checkQualified(idx int) (int, error) {
	n := len(r.tokens)
	qualifier := strings.ToLower(r.tokens[idx].Literal)
	memberIdx := idx + 2
	if memberIdx >= n {
		return idx + 1, nil // dangling dot, the executor reports the syntax error
	}
	member := r.tokens[memberIdx]
	if memberIdx+1 < n && r.tokens[memberIdx+1].Type == tokenDot {
		return 0, &UnsafeQueryError{RuleUnknownTable, "unknown table " + strconv.Quote(r.dottedName(idx))}
	}

	tableName, ok := r.aliasTarget[qualifier]
	if !ok {
		if _, isTable := r.cat.Table(qualifier); !isTable {
			return 0, &UnsafeQueryError{RuleUnknownTable, "unknown table or alias " + strconv.Quote(r.tokens[idx].Literal)}
		}
		if !r.tables[qualifier] {
			return 0, &UnsafeQueryError{RuleUnknownTable, "table " + strconv.Quote(r.tokens[idx].Literal) + " is not referenced in FROM"}
		}
		tableName = qualifier
	}

	if member.Type == tokenStar {
		return memberIdx, nil
	}
	if !identLike(member) {
		return memberIdx, nil
	}
	mlow := strings.ToLower(member.Literal)

	if tableName == "" {
		// Derived-table alias: the member must at least be a catalog column
		// or a select-list alias declared in this statement.
		if r.cat.HasColumn(mlow) {
			r.columns[mlow] = true
			return memberIdx, nil
		}
		if r.selectAliases[mlow] {
			return memberIdx, nil
		}
		return 0, &UnsafeQueryError{RuleUnknownColumn, "unknown column " + strconv.Quote(member.Literal)}
	}

	t, _ := r.cat.Table(tableName)
	if _, ok := t.Column(mlow); !ok {
		return 0, &UnsafeQueryError{RuleUnknownColumn, "unknown column " + strconv.Quote(member.Literal) + " in table " + strconv.Quote(tableName)}
	}
	r.columns[mlow] = true
	return memberIdx, nil
}

func (r *resolver) columnOfReferencedTables(name string) bool {
	for tbl := range r.tables {
		t, ok := r.cat.Table(tbl)
		if !ok {
			continue
		}
		if _, ok := t.Column(name); ok {
			return true
		}
	}
	return false
}

// dottedName renders the dotted identifier chain starting at idx.
func (r *resolver) dottedName(idx int) string {
	var parts []string
	for i := idx; i < len(r.tokens); i++ {
		tok := r.tokens[i]
		if identLike(tok) {
			parts = append(parts, tok.Literal)
			if i+1 < len(r.tokens) && r.tokens[i+1].Type == tokenDot {
				i++
				continue
			}
		}
		break
	}
	return strings.Join(parts, ".")
}

func identLike(tok Token) bool {
	return tok.Type == tokenIdent || tok.Type == tokenQuotedIdent
}

// keywords are structural SQL words that are never identifiers. Words that
// double as function names (left, right, first, last) stay here because
// their call forms are harmless scalar functions.
var keywords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "by": true,
	"having": true, "order": true, "limit": true, "offset": true, "as": true,
	"on": true, "join": true, "inner": true, "left": true, "right": true,
	"full": true, "outer": true, "cross": true, "natural": true,
	"and": true, "or": true, "not": true, "in": true, "is": true,
	"null": true, "like": true, "ilike": true, "similar": true, "between": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
	"distinct": true, "all": true, "asc": true, "desc": true,
	"union": true, "except": true, "intersect": true, "with": true,
	"over": true, "partition": true, "rows": true, "range": true,
	"preceding": true, "following": true, "unbounded": true, "current": true,
	"filter": true, "qualify": true, "using": true, "exists": true,
	"any": true, "some": true, "interval": true, "nulls": true,
	"first": true, "last": true, "true": true, "false": true,
	"current_date": true, "current_timestamp": true, "escape": true,
}

// typeKeywords are type names valid after AS inside cast().
var typeKeywords = map[string]bool{
	"integer": true, "int": true, "bigint": true, "smallint": true,
	"tinyint": true, "hugeint": true, "double": true, "float": true,
	"real": true, "decimal": true, "numeric": true, "precision": true,
	"varchar": true, "text": true, "char": true, "string": true,
	"boolean": true, "bool": true, "date": true, "timestamp": true,
	"time": true, "blob": true,
}

// allowedFunctions is the closed set of functions generated queries may
// call. DuckDB's table/file/system functions (read_csv, read_parquet, glob,
// getenv, duckdb_settings, ...) are deliberately absent.
var allowedFunctions = map[string]bool{
	// aggregation
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"median": true, "mode": true, "stddev": true, "stddev_pop": true,
	"stddev_samp": true, "variance": true, "var_pop": true, "var_samp": true,
	"string_agg": true, "group_concat": true, "list": true, "array_agg": true,
	"arg_max": true, "arg_min": true, "max_by": true, "min_by": true,
	"bool_and": true, "bool_or": true, "product": true,
	"approx_count_distinct": true, "quantile": true, "quantile_cont": true,
	"quantile_disc": true, "percentile_cont": true, "percentile_disc": true,
	"corr": true, "covar_pop": true, "covar_samp": true, "regr_slope": true,
	"regr_intercept": true, "regr_r2": true, "skewness": true, "kurtosis": true,
	// numeric
	"abs": true, "round": true, "floor": true, "ceil": true, "ceiling": true,
	"sign": true, "sqrt": true, "cbrt": true, "pow": true, "power": true,
	"exp": true, "ln": true, "log": true, "log2": true, "log10": true,
	"mod": true, "pi": true, "degrees": true, "radians": true,
	"greatest": true, "least": true, "random": true, "generate_series": true,
	// strings
	"lower": true, "upper": true, "trim": true, "ltrim": true, "rtrim": true,
	"replace": true, "substr": true, "substring": true, "length": true,
	"strlen": true, "concat": true, "concat_ws": true, "printf": true,
	"format": true, "contains": true, "starts_with": true, "ends_with": true,
	"prefix": true, "suffix": true, "lpad": true, "rpad": true, "repeat": true,
	"reverse": true, "strip_accents": true, "strpos": true, "instr": true,
	"position": true, "split_part": true, "string_split": true,
	"regexp_matches": true, "regexp_extract": true, "regexp_replace": true,
	"regexp_full_match": true, "levenshtein": true, "jaccard": true,
	// temporal
	"year": true, "month": true, "day": true, "strftime": true,
	"strptime": true, "date_part": true, "datepart": true, "date_trunc": true,
	"datetrunc": true, "date_diff": true, "datediff": true, "date_add": true,
	"date_sub": true, "extract": true, "make_date": true, "today": true,
	"now": true, "last_day": true, "dayofweek": true, "dayofyear": true,
	"weekofyear": true, "monthname": true, "dayname": true,
	// conversion, null handling
	"cast": true, "try_cast": true, "coalesce": true, "nullif": true,
	"ifnull": true, "isnull": true, "if": true, "iif": true, "typeof": true,
	"len": true,
	// window
	"row_number": true, "rank": true, "dense_rank": true, "percent_rank": true,
	"cume_dist": true, "ntile": true, "lag": true, "lead": true,
	"first_value": true, "last_value": true, "nth_value": true,
}
