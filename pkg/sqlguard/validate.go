// Package sqlguard is the security boundary between model-generated SQL and
// the analytical store. Candidate text is untrusted input: it is lexed and
// checked against an allow list (single statement, SELECT verb, known
// identifiers, no concealed statements) and never executed unless every
// check passes. A configured row ceiling is injected when the statement
// carries no LIMIT of its own.
package sqlguard

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/toshima-abt/hachiq/pkg/catalog"
)

// Rule identifies which validation rule rejected a candidate.
type Rule string

const (
	RuleEmpty              Rule = "empty_statement"
	RuleMultipleStatements Rule = "multiple_statements"
	RuleNotSelect          Rule = "not_select"
	RuleUnknownTable       Rule = "unknown_table"
	RuleUnknownColumn      Rule = "unknown_column"
	RuleUnknownFunction    Rule = "unknown_function"
	RuleConcealment        Rule = "concealed_statement"
	RuleIllegalToken       Rule = "illegal_token"
)

// UnsafeQueryError reports a rejected candidate. Detail names the violated
// rule and, for identifier failures, the offending identifier.
type UnsafeQueryError struct {
	Rule   Rule
	Detail string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("unsafe query (%s): %s", e.Rule, e.Detail)
}

// IsUnsafe reports whether err is a validation rejection.
func IsUnsafe(err error) bool {
	var ue *UnsafeQueryError
	return errors.As(err, &ue)
}

// ValidatedQuery is a candidate that passed every check. SQL is the
// normalized text that may be handed to the executor.
type ValidatedQuery struct {
	SQL           string
	Tables        []string
	Columns       []string
	LimitInjected bool
}

// Config configures a Guard.
type Config struct {
	Catalog *catalog.Catalog
	// RowCeiling is appended as a LIMIT when the statement has none.
	// Defaults to 10000.
	RowCeiling int
}

// Guard validates candidate statements against the catalog.
type Guard struct {
	cat     *catalog.Catalog
	ceiling int
}

// New creates a Guard.
func New(cfg Config) (*Guard, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.RowCeiling == 0 {
		cfg.RowCeiling = 10000
	}
	return &Guard{cat: cfg.Catalog, ceiling: cfg.RowCeiling}, nil
}

// Validate checks one candidate statement. It is deterministic and
// side-effect free: validating the returned SQL again succeeds and yields
// the same result.
func (g *Guard) Validate(sql string) (*ValidatedQuery, error) {
	lex := NewLexer(sql)
	tokens := lex.Tokens()

	if bad, what := lex.Unterminated(); bad {
		return nil, &UnsafeQueryError{RuleConcealment, "unterminated " + what}
	}
	if err := checkComments(lex.Comments()); err != nil {
		return nil, err
	}

	tokens, cut, err := singleStatement(tokens)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &UnsafeQueryError{RuleEmpty, "no statement found"}
	}
	for _, tok := range tokens {
		if tok.Type == tokenIllegal {
			return nil, &UnsafeQueryError{RuleIllegalToken, "unexpected character " + strconv.Quote(tok.Literal)}
		}
	}

	if first := tokens[0]; first.Type != tokenIdent || strings.ToLower(first.Literal) != "select" {
		verb := first.Literal
		if verb == "" {
			verb = "(none)"
		}
		return nil, &UnsafeQueryError{RuleNotSelect, "leading verb is " + strings.ToUpper(verb) + ", only SELECT is allowed"}
	}

	res := newResolver(g.cat, tokens)
	if err := res.resolve(); err != nil {
		return nil, err
	}

	normalized := sql
	if cut >= 0 {
		normalized = sql[:cut]
	}
	normalized = strings.TrimSpace(normalized)
	injected := false
	if !res.hasTopLevelLimit {
		// The newline keeps the injected LIMIT outside any trailing line
		// comment, so the returned SQL re-validates unchanged.
		normalized += "\nLIMIT " + strconv.Itoa(g.ceiling)
		injected = true
	}

	return &ValidatedQuery{
		SQL:           normalized,
		Tables:        sortedKeys(res.tables),
		Columns:       sortedKeys(res.columns),
		LimitInjected: injected,
	}, nil
}

// checkComments rejects comments able to smuggle a second statement past the
// statement splitter.
func checkComments(comments []string) error {
	for _, c := range comments {
		if strings.Contains(c, ";") {
			return &UnsafeQueryError{RuleConcealment, "comment contains a statement separator"}
		}
		for _, word := range strings.FieldsFunc(strings.ToLower(c), func(r rune) bool {
			return !('a' <= r && r <= 'z')
		}) {
			if mutatingVerbs[word] {
				return &UnsafeQueryError{RuleConcealment, "comment mentions " + strings.ToUpper(word)}
			}
		}
	}
	return nil
}

// singleStatement strips trailing semicolons and rejects interior ones. The
// second return value is the byte offset of the first stripped semicolon, or
// -1 when nothing was stripped; the caller cuts the statement text there so
// anything trailing the terminator is dropped along with it.
func singleStatement(tokens []Token) ([]Token, int, error) {
	end := len(tokens)
	for end > 0 && tokens[end-1].Type == tokenSemicolon {
		end--
	}
	cut := -1
	if end < len(tokens) {
		cut = tokens[end].Pos
	}
	for _, tok := range tokens[:end] {
		if tok.Type == tokenSemicolon {
			return nil, 0, &UnsafeQueryError{RuleMultipleStatements, "multiple statements are not allowed"}
		}
	}
	return tokens[:end], cut, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var mutatingVerbs = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true,
	"create": true, "alter": true, "truncate": true, "attach": true,
	"detach": true, "copy": true, "pragma": true, "install": true,
	"import": true, "export": true, "vacuum": true, "grant": true,
	"revoke": true,
}
