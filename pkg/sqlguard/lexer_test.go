package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexer_Tokens(t *testing.T) {
	t.Parallel()

	lex := NewLexer(`SELECT town_name, "year" FROM business_stats WHERE num_offices >= 10 AND town_name = '旭町' LIMIT 5;`)
	tokens := lex.Tokens()

	types := make([]TokenType, 0, len(tokens))
	literals := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		types = append(types, tok.Type)
		literals = append(literals, tok.Literal)
	}

	require.Equal(t, []TokenType{
		tokenIdent, tokenIdent, tokenComma, tokenQuotedIdent, tokenIdent,
		tokenIdent, tokenIdent, tokenIdent, tokenOperator, tokenNumber,
		tokenIdent, tokenIdent, tokenOperator, tokenString, tokenIdent,
		tokenNumber, tokenSemicolon,
	}, types)
	require.Equal(t, []string{
		"SELECT", "town_name", ",", "year", "FROM",
		"business_stats", "WHERE", "num_offices", ">=", "10",
		"AND", "town_name", "=", "旭町", "LIMIT",
		"5", ";",
	}, literals)

	bad, _ := lex.Unterminated()
	require.False(t, bad)
	require.Empty(t, lex.Comments())
}

func TestLexer_Comments(t *testing.T) {
	t.Parallel()

	lex := NewLexer("SELECT 1 -- trailing note\n/* block\nnote */ FROM population")
	tokens := lex.Tokens()

	require.Len(t, tokens, 4)
	require.Equal(t, []string{" trailing note", " block\nnote "}, lex.Comments())
}

func TestLexer_StringEscapes(t *testing.T) {
	t.Parallel()

	lex := NewLexer(`SELECT 'it''s' FROM population`)
	tokens := lex.Tokens()

	require.Equal(t, tokenString, tokens[1].Type)
	require.Equal(t, "it's", tokens[1].Literal)
}

func TestLexer_QuotedIdentifierEscapes(t *testing.T) {
	t.Parallel()

	lex := NewLexer(`SELECT "a""b" FROM population`)
	tokens := lex.Tokens()

	require.Equal(t, tokenQuotedIdent, tokens[1].Type)
	require.Equal(t, `a"b`, tokens[1].Literal)
}

func TestLexer_Unterminated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		where string
	}{
		{"string literal", "SELECT 'oops", "string literal"},
		{"quoted identifier", `SELECT "oops`, "quoted identifier"},
		{"block comment", "SELECT 1 /* oops", "block comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lex := NewLexer(tt.input)
			lex.Tokens()
			bad, where := lex.Unterminated()
			require.True(t, bad)
			require.Equal(t, tt.where, where)
		})
	}
}

func TestLexer_Operators(t *testing.T) {
	t.Parallel()

	lex := NewLexer("a <= b >= c <> d != e || f :: g < h")
	var ops []string
	for _, tok := range lex.Tokens() {
		if tok.Type == tokenOperator {
			ops = append(ops, tok.Literal)
		}
	}
	require.Equal(t, []string{"<=", ">=", "<>", "!=", "||", "::", "<"}, ops)
}

func TestLexer_Numbers(t *testing.T) {
	t.Parallel()

	lex := NewLexer("SELECT 12, 3.14, 1.5e-3, 2E+8")
	var nums []string
	for _, tok := range lex.Tokens() {
		if tok.Type == tokenNumber {
			nums = append(nums, tok.Literal)
		}
	}
	require.Equal(t, []string{"12", "3.14", "1.5e-3", "2E+8"}, nums)
}

func TestLexer_IllegalByte(t *testing.T) {
	t.Parallel()

	lex := NewLexer("SELECT @version")
	tokens := lex.Tokens()

	require.Equal(t, tokenIllegal, tokens[1].Type)
	require.Equal(t, "@", tokens[1].Literal)
}

func TestLexer_TokenPositions(t *testing.T) {
	t.Parallel()

	input := "SELECT 1 ; -- end"
	lex := NewLexer(input)
	tokens := lex.Tokens()

	require.Len(t, tokens, 3)
	require.Equal(t, tokenSemicolon, tokens[2].Type)
	require.Equal(t, ';', rune(input[tokens[2].Pos]))
}
