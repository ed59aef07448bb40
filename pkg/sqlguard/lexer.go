package sqlguard

import "strings"

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	tokenEOF TokenType = iota
	tokenIdent
	tokenQuotedIdent
	tokenString
	tokenNumber
	tokenSemicolon
	tokenComma
	tokenDot
	tokenStar
	tokenLParen
	tokenRParen
	tokenOperator
	tokenIllegal
)

// Token is one lexical unit of the candidate statement.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset in the input
}

// Lexer tokenizes a SQL candidate. It understands single-quoted strings with
// '' escapes, double-quoted identifiers with "" escapes, and both comment
// forms. Comments are collected rather than discarded so the validator can
// inspect them.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte

	comments          []string
	unterminated      bool // an unclosed string or block comment was seen
	unterminatedWhere string
}

// NewLexer creates a lexer over the candidate text.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// Tokens lexes the whole input. Comments and unterminated constructs are
// reported through the lexer's accessors afterwards.
func (l *Lexer) Tokens() []Token {
	var tokens []Token
	for {
		tok := l.next()
		if tok.Type == tokenEOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// Comments returns the comment bodies encountered during lexing.
func (l *Lexer) Comments() []string { return l.comments }

// Unterminated reports whether an unclosed string literal or block comment
// was encountered, and which construct it was.
func (l *Lexer) Unterminated() (bool, string) { return l.unterminated, l.unterminatedWhere }

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) next() Token {
	l.skipWhitespaceAndComments()

	tok := Token{Pos: l.pos}

	switch l.ch {
	case 0:
		tok.Type = tokenEOF
		return tok
	case ';':
		tok.Type, tok.Literal = tokenSemicolon, ";"
	case ',':
		tok.Type, tok.Literal = tokenComma, ","
	case '.':
		tok.Type, tok.Literal = tokenDot, "."
	case '*':
		tok.Type, tok.Literal = tokenStar, "*"
	case '(':
		tok.Type, tok.Literal = tokenLParen, "("
	case ')':
		tok.Type, tok.Literal = tokenRParen, ")"
	case '\'':
		tok.Type = tokenString
		tok.Literal = l.readString()
		return tok
	case '"':
		tok.Type = tokenQuotedIdent
		tok.Literal = l.readQuotedIdentifier()
		return tok
	case '+', '-', '/', '%', '=', '<', '>', '!', '|', '&', '^', '~', ':', '?', '[', ']':
		tok.Type = tokenOperator
		tok.Literal = l.readOperator()
		return tok
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_':
			tok.Type = tokenIdent
			tok.Literal = l.readIdentifier()
			return tok
		case isDigit(l.ch):
			tok.Type = tokenNumber
			tok.Literal = l.readNumber()
			return tok
		default:
			tok.Type, tok.Literal = tokenIllegal, string(l.ch)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			start := l.pos + 2
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			l.comments = append(l.comments, l.input[start:l.pos])
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			start := l.pos
			closed := false
			for l.ch != 0 {
				if l.ch == '*' && l.peekChar() == '/' {
					l.comments = append(l.comments, l.input[start:l.pos])
					l.readChar()
					l.readChar()
					closed = true
					break
				}
				l.readChar()
			}
			if !closed {
				l.comments = append(l.comments, l.input[start:])
				l.unterminated = true
				l.unterminatedWhere = "block comment"
			}
			continue
		}
		break
	}
}

// readString reads a single-quoted literal, handling the '' escape.
func (l *Lexer) readString() string {
	l.readChar() // opening quote
	var b strings.Builder
	for {
		if l.ch == 0 {
			l.unterminated = true
			l.unterminatedWhere = "string literal"
			break
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				b.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			break
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	return b.String()
}

// readQuotedIdentifier reads a double-quoted identifier, handling "" escapes.
func (l *Lexer) readQuotedIdentifier() string {
	l.readChar() // opening quote
	var b strings.Builder
	for {
		if l.ch == 0 {
			l.unterminated = true
			l.unterminatedWhere = "quoted identifier"
			break
		}
		if l.ch == '"' {
			if l.peekChar() == '"' {
				b.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			break
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	return b.String()
}

func (l *Lexer) readOperator() string {
	start := l.pos
	l.readChar()
	// Two-character operators the model routinely emits.
	two := l.input[start:min(start+2, len(l.input))]
	switch two {
	case "<=", ">=", "<>", "!=", "==", "||", "::", "//":
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) || l.ch == '.' || l.ch == 'e' || l.ch == 'E' ||
		((l.ch == '+' || l.ch == '-') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E')) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
