package pql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes PQL source text.
type Lexer struct {
	input  string
	pos    int // current byte position
	line   int // 1-based
	col    int // 1-based
	tokens []Token
	errors []*ParseError
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
}

// Tokenize scans the entire input and returns all tokens plus any errors.
// The token slice always ends with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, []*ParseError) {
	for {
		tok := l.next()
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return l.tokens, l.errors
}

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// peekAt returns the rune at offset from current position.
func (l *Lexer) peekAt(offset int) rune {
	p := l.pos + offset
	if p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

// advance moves forward by one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) token(typ TokenType, lit string, startPos, startLine, startCol int) Token {
	return Token{Type: typ, Literal: lit, Pos: startPos, End: l.pos, Line: startLine, Col: startCol}
}

// next scans and returns the next token.
func (l *Lexer) next() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos, End: l.pos, Line: l.line, Col: l.col}
	}

	startPos, startLine, startCol := l.pos, l.line, l.col
	r := l.peek()

	if r == '"' || r == '\'' {
		return l.scanString(startPos, startLine, startCol)
	}

	// A minus directly followed by a digit is a negative number; otherwise it
	// is a sort direction marker.
	if isDigit(r) || (r == '-' && isDigit(l.peekAt(1))) {
		return l.scanNumber(startPos, startLine, startCol)
	}

	if isIdentStart(r) {
		return l.scanIdent(startPos, startLine, startCol)
	}

	l.advance()
	switch r {
	case ',':
		return l.token(TokenComma, ",", startPos, startLine, startCol)
	case '*':
		return l.token(TokenStar, "*", startPos, startLine, startCol)
	case '+':
		return l.token(TokenPlus, "+", startPos, startLine, startCol)
	case '-':
		return l.token(TokenMinus, "-", startPos, startLine, startCol)
	case '(':
		return l.token(TokenLParen, "(", startPos, startLine, startCol)
	case ')':
		return l.token(TokenRParen, ")", startPos, startLine, startCol)
	}

	l.errors = append(l.errors, &ParseError{
		Message: "unexpected character " + quoteRune(r),
		Line:    startLine,
		Col:     startCol,
		Pos:     startPos,
	})
	return l.token(TokenIdent, string(r), startPos, startLine, startCol)
}

// scanString reads a quoted string literal.
func (l *Lexer) scanString(startPos, startLine, startCol int) Token {
	quote := l.advance() // consume opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		r := l.advance()
		if r == quote {
			return l.token(TokenString, b.String(), startPos, startLine, startCol)
		}
		if r == '\\' {
			next := l.advance()
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case '\'':
				b.WriteByte('\'')
			default:
				b.WriteByte('\\')
				b.WriteRune(next)
			}
			continue
		}
		b.WriteRune(r)
	}
	l.errors = append(l.errors, &ParseError{
		Message: "unterminated string",
		Line:    startLine,
		Col:     startCol,
		Pos:     startPos,
	})
	return l.token(TokenString, b.String(), startPos, startLine, startCol)
}

// scanNumber reads an integer or decimal literal with an optional sign.
func (l *Lexer) scanNumber(startPos, startLine, startCol int) Token {
	start := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	seenDot := false
	for l.pos < len(l.input) {
		r := l.peek()
		if isDigit(r) {
			l.advance()
		} else if r == '.' && !seenDot && isDigit(l.peekAt(1)) {
			seenDot = true
			l.advance()
		} else {
			break
		}
	}
	return l.token(TokenNumber, l.input[start:l.pos], startPos, startLine, startCol)
}

// scanIdent reads an identifier or keyword. Identifiers may contain dots so
// that qualified field names lex as a single token.
func (l *Lexer) scanIdent(startPos, startLine, startCol int) Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	lit := l.input[start:l.pos]
	return l.token(LookupKeyword(lit), lit, startPos, startLine, startCol)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
