// Package pql implements the lexer, parser, serializer and parse tree for
// PQL (Portal Query Language), the filter language of the data portal.
package pql

import "strings"

// TokenType identifies the kind of lexical token.
type TokenType int

const (
	// Literals and identifiers
	TokenEOF    TokenType = iota
	TokenIdent            // operator or field name, dots allowed (donor.gender)
	TokenString           // "quoted string" or 'quoted string'
	TokenNumber           // 42, -3.5
	TokenBool             // true / false

	// Punctuation
	TokenComma  // ,
	TokenStar   // *
	TokenPlus   // +
	TokenMinus  // -
	TokenLParen // (
	TokenRParen // )
)

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBool:
		return "boolean"
	case TokenComma:
		return "','"
	case TokenStar:
		return "'*'"
	case TokenPlus:
		return "'+'"
	case TokenMinus:
		return "'-'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	default:
		return "unknown"
	}
}

// Token represents a single lexical token in a PQL query.
type Token struct {
	Type    TokenType
	Literal string // token text; unescaped contents for strings
	Pos     int    // byte offset in source
	End     int    // byte offset just past the token
	Line    int    // 1-based line number
	Col     int    // 1-based column number
}

// keywords maps lowercase keyword strings to their token types. Operator
// names are not keywords: the operator set is open-ended.
var keywords = map[string]TokenType{
	"true":  TokenBool,
	"false": TokenBool,
}

// LookupKeyword returns the keyword token type for an identifier, or
// TokenIdent if the identifier is not a keyword. Lookup is case-insensitive.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TokenIdent
}

// IsValue returns true if the token can stand as a literal argument.
func (t TokenType) IsValue() bool {
	switch t {
	case TokenString, TokenNumber, TokenBool:
		return true
	}
	return false
}
