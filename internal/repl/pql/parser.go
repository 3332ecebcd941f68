package pql

import (
	"strconv"
	"strings"
)

// maxDepth bounds call nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

// Parser implements a recursive descent parser for PQL.
type Parser struct {
	tokens []Token
	pos    int
	depth  int
}

// NewParser creates a parser from a token slice (typically from Lexer.Tokenize).
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse lexes and parses a PQL query. A query with a single top-level
// expression yields that node; several comma-separated expressions yield a
// Sequence. Errors are always *ParseError.
func Parse(input string) (Tree, error) {
	tokens, lexErrs := NewLexer(input).Tokenize()
	if len(lexErrs) > 0 {
		err := lexErrs[0]
		err.Input = input
		return nil, err
	}
	tree, err := NewParser(tokens).Parse()
	if err != nil {
		err.Input = input
		return nil, err
	}
	return tree, nil
}

// Parse parses the whole token stream as a query.
func (p *Parser) Parse() (Tree, *ParseError) {
	if p.atEnd() {
		return nil, newParseErrorf(p.peek(), "empty query")
	}

	var exprs Sequence
	for {
		expr, err := p.parseCall(true)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if !p.check(TokenComma) {
			break
		}
		p.advance() // consume ','
	}

	if !p.atEnd() {
		tok := p.peek()
		return nil, newParseErrorf(tok, "unexpected %s after expression", describe(tok))
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return exprs, nil
}

// ── Token navigation ────────────────────────────────────────────────────────

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atEnd() bool {
	return p.peek().Type == TokenEOF
}

func (p *Parser) check(t TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) expect(t TokenType) (Token, *ParseError) {
	if p.check(t) {
		return p.advance(), nil
	}
	tok := p.peek()
	return tok, newParseErrorf(tok, "expected %s, got %s", t, describe(tok))
}

// isCallStart reports whether the next tokens open a call: IDENT "(".
func (p *Parser) isCallStart() bool {
	return p.check(TokenIdent) && p.peekAt(1).Type == TokenLParen
}

// ── Calls ───────────────────────────────────────────────────────────────────

func (p *Parser) parseCall(top bool) (Tree, *ParseError) {
	opTok, err := p.expect(TokenIdent)
	if err != nil {
		return nil, newParseErrorf(opTok, "expected operator name, got %s", describe(opTok))
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, newParseErrorf(opTok, "query nested more than %d levels deep", maxDepth)
	}

	op := strings.ToLower(opTok.Literal)
	switch op {
	case OpLimit:
		return p.parseLimit()
	case OpSort:
		return p.parseSort()
	case OpCount:
		return p.parseCount(top)
	case OpSelect, OpFacets:
		values, err := p.parseRawList(op, false)
		if err != nil {
			return nil, err
		}
		return &Node{Op: op, Values: values}, nil
	case OpExists, OpMissing:
		values, err := p.parseRawList(op, true)
		if err != nil {
			return nil, err
		}
		node := &Node{Op: op}
		if len(values) > 0 {
			if lit, ok := values[0].(Literal); ok && lit.Kind == LitString {
				node.Field = lit.Value
				values = values[1:]
			}
		}
		if len(values) > 0 {
			node.Values = values
		}
		return node, nil
	default:
		field, values, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &Node{Op: op, Field: field, Values: values}, nil
	}
}

// parseArgs reads a generic argument list through the closing paren. A
// leading bare identifier is the field; later bare identifiers are string
// values.
func (p *Parser) parseArgs() (string, []Tree, *ParseError) {
	var (
		field  string
		values []Tree
	)
	if p.check(TokenRParen) {
		p.advance()
		return "", nil, nil
	}

	for i := 0; ; i++ {
		tok := p.peek()
		switch {
		case p.isCallStart():
			call, err := p.parseCall(false)
			if err != nil {
				return "", nil, err
			}
			values = append(values, call)
		case tok.Type == TokenIdent:
			p.advance()
			if i == 0 {
				field = tok.Literal
			} else {
				values = append(values, String(tok.Literal))
			}
		case tok.Type.IsValue():
			lit, err := p.parseLiteral()
			if err != nil {
				return "", nil, err
			}
			values = append(values, lit)
		case tok.Type == TokenStar:
			p.advance()
			values = append(values, String("*"))
		default:
			return "", nil, newParseErrorf(tok, "expected argument, got %s", describe(tok))
		}

		if p.check(TokenComma) {
			p.advance()
			continue
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return "", nil, err
		}
		return field, values, nil
	}
}

// parseRawList reads the literal argument list of a no-nesting operator.
func (p *Parser) parseRawList(op string, fieldFirst bool) ([]Tree, *ParseError) {
	var values []Tree
	if p.check(TokenRParen) {
		p.advance()
		return nil, nil
	}
	for {
		tok := p.peek()
		switch {
		case p.isCallStart():
			return nil, newParseErrorf(tok, "'%s' does not accept nested expressions", op)
		case tok.Type == TokenIdent, tok.Type == TokenStar:
			p.advance()
			values = append(values, String(tok.Literal))
		case tok.Type.IsValue():
			if fieldFirst && len(values) == 0 {
				return nil, newParseErrorf(tok, "'%s' expects a field name, got %s", op, describe(tok))
			}
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			values = append(values, lit)
		default:
			return nil, newParseErrorf(tok, "expected field name, got %s", describe(tok))
		}

		if p.check(TokenComma) {
			p.advance()
			continue
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return values, nil
	}
}

func (p *Parser) parseLiteral() (Literal, *ParseError) {
	tok := p.advance()
	switch tok.Type {
	case TokenString:
		return String(tok.Literal), nil
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return Literal{}, newParseErrorf(tok, "invalid number %s", tok.Literal)
		}
		return Number(f), nil
	case TokenBool:
		return Bool(strings.EqualFold(tok.Literal, "true")), nil
	default:
		return Literal{}, newParseErrorf(tok, "expected literal value, got %s", describe(tok))
	}
}

// ── limit / sort / count ────────────────────────────────────────────────────

// parseLimit reads limit(), limit(size) or limit(from,size).
func (p *Parser) parseLimit() (Tree, *ParseError) {
	var nums []float64
	if !p.check(TokenRParen) {
		for {
			tok, err := p.expect(TokenNumber)
			if err != nil {
				return nil, newParseErrorf(tok, "limit expects numbers, got %s", describe(tok))
			}
			f, perr := strconv.ParseFloat(tok.Literal, 64)
			if perr != nil {
				return nil, newParseErrorf(tok, "invalid number %s", tok.Literal)
			}
			nums = append(nums, f)
			if len(nums) > 2 {
				return nil, newParseErrorf(tok, "limit takes at most two arguments")
			}
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	limit := &Limit{}
	switch len(nums) {
	case 1:
		limit.Size = Float(nums[0])
	case 2:
		limit.From = Float(nums[0])
		limit.Size = Float(nums[1])
	}
	return limit, nil
}

// parseSort reads sort(<dir><field>,...).
func (p *Parser) parseSort() (Tree, *ParseError) {
	s := &Sort{}
	if !p.check(TokenRParen) {
		for {
			var dir string
			if p.check(TokenPlus) || p.check(TokenMinus) {
				dir = p.advance().Literal
			}
			tok, err := p.expect(TokenIdent)
			if err != nil {
				return nil, newParseErrorf(tok, "expected sort field, got %s", describe(tok))
			}
			s.Fields = append(s.Fields, SortField{Direction: dir, Field: tok.Literal})
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return s, nil
}

// parseCount reads count(...). At the top level an empty count() may be
// followed by trailing parameters closed by their own paren:
// count(),field,values). The trailing form is only taken when it closes
// cleanly and does not open with another count, since count(),count(),x)
// reads as two top-level counts; otherwise the comma belongs to the
// enclosing query.
func (p *Parser) parseCount(top bool) (Tree, *ParseError) {
	field, values, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	node := &Node{Op: OpCount, Field: field, Values: values}
	if field != "" || len(values) > 0 || !top || !p.check(TokenComma) {
		return node, nil
	}

	mark := p.pos
	p.advance() // consume ','
	if p.isCallStart() && strings.EqualFold(p.peek().Literal, OpCount) {
		p.pos = mark
		return node, nil
	}
	qField, qValues, qErr := p.parseArgs()
	if qErr == nil && (qField != "" || len(qValues) > 0) && (p.atEnd() || p.check(TokenComma)) {
		node.Field = qField
		node.Values = qValues
		return node, nil
	}
	p.pos = mark
	return node, nil
}

// describe renders a token for error messages.
func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return tok.Type.String()
	case TokenString:
		return strconv.Quote(tok.Literal)
	default:
		return tok.Type.String() + " '" + tok.Literal + "'"
	}
}
