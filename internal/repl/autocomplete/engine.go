// Package autocomplete provides context-aware completions for PQL.
package autocomplete

import (
	"strings"

	"github.com/dcc-portal/pqlservice/internal/repl/meta"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
)

// CompletionItem is a single autocomplete suggestion.
type CompletionItem struct {
	Label      string `json:"label"`
	Kind       string `json:"kind"` // "operator", "field", "entity", "value", "command"
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insert_text,omitempty"`
}

// Engine provides autocomplete from the in-memory field catalog.
type Engine struct {
	registry *schema.Registry
}

// New creates an autocomplete engine backed by the given registry.
func New(registry *schema.Registry) *Engine {
	return &Engine{registry: registry}
}

// filterOps may appear inside and(), or(), not() and nested().
var filterOps = []string{
	pql.OpEq, pql.OpNe, pql.OpGt, pql.OpGe, pql.OpLt, pql.OpLe, pql.OpIn,
	pql.OpAnd, pql.OpOr, pql.OpNot, pql.OpNested,
	pql.OpExists, pql.OpMissing,
}

var opDetail = map[string]string{
	pql.OpEq:      "field equals value",
	pql.OpNe:      "field differs from value",
	pql.OpGt:      "field > number",
	pql.OpGe:      "field >= number",
	pql.OpLt:      "field < number",
	pql.OpLe:      "field <= number",
	pql.OpIn:      "field is one of values",
	pql.OpAnd:     "all must match",
	pql.OpOr:      "any must match",
	pql.OpNot:     "negation",
	pql.OpNested:  "nested document path",
	pql.OpExists:  "field is present",
	pql.OpMissing: "field is absent",
	pql.OpSelect:  "fields to return",
	pql.OpFacets:  "term aggregations",
	pql.OpCount:   "count matches",
	pql.OpSort:    "result order",
	pql.OpLimit:   "page size and offset",
}

// frame is one open call in the text before the cursor.
type frame struct {
	op    string
	arg   int    // index of the argument being typed
	field string // first argument, once complete
}

// Complete returns autocomplete suggestions for the given PQL text and
// cursor position (a byte offset).
func (e *Engine) Complete(text string, cursor int) []CompletionItem {
	if cursor > len(text) {
		cursor = len(text)
	}
	if cursor < 0 {
		cursor = 0
	}
	prefix := text[:cursor]

	if trimmed := strings.TrimLeft(prefix, " \t"); strings.HasPrefix(trimmed, ":") {
		if strings.ContainsAny(trimmed, " \t") {
			return nil
		}
		return e.completeMetaCmds(strings.ToLower(trimmed[1:]))
	}

	tokens, errs := pql.NewLexer(prefix).Tokenize()
	if len(tokens) > 0 && tokens[len(tokens)-1].Type == pql.TokenEOF {
		tokens = tokens[:len(tokens)-1]
	}

	// A token the cursor is still touching is a partial word, not context.
	partial := ""
	inString := false
	if n := len(tokens); n > 0 {
		last := tokens[n-1]
		atEnd := last.End == len(prefix)
		switch {
		case last.Type == pql.TokenString && isUnterminated(errs, last):
			partial, inString = strings.ToLower(last.Literal), true
			tokens = tokens[:n-1]
		case last.Type == pql.TokenString || last.Type == pql.TokenNumber:
			if atEnd {
				return nil
			}
		case (last.Type == pql.TokenIdent || last.Type == pql.TokenBool) && atEnd:
			partial = strings.ToLower(last.Literal)
			tokens = tokens[:n-1]
		}
	}

	stack := openCalls(tokens)
	if len(stack) == 0 {
		if len(tokens) > 0 && tokens[len(tokens)-1].Type != pql.TokenComma {
			return nil
		}
		return e.completeOperators(pql.KnownOps, partial)
	}
	return e.completeArgument(stack[len(stack)-1], partial, inString)
}

func (e *Engine) completeArgument(top frame, partial string, inString bool) []CompletionItem {
	switch top.op {
	case pql.OpEq, pql.OpNe, pql.OpIn:
		if top.arg == 0 {
			return e.completeFields(partial, nil)
		}
		return e.completeValues(top.field, partial, inString)
	case pql.OpGt, pql.OpGe, pql.OpLt, pql.OpLe:
		if top.arg == 0 {
			return e.completeFields(partial, func(fm *schema.FieldMeta) bool { return fm.Type.Comparable() })
		}
	case pql.OpAnd, pql.OpOr, pql.OpNot:
		return e.completeOperators(filterOps, partial)
	case pql.OpNested:
		if top.arg == 0 {
			return filterItems(e.registry.EntityNames(), partial, "entity")
		}
		return e.completeOperators(filterOps, partial)
	case pql.OpExists, pql.OpMissing, pql.OpSort:
		return e.completeFields(partial, nil)
	case pql.OpSelect:
		items := filterItems([]string{"*"}, partial, "field")
		return append(items, e.completeFields(partial, nil)...)
	case pql.OpFacets:
		items := filterItems([]string{"*"}, partial, "field")
		return append(items, e.completeFields(partial, func(fm *schema.FieldMeta) bool { return fm.Facet })...)
	}
	return nil
}

// openCalls replays the tokens and returns the calls still open at the end.
func openCalls(tokens []pql.Token) []frame {
	var stack []frame
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case pql.TokenIdent:
			if i+1 < len(tokens) && tokens[i+1].Type == pql.TokenLParen {
				stack = append(stack, frame{op: strings.ToLower(tok.Literal)})
				i++
				continue
			}
			if n := len(stack); n > 0 && stack[n-1].arg == 0 {
				stack[n-1].field = tok.Literal
			}
		case pql.TokenLParen:
			stack = append(stack, frame{})
		case pql.TokenComma:
			if n := len(stack); n > 0 {
				stack[n-1].arg++
			}
		case pql.TokenRParen:
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		}
	}
	return stack
}

// ── Completion providers ────────────────────────────────────────────────────

func (e *Engine) completeMetaCmds(partial string) []CompletionItem {
	var items []CompletionItem
	for _, c := range meta.Commands {
		if strings.HasPrefix(c, partial) {
			items = append(items, CompletionItem{Label: ":" + c, Kind: "command"})
		}
	}
	return items
}

func (e *Engine) completeOperators(ops []string, partial string) []CompletionItem {
	var items []CompletionItem
	for _, op := range ops {
		if partial == "" || strings.HasPrefix(op, partial) {
			items = append(items, CompletionItem{
				Label:      op,
				Kind:       "operator",
				Detail:     opDetail[op],
				InsertText: op + "(",
			})
		}
	}
	return items
}

// completeFields offers qualified field names in catalog order. partial
// matches either the qualified or the bare name.
func (e *Engine) completeFields(partial string, keep func(*schema.FieldMeta) bool) []CompletionItem {
	var items []CompletionItem
	for _, ent := range e.registry.EntityNames() {
		es := e.registry.Entity(ent)
		for _, name := range es.FieldOrder {
			fm := es.Fields[name]
			if keep != nil && !keep(fm) {
				continue
			}
			if partial == "" ||
				strings.HasPrefix(strings.ToLower(fm.Qualified), partial) ||
				strings.HasPrefix(strings.ToLower(name), partial) {
				items = append(items, CompletionItem{
					Label:  fm.Qualified,
					Kind:   "field",
					Detail: fm.Type.String(),
				})
			}
		}
	}
	return items
}

// completeValues offers the known values of an enum or bool field.
func (e *Engine) completeValues(field, partial string, inString bool) []CompletionItem {
	fm := e.registry.Field(field)
	if fm == nil {
		return nil
	}
	switch fm.Type {
	case schema.FieldEnum:
		var items []CompletionItem
		for _, v := range fm.EnumValues {
			if partial == "" || strings.HasPrefix(strings.ToLower(v), partial) {
				item := CompletionItem{Label: v, Kind: "value"}
				if !inString {
					item.InsertText = `"` + v + `"`
				}
				items = append(items, item)
			}
		}
		return items
	case schema.FieldBool:
		if inString {
			return nil
		}
		return filterItems([]string{"true", "false"}, partial, "value")
	}
	return nil
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func filterItems(candidates []string, partial, kind string) []CompletionItem {
	var items []CompletionItem
	for _, c := range candidates {
		if partial == "" || strings.HasPrefix(strings.ToLower(c), partial) {
			items = append(items, CompletionItem{
				Label: c,
				Kind:  kind,
			})
		}
	}
	return items
}

// isUnterminated reports whether the lexer flagged tok as missing its
// closing quote.
func isUnterminated(errs []*pql.ParseError, tok pql.Token) bool {
	for _, err := range errs {
		if err.Pos == tok.Pos && err.Message == "unterminated string" {
			return true
		}
	}
	return false
}
