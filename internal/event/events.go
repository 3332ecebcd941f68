package event

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dcc-portal/pqlservice/internal/repl/pql"
)

// Translation kinds.
const (
	KindParse     = "parse"
	KindSerialize = "serialize"
	KindValidate  = "validate"
	KindTerms     = "terms"
	KindShare     = "share"
)

// TranslationEvent describes one facade call.
type TranslationEvent struct {
	ID         string
	Kind       string // parse, serialize, validate, terms, share
	Source     string // http, ws, shell
	OccurredAt time.Time
	Duration   time.Duration
	Ops        []string // operators in the tree, sorted, one entry per distinct op
	Fields     []string // fields in the tree, sorted, one entry per distinct field
	OK         bool
	Error      string
}

func newID() string { return uuid.New().String() }

// NewTranslationEvent builds an event for a call that started at started.
// tree may be nil when the call failed before producing one.
func NewTranslationEvent(kind, source string, tree pql.Tree, err error, started time.Time) TranslationEvent {
	now := time.Now()
	evt := TranslationEvent{
		ID:         newID(),
		Kind:       kind,
		Source:     source,
		OccurredAt: now,
		Duration:   now.Sub(started),
		OK:         err == nil,
	}
	if err != nil {
		evt.Error = err.Error()
	}
	if tree != nil {
		evt.Ops, evt.Fields = Summarize(tree)
	}
	return evt
}

// Summarize returns the distinct operators and fields used in a tree.
func Summarize(tree pql.Tree) (ops, fields []string) {
	opSet := make(map[string]bool)
	fieldSet := make(map[string]bool)
	walk(tree, opSet, fieldSet)
	return sortedKeys(opSet), sortedKeys(fieldSet)
}

func walk(t pql.Tree, ops, fields map[string]bool) {
	switch v := t.(type) {
	case pql.Sequence:
		for _, elem := range v {
			walk(elem, ops, fields)
		}
	case *pql.Node:
		if v == nil {
			return
		}
		ops[v.Op] = true
		if v.Field != "" {
			fields[v.Field] = true
		}
		if pql.IsNoNesting(v.Op) && v.Op != pql.OpExists && v.Op != pql.OpMissing {
			for _, val := range v.Values {
				if lit, ok := val.(pql.Literal); ok && lit.Value != "*" {
					fields[lit.Value] = true
				}
			}
			return
		}
		for _, val := range v.Values {
			walk(val, ops, fields)
		}
	case *pql.Limit:
		if v != nil {
			ops[pql.OpLimit] = true
		}
	case *pql.Sort:
		if v == nil {
			return
		}
		ops[pql.OpSort] = true
		for _, f := range v.Fields {
			fields[f.Field] = true
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
