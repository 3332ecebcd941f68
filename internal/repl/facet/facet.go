// Package facet edits PQL filter trees the way the portal's facet panels do:
// ticking and unticking terms, clearing a field, and replacing sort and
// limit, while leaving the rest of the query alone.
//
// Filters are kept as a single top-level and(...) of term nodes. A field
// with one selected term is eq(field,v); with several it is in(field,v...).
package facet

import (
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
)

// Query is a parse tree split into the parts facet editing cares about.
type Query struct {
	Extra   []pql.Tree  // select, facets, count and other top-level nodes
	Filters []*pql.Node // conjunction of filter nodes
	Sort    *pql.Sort
	Limit   *pql.Limit
}

// Term is the set of selected values for one field.
type Term struct {
	Field  string        `json:"field"`
	Values []pql.Literal `json:"values"`
}

// Decompose splits a tree. Filter nodes are copied so editing the query
// leaves tree untouched. A nil tree yields an empty query.
func Decompose(tree pql.Tree) *Query {
	q := &Query{}
	var exprs []pql.Tree
	switch t := tree.(type) {
	case nil:
	case pql.Sequence:
		exprs = t
	default:
		exprs = []pql.Tree{t}
	}

	for _, expr := range exprs {
		switch e := expr.(type) {
		case *pql.Limit:
			q.Limit = e
		case *pql.Sort:
			q.Sort = e
		case *pql.Node:
			switch {
			case e == nil:
			case e.Op == pql.OpAnd && e.Field == "" && allNodes(e.Values):
				for _, v := range e.Values {
					q.Filters = append(q.Filters, cloneNode(v.(*pql.Node)))
				}
			case isFilter(e.Op):
				q.Filters = append(q.Filters, cloneNode(e))
			default:
				q.Extra = append(q.Extra, e)
			}
		default:
			q.Extra = append(q.Extra, expr)
		}
	}
	return q
}

// Tree reassembles the query: extras first, then the filter conjunction,
// sort and limit.
func (q *Query) Tree() pql.Tree {
	parts := make(pql.Sequence, 0, len(q.Extra)+3)
	parts = append(parts, q.Extra...)

	switch len(q.Filters) {
	case 0:
	case 1:
		parts = append(parts, q.Filters[0])
	default:
		values := make([]pql.Tree, len(q.Filters))
		for i, f := range q.Filters {
			values[i] = f
		}
		parts = append(parts, pql.NewNode(pql.OpAnd, "", values...))
	}

	if q.Sort != nil && len(q.Sort.Fields) > 0 {
		parts = append(parts, q.Sort)
	}
	if q.Limit != nil && !q.Limit.IsEmpty() {
		parts = append(parts, q.Limit)
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return parts
}

// AddTerm selects value for field. Selecting a value that is already
// selected is a no-op.
func (q *Query) AddTerm(field string, value pql.Literal) {
	if f := q.termFilter(field); f != nil {
		for _, v := range f.Values {
			if pql.Equal(v, value) {
				return
			}
		}
		f.Values = append(f.Values, value)
		f.Op = pql.OpIn
		return
	}
	q.Filters = append(q.Filters, pql.NewNode(pql.OpEq, field, value))
}

// RemoveTerm deselects value for field. The field's filter collapses to eq
// when one value remains and disappears when none do.
func (q *Query) RemoveTerm(field string, value pql.Literal) {
	f := q.termFilter(field)
	if f == nil {
		return
	}
	kept := f.Values[:0]
	for _, v := range f.Values {
		if !pql.Equal(v, value) {
			kept = append(kept, v)
		}
	}
	f.Values = kept

	switch len(kept) {
	case 0:
		q.dropFilter(f)
	case 1:
		f.Op = pql.OpEq
	}
}

// RemoveField drops every leaf filter on field.
func (q *Query) RemoveField(field string) {
	kept := q.Filters[:0]
	for _, f := range q.Filters {
		if f.Field == field && !pql.IsCombinator(f.Op) && f.Op != pql.OpNested {
			continue
		}
		kept = append(kept, f)
	}
	q.Filters = kept
}

// Terms lists the selected values of every eq/in filter in query order.
func (q *Query) Terms() []Term {
	var terms []Term
	for _, f := range q.Filters {
		if f.Op != pql.OpEq && f.Op != pql.OpIn {
			continue
		}
		t := Term{Field: f.Field}
		for _, v := range f.Values {
			if lit, ok := v.(pql.Literal); ok {
				t.Values = append(t.Values, lit)
			}
		}
		terms = append(terms, t)
	}
	return terms
}

// SetSort replaces the sort order. No fields removes sorting.
func (q *Query) SetSort(fields ...pql.SortField) {
	if len(fields) == 0 {
		q.Sort = nil
		return
	}
	q.Sort = &pql.Sort{Fields: fields}
}

// SetLimit replaces the page window. A nil limit removes it.
func (q *Query) SetLimit(l *pql.Limit) {
	q.Limit = l
}

// termFilter returns the eq/in filter on field, or nil.
func (q *Query) termFilter(field string) *pql.Node {
	for _, f := range q.Filters {
		if f.Field == field && (f.Op == pql.OpEq || f.Op == pql.OpIn) {
			return f
		}
	}
	return nil
}

func (q *Query) dropFilter(target *pql.Node) {
	kept := q.Filters[:0]
	for _, f := range q.Filters {
		if f != target {
			kept = append(kept, f)
		}
	}
	q.Filters = kept
}

func allNodes(values []pql.Tree) bool {
	for _, v := range values {
		if n, ok := v.(*pql.Node); !ok || n == nil {
			return false
		}
	}
	return len(values) > 0
}

func isFilter(op string) bool {
	switch op {
	case pql.OpSelect, pql.OpFacets, pql.OpCount, pql.OpLimit, pql.OpSort:
		return false
	}
	return true
}

func cloneNode(n *pql.Node) *pql.Node {
	c := *n
	c.Values = append([]pql.Tree(nil), n.Values...)
	return &c
}
