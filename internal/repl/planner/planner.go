package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
)

// DefaultLimit is applied when no explicit limit is specified.
const DefaultLimit = 100

// Planner validates parse trees using the schema registry.
type Planner struct {
	registry *schema.Registry
}

// New creates a planner backed by the given schema registry.
func New(registry *schema.Registry) *Planner {
	return &Planner{registry: registry}
}

// planState accumulates a plan while walking a tree.
type planState struct {
	plan     *QueryPlan
	seen     map[string]bool
	hasLimit bool
	hasSort  bool
}

func (s *planState) touch(qualified string) {
	ent := schema.EntityOf(qualified)
	if ent == "" || s.seen[ent] {
		return
	}
	s.seen[ent] = true
	s.plan.Entities = append(s.plan.Entities, ent)
}

// Plan validates a parse tree and resolves it into a QueryPlan.
func (p *Planner) Plan(tree pql.Tree) (*QueryPlan, error) {
	st := &planState{
		plan: &QueryPlan{Limit: DefaultLimit},
		seen: make(map[string]bool),
	}

	var exprs []pql.Tree
	if seq, ok := tree.(pql.Sequence); ok {
		exprs = seq
	} else {
		exprs = []pql.Tree{tree}
	}
	for _, expr := range exprs {
		if err := p.planTop(st, expr); err != nil {
			return nil, err
		}
	}
	if st.plan.Entities == nil {
		st.plan.Entities = []string{}
	}
	return st.plan, nil
}

func (p *Planner) planTop(st *planState, expr pql.Tree) error {
	switch e := expr.(type) {
	case *pql.Limit:
		if e == nil {
			return fmt.Errorf("unexpected empty expression")
		}
		if st.hasLimit {
			return fmt.Errorf("limit() given more than once")
		}
		st.hasLimit = true
		if e.Size != nil {
			st.plan.Limit = e.SizeValue()
		}
		st.plan.Offset = e.FromValue()
		return nil

	case *pql.Sort:
		if e == nil {
			return fmt.Errorf("unexpected empty expression")
		}
		if st.hasSort {
			return fmt.Errorf("sort() given more than once")
		}
		st.hasSort = true
		for _, sf := range e.Fields {
			fm, err := p.resolveField(sf.Field)
			if err != nil {
				return err
			}
			st.touch(fm.Qualified)
			st.plan.OrderBy = append(st.plan.OrderBy, OrderSpec{Field: fm.Qualified, Desc: sf.Direction == "-"})
		}
		return nil

	case *pql.Node:
		if e == nil {
			return fmt.Errorf("unexpected empty expression")
		}
		switch e.Op {
		case pql.OpSelect:
			fields, err := p.resolveFieldList(st, e, false)
			if err != nil {
				return err
			}
			st.plan.Select = append(st.plan.Select, fields...)
			return nil
		case pql.OpFacets:
			fields, err := p.resolveFieldList(st, e, true)
			if err != nil {
				return err
			}
			st.plan.Facets = append(st.plan.Facets, fields...)
			return nil
		case pql.OpCount:
			return p.planCount(st, e)
		}
		spec, err := p.resolveFilter(st, e)
		if err != nil {
			return err
		}
		st.plan.Filters = append(st.plan.Filters, spec)
		return nil

	case pql.Sequence:
		return fmt.Errorf("nested lists are not allowed at the top level")
	default:
		return fmt.Errorf("expected an expression, got %s", describe(expr))
	}
}

// ── select / facets / count ─────────────────────────────────────────────────

func (p *Planner) resolveFieldList(st *planState, n *pql.Node, facets bool) ([]string, error) {
	var out []string
	for _, v := range n.Values {
		lit, ok := v.(pql.Literal)
		if !ok || lit.Kind != pql.LitString {
			return nil, fmt.Errorf("%s() expects field names, got %s", n.Op, describe(v))
		}
		if lit.Value == "*" {
			if facets {
				out = append(out, p.registry.FacetFields()...)
			} else {
				out = append(out, "*")
			}
			continue
		}
		fm, err := p.resolveField(lit.Value)
		if err != nil {
			return nil, err
		}
		if facets && !fm.Facet {
			return nil, fmt.Errorf("field '%s' is not a facet", fm.Qualified)
		}
		st.touch(fm.Qualified)
		out = append(out, fm.Qualified)
	}
	return out, nil
}

// planCount marks the plan as a count. Trailing parameters name the counted
// field, and any values restrict it like in().
func (p *Planner) planCount(st *planState, n *pql.Node) error {
	st.plan.Count = true
	if n.Field == "" {
		if len(n.Values) > 0 {
			return fmt.Errorf("count() parameters must start with a field name")
		}
		return nil
	}
	fm, err := p.resolveField(n.Field)
	if err != nil {
		return err
	}
	st.touch(fm.Qualified)
	st.plan.CountField = fm.Qualified
	if len(n.Values) == 0 {
		return nil
	}
	values, err := p.resolveValues(fm, pql.OpIn, n.Values)
	if err != nil {
		return err
	}
	st.plan.Filters = append(st.plan.Filters, FilterSpec{Op: pql.OpIn, Field: fm.Qualified, Values: values})
	return nil
}

// ── Filters ─────────────────────────────────────────────────────────────────

func (p *Planner) resolveFilter(st *planState, n *pql.Node) (FilterSpec, error) {
	switch n.Op {
	case pql.OpEq, pql.OpNe, pql.OpGt, pql.OpGe, pql.OpLt, pql.OpLe, pql.OpIn:
		return p.resolveComparison(st, n)

	case pql.OpExists, pql.OpMissing:
		if n.Field == "" {
			return FilterSpec{}, fmt.Errorf("%s() requires a field", n.Op)
		}
		if len(n.Values) > 0 {
			return FilterSpec{}, fmt.Errorf("%s() takes a single field", n.Op)
		}
		fm, err := p.resolveField(n.Field)
		if err != nil {
			return FilterSpec{}, err
		}
		st.touch(fm.Qualified)
		return FilterSpec{Op: n.Op, Field: fm.Qualified}, nil

	case pql.OpAnd, pql.OpOr:
		if n.Field != "" {
			return FilterSpec{}, fmt.Errorf("%s() does not take a field, got '%s'", n.Op, n.Field)
		}
		clauses, err := p.resolveClauses(st, n)
		if err != nil {
			return FilterSpec{}, err
		}
		if len(clauses) == 0 {
			return FilterSpec{}, fmt.Errorf("%s() requires at least one expression", n.Op)
		}
		return FilterSpec{Op: n.Op, Clauses: clauses}, nil

	case pql.OpNot:
		if n.Field != "" || len(n.Values) != 1 {
			return FilterSpec{}, fmt.Errorf("not() takes exactly one expression")
		}
		clauses, err := p.resolveClauses(st, n)
		if err != nil {
			return FilterSpec{}, err
		}
		spec := clauses[0]
		spec.Negated = !spec.Negated
		return spec, nil

	case pql.OpNested:
		if n.Field == "" {
			return FilterSpec{}, fmt.Errorf("nested() requires a path")
		}
		if p.registry.Entity(n.Field) == nil && p.registry.Field(n.Field) == nil {
			return FilterSpec{}, p.unknownPath(n.Field)
		}
		clauses, err := p.resolveClauses(st, n)
		if err != nil {
			return FilterSpec{}, err
		}
		if len(clauses) == 0 {
			return FilterSpec{}, fmt.Errorf("nested() requires at least one expression")
		}
		return FilterSpec{Op: pql.OpNested, Field: n.Field, Clauses: clauses}, nil

	case pql.OpSelect, pql.OpFacets, pql.OpCount, pql.OpLimit, pql.OpSort:
		return FilterSpec{}, fmt.Errorf("%s() is only allowed at the top level", n.Op)
	}

	if s := pql.SuggestFrom(n.Op, pql.KnownOps, 2); s != "" {
		return FilterSpec{}, fmt.Errorf("unknown operator '%s' (%s)", n.Op, s)
	}
	return FilterSpec{}, fmt.Errorf("unknown operator '%s'", n.Op)
}

func (p *Planner) resolveClauses(st *planState, n *pql.Node) ([]FilterSpec, error) {
	clauses := make([]FilterSpec, 0, len(n.Values))
	for _, v := range n.Values {
		child, ok := v.(*pql.Node)
		if !ok || child == nil {
			return nil, fmt.Errorf("%s() expects expressions, got %s", n.Op, describe(v))
		}
		spec, err := p.resolveFilter(st, child)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, spec)
	}
	return clauses, nil
}

func (p *Planner) resolveComparison(st *planState, n *pql.Node) (FilterSpec, error) {
	if n.Field == "" {
		return FilterSpec{}, fmt.Errorf("%s() requires a field", n.Op)
	}
	fm, err := p.resolveField(n.Field)
	if err != nil {
		return FilterSpec{}, err
	}
	st.touch(fm.Qualified)

	switch {
	case len(n.Values) == 0:
		return FilterSpec{}, fmt.Errorf("%s(%s) requires a value", n.Op, n.Field)
	case n.Op != pql.OpIn && len(n.Values) > 1:
		return FilterSpec{}, fmt.Errorf("%s(%s) takes a single value; use in() for several", n.Op, n.Field)
	}

	if isRange(n.Op) && !fm.Type.Comparable() {
		return FilterSpec{}, fmt.Errorf("field '%s' (type %s) does not support operator %s",
			fm.Qualified, fm.Type, n.Op)
	}

	values, err := p.resolveValues(fm, n.Op, n.Values)
	if err != nil {
		return FilterSpec{}, err
	}
	return FilterSpec{Op: n.Op, Field: fm.Qualified, Values: values}, nil
}

func (p *Planner) resolveValues(fm *schema.FieldMeta, op string, in []pql.Tree) ([]any, error) {
	values := make([]any, 0, len(in))
	for _, v := range in {
		lit, ok := v.(pql.Literal)
		if !ok {
			return nil, fmt.Errorf("%s(%s) expects literal values, got %s", op, fm.Qualified, describe(v))
		}
		val, err := checkLiteral(lit, fm)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", fm.Qualified, err)
		}
		values = append(values, val)
	}
	return values, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (p *Planner) resolveField(name string) (*schema.FieldMeta, error) {
	if fm := p.registry.Field(name); fm != nil {
		return fm, nil
	}
	if options := p.registry.Ambiguous(name); len(options) > 0 {
		return nil, fmt.Errorf("ambiguous field '%s' (one of %s)", name, strings.Join(options, ", "))
	}
	if s := pql.SuggestFrom(name, p.registry.FieldNames(), 3); s != "" {
		return nil, fmt.Errorf("unknown field '%s' (%s)", name, s)
	}
	return nil, fmt.Errorf("unknown field '%s'", name)
}

func (p *Planner) unknownPath(path string) error {
	candidates := append(append([]string{}, p.registry.EntityNames()...), p.registry.FieldNames()...)
	if s := pql.SuggestFrom(path, candidates, 3); s != "" {
		return fmt.Errorf("unknown nested path '%s' (%s)", path, s)
	}
	return fmt.Errorf("unknown nested path '%s'", path)
}

func isRange(op string) bool {
	switch op {
	case pql.OpGt, pql.OpGe, pql.OpLt, pql.OpLe:
		return true
	}
	return false
}

// checkLiteral validates a literal against the field type and returns its Go
// value.
func checkLiteral(lit pql.Literal, fm *schema.FieldMeta) (any, error) {
	switch fm.Type {
	case schema.FieldInt, schema.FieldFloat:
		if lit.Kind != pql.LitNumber {
			return nil, fmt.Errorf("expected a number, got %s", describe(lit))
		}
		f, ok := lit.Interface().(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected a number, got %s", lit.Value)
		}
		if fm.Type == schema.FieldInt && math.Trunc(f) != f {
			return nil, fmt.Errorf("expected an integer, got %s", lit.Value)
		}
		return f, nil

	case schema.FieldBool:
		if lit.Kind == pql.LitBool {
			return lit.Interface(), nil
		}
		if lit.Kind == pql.LitString && (strings.EqualFold(lit.Value, "true") || strings.EqualFold(lit.Value, "false")) {
			return strings.EqualFold(lit.Value, "true"), nil
		}
		return nil, fmt.Errorf("expected true or false, got %s", describe(lit))

	case schema.FieldEnum:
		for _, ev := range fm.EnumValues {
			if strings.EqualFold(lit.Value, ev) {
				return ev, nil
			}
		}
		return nil, fmt.Errorf("invalid enum value '%s', valid values: %v", lit.Value, fm.EnumValues)

	default:
		return lit.Value, nil
	}
}

func describe(t pql.Tree) string {
	switch v := t.(type) {
	case pql.Literal:
		if v.Kind == pql.LitString {
			return fmt.Sprintf("%q", v.Value)
		}
		return v.Value
	case *pql.Node:
		if v == nil {
			return "null"
		}
		return v.Op + "()"
	case *pql.Limit:
		return "limit()"
	case *pql.Sort:
		return "sort()"
	case pql.Sequence:
		return "a list"
	case pql.Invalid:
		return v.Raw
	default:
		return "null"
	}
}
