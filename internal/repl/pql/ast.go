package pql

import (
	"math"
	"strconv"
)

// Tree is implemented by every element of a PQL parse tree: nodes, the
// special limit and sort nodes, literals, sequences, and the Invalid
// placeholder for shapes that cannot be expressed in PQL.
type Tree interface {
	tree()
}

// Well-known operator names.
const (
	OpEq      = "eq"
	OpNe      = "ne"
	OpGt      = "gt"
	OpGe      = "ge"
	OpLt      = "lt"
	OpLe      = "le"
	OpIn      = "in"
	OpAnd     = "and"
	OpOr      = "or"
	OpNot     = "not"
	OpNested  = "nested"
	OpExists  = "exists"
	OpMissing = "missing"
	OpSelect  = "select"
	OpFacets  = "facets"
	OpCount   = "count"
	OpLimit   = "limit"
	OpSort    = "sort"
)

// KnownOps lists the operators the portal backend understands, in the order
// they are offered by completion and help output.
var KnownOps = []string{
	OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpIn,
	OpAnd, OpOr, OpNot, OpNested,
	OpExists, OpMissing,
	OpSelect, OpFacets, OpCount, OpSort, OpLimit,
}

// noNesting holds operators whose values are raw field-name literals.
var noNesting = map[string]bool{
	OpExists:  true,
	OpMissing: true,
	OpSelect:  true,
	OpFacets:  true,
}

// IsNoNesting reports whether op takes a raw literal list instead of
// nested expressions.
func IsNoNesting(op string) bool {
	return noNesting[op]
}

// IsCombinator reports whether op combines sub-expressions rather than
// applying to a field.
func IsCombinator(op string) bool {
	return op == OpAnd || op == OpOr || op == OpNot
}

// ── Nodes ───────────────────────────────────────────────────────────────────

// Node is the generic operation node: op(field,values...).
type Node struct {
	Op     string
	Field  string // empty for pure combinators
	Values []Tree // *Node, *Limit, *Sort, Sequence, Literal or Invalid
}

// NewNode builds a node from literal-or-tree values.
func NewNode(op, field string, values ...Tree) *Node {
	return &Node{Op: op, Field: field, Values: values}
}

// Limit is the special limit(from,size) node. Nil pointers mean the
// attribute is absent.
type Limit struct {
	Size *float64
	From *float64
}

// NewLimit returns a limit node with the given size and optional offset.
func NewLimit(size int, from ...int) *Limit {
	l := &Limit{Size: Float(float64(size))}
	if len(from) > 0 {
		l.From = Float(float64(from[0]))
	}
	return l
}

// IsEmpty reports whether neither size nor from is set.
func (l *Limit) IsEmpty() bool {
	return l.Size == nil && l.From == nil
}

// SizeValue returns the normalized size.
func (l *Limit) SizeValue() int { return saturate(normalizeCount(l.Size)) }

// FromValue returns the normalized offset.
func (l *Limit) FromValue() int { return saturate(normalizeCount(l.From)) }

// SizeText returns the normalized size in its PQL text form.
func (l *Limit) SizeText() string { return countText(normalizeCount(l.Size)) }

// FromText returns the normalized offset in its PQL text form.
func (l *Limit) FromText() string { return countText(normalizeCount(l.From)) }

// SortField is one entry of a sort node.
type SortField struct {
	Direction string // "+", "-" or ""
	Field     string
}

// Sort is the special sort(<dir><field>,...) node.
type Sort struct {
	Fields []SortField
}

// Sequence is an ordered list of trees; a query with several top-level
// expressions parses to a Sequence.
type Sequence []Tree

// Invalid holds an input shape that is neither a node nor a sequence, kept
// as its JSON text so it can be reported.
type Invalid struct {
	Raw string
}

// ── Literals ────────────────────────────────────────────────────────────────

// LiteralKind classifies a literal value.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
	LitBool
)

// Literal is a primitive value. Value holds the natural text form: the raw
// string, the shortest decimal form of a number, or "true"/"false".
type Literal struct {
	Kind  LiteralKind
	Value string
}

// String returns a string literal.
func String(s string) Literal { return Literal{Kind: LitString, Value: s} }

// Number returns a numeric literal.
func Number(f float64) Literal {
	return Literal{Kind: LitNumber, Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Kind: LitBool, Value: strconv.FormatBool(b)} }

// Float returns a pointer to f, for building limit nodes.
func Float(f float64) *float64 { return &f }

// Interface returns the literal as a Go value: string, float64 or bool.
func (l Literal) Interface() any {
	switch l.Kind {
	case LitNumber:
		f, err := strconv.ParseFloat(l.Value, 64)
		if err != nil {
			return l.Value
		}
		return f
	case LitBool:
		return l.Value == "true"
	default:
		return l.Value
	}
}

func (*Node) tree()    {}
func (*Limit) tree()   {}
func (*Sort) tree()    {}
func (Sequence) tree() {}
func (Literal) tree()  {}
func (Invalid) tree()  {}

// normalizeCount floors a limit attribute and clamps it to zero. Absent and
// non-finite values become zero. There is no upper bound.
func normalizeCount(f *float64) float64 {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return 0
	}
	v := math.Floor(*f)
	if v <= 0 {
		return 0
	}
	return v
}

func countText(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// saturate converts a normalized count to int for callers that index with it.
func saturate(v float64) int {
	if v >= math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}

// Equal reports whether two trees are semantically equivalent: absent and
// empty values match, and limit attributes compare after normalization.
func Equal(a, b Tree) bool {
	switch x := a.(type) {
	case *Node:
		y, ok := b.(*Node)
		if !ok || x.Op != y.Op || x.Field != y.Field || len(x.Values) != len(y.Values) {
			return false
		}
		for i := range x.Values {
			if !Equal(x.Values[i], y.Values[i]) {
				return false
			}
		}
		return true
	case *Limit:
		y, ok := b.(*Limit)
		if !ok || (x.From == nil) != (y.From == nil) || x.IsEmpty() != y.IsEmpty() {
			return false
		}
		return normalizeCount(x.Size) == normalizeCount(y.Size) &&
			normalizeCount(x.From) == normalizeCount(y.From)
	case *Sort:
		y, ok := b.(*Sort)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if x.Fields[i] != y.Fields[i] {
				return false
			}
		}
		return true
	case Sequence:
		y, ok := b.(Sequence)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Literal:
		y, ok := b.(Literal)
		if !ok || x.Kind != y.Kind {
			return false
		}
		if x.Kind == LitNumber {
			return x.Interface() == y.Interface()
		}
		return x.Value == y.Value
	case Invalid:
		y, ok := b.(Invalid)
		return ok && x.Raw == y.Raw
	default:
		return a == nil && b == nil
	}
}
