package pql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, input string) Tree {
	t.Helper()
	tree, err := Parse(input)
	require.NoError(t, err, "parse %q", input)
	return tree
}

func parseNode(t *testing.T, input string) *Node {
	t.Helper()
	node, ok := parse(t, input).(*Node)
	require.True(t, ok, "expected *Node for %q", input)
	return node
}

func TestParser_Eq(t *testing.T) {
	node := parseNode(t, `eq(donor.gender,"male")`)
	assert.Equal(t, OpEq, node.Op)
	assert.Equal(t, "donor.gender", node.Field)
	assert.Equal(t, []Tree{String("male")}, node.Values)
}

func TestParser_LiteralKinds(t *testing.T) {
	node := parseNode(t, `in(x,"a",1.5,-2,true,bare)`)
	assert.Equal(t, []Tree{
		String("a"), Number(1.5), Number(-2), Bool(true), String("bare"),
	}, node.Values)
}

func TestParser_Nested(t *testing.T) {
	node := parseNode(t, `and(eq(x,1),or(eq(y,2),not(eq(z,3))))`)
	assert.Equal(t, OpAnd, node.Op)
	assert.Empty(t, node.Field)
	require.Len(t, node.Values, 2)

	or := node.Values[1].(*Node)
	assert.Equal(t, OpOr, or.Op)
	require.Len(t, or.Values, 2)
	not := or.Values[1].(*Node)
	assert.Equal(t, OpNot, not.Op)
	assert.Equal(t, NewNode(OpEq, "z", Number(3)), not.Values[0])
}

func TestParser_FieldThenNested(t *testing.T) {
	node := parseNode(t, `nested(donor.specimen,eq(specimen.type,"blood"))`)
	assert.Equal(t, "donor.specimen", node.Field)
	require.Len(t, node.Values, 1)
	assert.Equal(t, NewNode(OpEq, "specimen.type", String("blood")), node.Values[0])
}

func TestParser_OperatorCaseFolded(t *testing.T) {
	node := parseNode(t, `EQ(x,1)`)
	assert.Equal(t, OpEq, node.Op)
}

func TestParser_NoNesting(t *testing.T) {
	tests := []struct {
		input string
		want  *Node
	}{
		{`exists(donorId)`, &Node{Op: OpExists, Field: "donorId"}},
		{`missing(donor.age)`, &Node{Op: OpMissing, Field: "donor.age"}},
		{`select(*)`, &Node{Op: OpSelect, Values: []Tree{String("*")}}},
		{`select(donor.id,donor.age)`, &Node{Op: OpSelect, Values: []Tree{String("donor.id"), String("donor.age")}}},
		{`facets(*)`, &Node{Op: OpFacets, Values: []Tree{String("*")}}},
		{`select()`, &Node{Op: OpSelect}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(t, tt.input))
		})
	}
}

func TestParser_Limit(t *testing.T) {
	l := parse(t, `limit(10)`).(*Limit)
	assert.Nil(t, l.From)
	assert.Equal(t, 10, l.SizeValue())

	l = parse(t, `limit(20,10)`).(*Limit)
	require.NotNil(t, l.From)
	assert.Equal(t, 20, l.FromValue())
	assert.Equal(t, 10, l.SizeValue())

	l = parse(t, `limit()`).(*Limit)
	assert.True(t, l.IsEmpty())
}

func TestParser_Sort(t *testing.T) {
	s := parse(t, `sort(-donor.age,+donor.id,name)`).(*Sort)
	assert.Equal(t, []SortField{
		{Direction: "-", Field: "donor.age"},
		{Direction: "+", Field: "donor.id"},
		{Direction: "", Field: "name"},
	}, s.Fields)
}

func TestParser_Sequence(t *testing.T) {
	tree := parse(t, `eq(x,1), select(*), limit(10)`)
	seq, ok := tree.(Sequence)
	require.True(t, ok)
	require.Len(t, seq, 3)
	assert.Equal(t, OpEq, seq[0].(*Node).Op)
	assert.Equal(t, OpSelect, seq[1].(*Node).Op)
	assert.Equal(t, 10, seq[2].(*Limit).SizeValue())
}

func TestParser_Count(t *testing.T) {
	node := parseNode(t, `count()`)
	assert.Equal(t, &Node{Op: OpCount}, node)
}

func TestParser_CountTrailingParams(t *testing.T) {
	node := parseNode(t, `count(),donor.id,"a","b")`)
	assert.Equal(t, OpCount, node.Op)
	assert.Equal(t, "donor.id", node.Field)
	assert.Equal(t, []Tree{String("a"), String("b")}, node.Values)
}

func TestParser_CountFollowedByExpression(t *testing.T) {
	seq, ok := parse(t, `count(),eq(x,1)`).(Sequence)
	require.True(t, ok)
	require.Len(t, seq, 2)
	assert.Equal(t, &Node{Op: OpCount}, seq[0])
	assert.Equal(t, NewNode(OpEq, "x", Number(1)), seq[1])
}

func TestParser_CountTrailingThenMore(t *testing.T) {
	seq, ok := parse(t, `count(),x,1),limit(5)`).(Sequence)
	require.True(t, ok)
	require.Len(t, seq, 2)
	assert.Equal(t, NewNode(OpCount, "x", Number(1)), seq[0])
	assert.Equal(t, 5, seq[1].(*Limit).SizeValue())
}

func TestParser_CountAfterCount(t *testing.T) {
	seq, ok := parse(t, `count(),count(),x)`).(Sequence)
	require.True(t, ok)
	require.Len(t, seq, 2)
	assert.Equal(t, &Node{Op: OpCount}, seq[0])
	assert.Equal(t, &Node{Op: OpCount, Field: "x"}, seq[1])
}

func TestParser_LeadingBoolIsValue(t *testing.T) {
	node := parseNode(t, `eq(true,1)`)
	assert.Empty(t, node.Field)
	assert.Equal(t, []Tree{Bool(true), Number(1)}, node.Values)
}

func TestParser_LargeLimit(t *testing.T) {
	l := parse(t, `limit(3000000000,10000000000)`).(*Limit)
	assert.Equal(t, "3000000000", l.FromText())
	assert.Equal(t, "10000000000", l.SizeText())
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		input   string
		wantMsg string
	}{
		{``, "empty query"},
		{`   `, "empty query"},
		{`eq(x`, "expected ')'"},
		{`eq(x,1))`, "after expression"},
		{`eq(x,1) eq(y,2)`, "after expression"},
		{`and(eq(x,1)`, "expected ')'"},
		{`123`, "expected operator name"},
		{`eq x`, "expected '('"},
		{`eq(x,)`, "expected argument"},
		{`exists("x")`, "expects a field name"},
		{`select(eq(x,1))`, "does not accept nested expressions"},
		{`limit(a)`, "limit expects numbers"},
		{`limit(1,2,3)`, "at most two arguments"},
		{`limit(1,)`, "limit expects numbers"},
		{`limit(,1)`, "limit expects numbers"},
		{`sort(1)`, "expected sort field"},
		{`sort(a,)`, "expected sort field"},
		{`eq(x,"abc`, "unterminated string"},
		{`eq(x,#)`, "unexpected character"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Message, tt.wantMsg)
			assert.Equal(t, tt.input, perr.Input)
		})
	}
}

func TestParser_ErrorPosition(t *testing.T) {
	_, err := Parse(`and(eq(x,1),eq(y,))`)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
	assert.Equal(t, 18, perr.Col)
	assert.Contains(t, perr.Error(), "line 1 col 18")
}

func TestParser_DepthLimit(t *testing.T) {
	deep := strings.Repeat("not(", maxDepth+10) + "eq(x,1)" + strings.Repeat(")", maxDepth+10)
	_, err := Parse(deep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested more than")

	ok := strings.Repeat("not(", 10) + "eq(x,1)" + strings.Repeat(")", 10)
	_, err = Parse(ok)
	assert.NoError(t, err)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("abc", "abc"))
	assert.Equal(t, 1, Levenshtein("abc", "abd"))
	assert.Equal(t, 3, Levenshtein("", "abc"))
	assert.Equal(t, 2, Levenshtein("gendr", "gender2"))
}

func TestSuggestFrom(t *testing.T) {
	candidates := []string{"donor.gender", "donor.age", "project.code"}
	assert.Equal(t, "did you mean 'donor.gender'?", SuggestFrom("donor.gendr", candidates, 2))
	assert.Empty(t, SuggestFrom("unrelated", candidates, 2))
}
