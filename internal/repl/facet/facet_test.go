package facet

import (
	"testing"

	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decompose(t *testing.T, input string) *Query {
	t.Helper()
	if input == "" {
		return Decompose(nil)
	}
	tree, err := pql.Parse(input)
	require.NoError(t, err)
	return Decompose(tree)
}

func render(q *Query) string {
	return pql.Serialize(q.Tree(), nil)
}

func TestDecompose_RoundTrip(t *testing.T) {
	tests := []string{
		`eq(donor.gender,"male")`,
		`select(*),and(eq(donor.gender,"male"),in(project.id,"BRCA-US","LIHC-US")),sort(-donor.age),limit(10)`,
		`facets(*),exists(donor.id)`,
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, in, render(decompose(t, in)))
		})
	}
}

func TestAddTerm(t *testing.T) {
	q := decompose(t, "")
	q.AddTerm("donor.gender", pql.String("male"))
	assert.Equal(t, `eq(donor.gender,"male")`, render(q))

	q.AddTerm("donor.gender", pql.String("female"))
	assert.Equal(t, `in(donor.gender,"male","female")`, render(q))

	q.AddTerm("donor.gender", pql.String("male"))
	assert.Equal(t, `in(donor.gender,"male","female")`, render(q), "duplicate term ignored")

	q.AddTerm("project.id", pql.String("BRCA-US"))
	assert.Equal(t, `and(in(donor.gender,"male","female"),eq(project.id,"BRCA-US"))`, render(q))
}

func TestRemoveTerm(t *testing.T) {
	q := decompose(t, `and(in(donor.gender,"male","female"),eq(project.id,"BRCA-US")),limit(10)`)

	q.RemoveTerm("donor.gender", pql.String("female"))
	assert.Equal(t, `and(eq(donor.gender,"male"),eq(project.id,"BRCA-US")),limit(10)`, render(q))

	q.RemoveTerm("donor.gender", pql.String("male"))
	assert.Equal(t, `eq(project.id,"BRCA-US"),limit(10)`, render(q))

	q.RemoveTerm("nothing", pql.String("x"))
	assert.Equal(t, `eq(project.id,"BRCA-US"),limit(10)`, render(q))

	q.RemoveTerm("project.id", pql.String("BRCA-US"))
	assert.Equal(t, `limit(10)`, render(q))
}

func TestRemoveField(t *testing.T) {
	q := decompose(t, `and(eq(donor.age,30),gt(donor.age,10),exists(donor.age),eq(donor.gender,"male"),or(eq(donor.age,1)))`)
	q.RemoveField("donor.age")
	assert.Equal(t, `and(eq(donor.gender,"male"),or(eq(donor.age,1)))`, render(q))
}

func TestTerms(t *testing.T) {
	q := decompose(t, `and(in(donor.gender,"male","female"),gt(donor.age,10),eq(donor.alive,true))`)
	terms := q.Terms()
	require.Len(t, terms, 2)
	assert.Equal(t, Term{Field: "donor.gender", Values: []pql.Literal{pql.String("male"), pql.String("female")}}, terms[0])
	assert.Equal(t, Term{Field: "donor.alive", Values: []pql.Literal{pql.Bool(true)}}, terms[1])
}

func TestSetSortAndLimit(t *testing.T) {
	q := decompose(t, `eq(x,1),sort(+a),limit(5)`)
	q.SetSort(pql.SortField{Direction: "-", Field: "b"})
	q.SetLimit(pql.NewLimit(20, 40))
	assert.Equal(t, `eq(x,1),sort(-b),limit(40,20)`, render(q))

	q.SetSort()
	q.SetLimit(nil)
	assert.Equal(t, `eq(x,1)`, render(q))
}

func TestDecompose_DoesNotMutateInput(t *testing.T) {
	tree, err := pql.Parse(`eq(donor.gender,"male")`)
	require.NoError(t, err)

	q := Decompose(tree)
	q.AddTerm("donor.gender", pql.String("female"))

	assert.Equal(t, `eq(donor.gender,"male")`, pql.Serialize(tree, nil))
}

func TestTree_Empty(t *testing.T) {
	assert.Equal(t, "", render(decompose(t, "")))
}
