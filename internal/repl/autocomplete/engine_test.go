package autocomplete

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcc-portal/pqlservice/internal/repl/schema"
)

func testEngine() *Engine {
	r := schema.NewRegistry()
	r.Register(&schema.EntitySchema{
		Name: "donor",
		Fields: map[string]*schema.FieldMeta{
			"id":     {Name: "id", Type: schema.FieldID},
			"gender": {Name: "gender", Type: schema.FieldEnum, EnumValues: []string{"male", "female"}, Facet: true},
			"age":    {Name: "age", Type: schema.FieldInt},
			"alive":  {Name: "alive", Type: schema.FieldBool},
		},
		FieldOrder: []string{"id", "gender", "age", "alive"},
	})
	r.Register(&schema.EntitySchema{
		Name: "file",
		Fields: map[string]*schema.FieldMeta{
			"access": {Name: "access", Type: schema.FieldEnum, EnumValues: []string{"open", "controlled"}, Facet: true},
		},
		FieldOrder: []string{"access"},
	})
	return New(r)
}

func labels(items []CompletionItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}

func complete(e *Engine, text string) []CompletionItem {
	return e.Complete(text, len(text))
}

func TestComplete_TopLevelOperators(t *testing.T) {
	e := testEngine()

	items := complete(e, "")
	assert.Contains(t, labels(items), "eq")
	assert.Contains(t, labels(items), "limit")

	items = complete(e, "li")
	require.Len(t, items, 1)
	assert.Equal(t, "limit", items[0].Label)
	assert.Equal(t, "limit(", items[0].InsertText)
	assert.Equal(t, "operator", items[0].Kind)

	assert.Equal(t, []string{"select", "sort"}, labels(complete(e, `eq(donor.id,"x"),s`)))
	assert.Nil(t, complete(e, `eq(donor.id,"x")`))
}

func TestComplete_Fields(t *testing.T) {
	e := testEngine()

	assert.Equal(t, []string{"donor.id", "donor.gender", "donor.age", "donor.alive"}, labels(complete(e, "eq(do")))
	assert.Equal(t, []string{"donor.gender"}, labels(complete(e, "in(gen")), "bare names match")
	assert.Equal(t, []string{"donor.age"}, labels(complete(e, "gt(")), "range ops offer numeric fields only")
	assert.Equal(t, []string{"donor.age", "donor.alive"}, labels(complete(e, "sort(-donor.a")))
	assert.Equal(t, []string{"*", "donor.gender", "file.access"}, labels(complete(e, "facets(")))
	assert.Contains(t, labels(complete(e, "select(donor.id,")), "*")
}

func TestComplete_Values(t *testing.T) {
	e := testEngine()

	items := complete(e, "eq(donor.gender,")
	require.Len(t, items, 2)
	assert.Equal(t, "male", items[0].Label)
	assert.Equal(t, `"male"`, items[0].InsertText)

	items = complete(e, `in(file.access,"open","co`)
	require.Len(t, items, 1)
	assert.Equal(t, "controlled", items[0].Label)
	assert.Empty(t, items[0].InsertText, "inside quotes only the label is inserted")

	assert.Equal(t, []string{"true", "false"}, labels(complete(e, "eq(donor.alive,")))
	assert.Equal(t, []string{"false"}, labels(complete(e, "eq(alive,f")))
	assert.Nil(t, complete(e, `eq(donor.gender,"male"`))
	assert.Nil(t, complete(e, "eq(donor.age,"))
}

func TestComplete_Nesting(t *testing.T) {
	e := testEngine()

	assert.Contains(t, labels(complete(e, `and(eq(donor.id,"a"),`)), "missing")
	assert.NotContains(t, labels(complete(e, "and(")), "limit")
	assert.Equal(t, []string{"donor"}, labels(complete(e, "nested(d")))
	assert.Equal(t, []string{"exists"}, labels(complete(e, "nested(donor,ex")))
	assert.Equal(t, []string{"donor.gender"}, labels(complete(e, "not(eq(donor.g")))
}

func TestComplete_MetaCommands(t *testing.T) {
	e := testEngine()
	assert.Equal(t, []string{":help", ":history"}, labels(complete(e, ":h")))
	assert.Len(t, complete(e, ":"), 6)
	assert.Nil(t, complete(e, ":fields d"))
}

func TestComplete_CursorClamped(t *testing.T) {
	e := testEngine()
	assert.Equal(t, labels(complete(e, "li")), labels(e.Complete("li", 99)))
	assert.Equal(t, []string{"limit"}, labels(e.Complete("limit(10)", 2)))
}
