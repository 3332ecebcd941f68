package pql

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator_FromPQL(t *testing.T) {
	rec := &recordingLogger{}
	tr := New(WithLogger(rec))

	tree, err := tr.FromPQL(`eq(donor.gender,"male")`)
	require.NoError(t, err)
	assert.Equal(t, NewNode(OpEq, "donor.gender", String("male")), tree)
	assert.Empty(t, rec.errors)

	_, err = tr.FromPQL(`eq(`)
	require.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], `pql: failed to parse "eq("`)
}

func TestTranslator_TryParse(t *testing.T) {
	tr := New(WithLogger(Discard))

	res := tr.TryParse(`limit(10)`)
	assert.True(t, res.IsValid)
	assert.Equal(t, NewLimit(10), res.Result)
	assert.Empty(t, res.ErrorMessage)

	res = tr.TryParse(`limit(`)
	assert.False(t, res.IsValid)
	assert.Nil(t, res.Result)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestTranslator_TryParseNeverPanics(t *testing.T) {
	tr := New(WithLogger(Discard))
	inputs := []string{
		"", ")", "(((", ",,,", `"`, `'`, "eq(", "eq(x,1", "limit(-)", "sort(-)",
		"count(),", "count(),)", "count(),x,", "\x00\xff", "select(", "exists(1)",
		strings.Repeat("(", 1000), strings.Repeat("and(", 1000),
		"eq(x,1),", "--1", "1.2.3", "nested(a,b,c(d))",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			res := tr.TryParse(in)
			if res.IsValid {
				assert.NotNil(t, res.Result, "input %q", in)
			} else {
				assert.NotEmpty(t, res.ErrorMessage, "input %q", in)
			}
		}, "input %q", in)
	}
}

func TestTranslator_ParseOrDefault(t *testing.T) {
	tr := New(WithLogger(Discard))
	def := NewLimit(10)

	assert.Same(t, def, tr.ParseOrDefault(`nope`, def))
	assert.Equal(t, NewLimit(5), tr.ParseOrDefault(`limit(5)`, def))
	assert.Nil(t, tr.ParseOrDefault(`nope`, nil))
}

func TestTranslator_ToPQLLogsFallback(t *testing.T) {
	rec := &recordingLogger{}
	tr := New(WithLogger(rec))

	assert.Equal(t, "", tr.ToPQL(Number(42)))
	require.Len(t, rec.warnings, 1)
	assert.Contains(t, rec.warnings[0], "42")
}

func TestTranslator_ToPQLJSON(t *testing.T) {
	tr := New(WithLogger(Discard))

	out, err := tr.ToPQLJSON([]byte(`{"op":"and","values":[{"op":"eq","field":"x","values":[1]},{"op":"eq","field":"y","values":[2]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "and(eq(x,1),eq(y,2))", out)

	out, err = tr.ToPQLJSON([]byte(`42`))
	require.NoError(t, err)
	assert.Equal(t, "", out)

	_, err = tr.ToPQLJSON([]byte(`{"op":`))
	assert.Error(t, err)
}

func TestTranslator_RoundTrip(t *testing.T) {
	tr := New(WithLogger(Discard))
	trees := []Tree{
		NewNode(OpEq, "donor.gender", String("male")),
		NewNode(OpEq, "age", Number(30)),
		NewNode(OpNe, "flag", Bool(false)),
		NewNode(OpIn, "donor.id", String("DO1"), String("DO2"), String("DO3")),
		NewNode(OpAnd, "", NewNode(OpEq, "x", Number(1)), NewNode(OpEq, "y", Number(2))),
		NewNode(OpNot, "", NewNode(OpOr, "", NewNode(OpLt, "a", Number(-1.25)), NewNode(OpGe, "b", Number(1e6)))),
		NewNode(OpNested, "donor.specimen", NewNode(OpEq, "specimen.type", String("blood"))),
		NewNode(OpEq, "q", String(`quote " and \ backslash`)),
		&Node{Op: OpExists, Field: "donorId"},
		&Node{Op: OpMissing, Field: "donor.age"},
		NewNode(OpSelect, "", String("*")),
		NewNode(OpFacets, "", String("donor.gender"), String("project.code")),
		&Limit{Size: Float(10)},
		&Limit{From: Float(2.7), Size: Float(10)},
		&Sort{Fields: []SortField{{Direction: "-", Field: "age"}, {Direction: "+", Field: "id"}}},
		&Node{Op: OpCount},
		NewNode(OpCount, "donor.id", String("a")),
		Sequence{
			NewNode(OpEq, "x", Number(1)),
			NewNode(OpSelect, "", String("*")),
			NewLimit(10, 20),
			&Sort{Fields: []SortField{{Direction: "-", Field: "x"}}},
		},
		Sequence{NewNode(OpCount, "x", Number(1)), NewLimit(5)},
		Sequence{&Node{Op: OpCount}, &Node{Op: OpCount, Field: "x"}},
		&Limit{From: Float(3e9), Size: Float(1e10)},
	}
	for _, tree := range trees {
		text := tr.ToPQL(tree)
		t.Run(text, func(t *testing.T) {
			back, err := tr.FromPQL(text)
			require.NoError(t, err)
			assert.True(t, Equal(tree, back), "round trip of %s produced %s", text, tr.ToPQL(back))
		})
	}
}

func TestTranslator_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	tr := New(WithLogger(NewStdLogger(log.New(&buf, "", 0), LevelWarn)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tree := tr.ParseOrDefault(`and(eq(x,1),limit(10))`, nil)
				tr.ToPQL(tree)
				tr.TryParse(`eq(`)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 16*50)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "error: pql: failed to parse"), line)
	}
}

func TestStdLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(log.New(&buf, "", 0), LevelError)
	l.Warnf("dropped %d", 1)
	l.Errorf("kept %d", 2)
	assert.Equal(t, "error: kept 2\n", buf.String())

	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelWarn, ParseLevel("bogus"))
}
