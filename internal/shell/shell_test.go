package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

type trackerPublisher struct{ tracker *usage.Tracker }

func (p trackerPublisher) Publish(_ context.Context, evt event.TranslationEvent) {
	p.tracker.Record(evt)
}

func newShell() (*Shell, *usage.Tracker) {
	tracker := usage.NewTracker()
	return New(Options{
		Registry:   schema.DefaultRegistry(),
		Translator: pql.New(pql.WithLogger(pql.Discard)),
		Publisher:  trackerPublisher{tracker},
		Tracker:    tracker,
	}), tracker
}

func TestEval_Parse(t *testing.T) {
	s, tracker := newShell()

	out, clearScreen := s.Eval(`eq(donor.gender,'male')`)
	assert.False(t, clearScreen)
	assert.Contains(t, out, `"op": "eq"`)
	assert.Contains(t, out, `"field": "donor.gender"`)
	assert.Contains(t, out, "\n=> eq(donor.gender,\"male\")")

	out, _ = s.Eval(`eq(donor.gender`)
	assert.True(t, len(out) > 7 && out[:7] == "error: ", out)

	stats := tracker.Snapshot(5)
	assert.Equal(t, 2, stats.Calls[event.KindParse])
	assert.Equal(t, 1, stats.Failures[event.KindParse])
}

func TestEval_Serialize(t *testing.T) {
	s, _ := newShell()

	out, _ := s.Eval(`[{"op":"in","field":"file.access","values":["open"]},{"op":"limit","size":5}]`)
	assert.Equal(t, `=> in(file.access,"open"),limit(5)`, out)

	out, _ = s.Eval(`{"op":`)
	assert.Contains(t, out, "error: invalid parse tree")
}

func TestEval_MetaCommands(t *testing.T) {
	s, _ := newShell()

	s.Eval(`limit(10)`)
	out, _ := s.Eval(":history")
	assert.Contains(t, out, "limit(10)")

	_, clearScreen := s.Eval(":clear")
	assert.True(t, clearScreen)

	out, _ = s.Eval(":validate gt(donor.ageAtDiagnosis,50),limit(5)")
	assert.Contains(t, out, `"limit": 5`)

	out, _ = s.Eval(":validate gt(donor.gender,50)")
	assert.Contains(t, out, "invalid: ")

	out, _ = s.Eval(":validate")
	assert.Equal(t, "usage: :validate <pql>", out)

	out, _ = s.Eval(":stats")
	assert.Contains(t, out, `"top_ops"`)

	out, _ = s.Eval(":nope")
	assert.Contains(t, out, "error: unknown meta-command")

	out, _ = s.Eval("   ")
	assert.Empty(t, out)
}

func TestComplete(t *testing.T) {
	s, _ := newShell()

	assert.Equal(t, []string{"limit("}, s.Complete("lim"))
	assert.Contains(t, s.Complete("eq(donor.gen"), "eq(donor.gender")
	assert.Equal(t, []string{`eq(donor.gender,"male"`, `eq(donor.gender,"female"`}, s.Complete("eq(donor.gender,"))
	assert.Equal(t, []string{`eq(donor.gender,"male`}, s.Complete(`eq(donor.gender,"ma`))
	assert.ElementsMatch(t, []string{":stats", ":validate"}, filterPrefix(s.Complete(":"), ":s", ":v"))
}

func filterPrefix(items []string, prefixes ...string) []string {
	var out []string
	for _, item := range items {
		for _, p := range prefixes {
			if len(item) >= len(p) && item[:len(p)] == p {
				out = append(out, item)
			}
		}
	}
	return out
}

func TestNeedsMoreInput(t *testing.T) {
	cases := map[string]bool{
		`eq(a,1)`:         false,
		`and(eq(a,1),`:    true,
		`eq(a,"x)"`:       true,
		`eq(a,"x)")`:      false,
		`eq(a,'it\'s')`:   false,
		`eq(a,"unclosed`:  true,
		`limit(10))`:      false,
	}
	for in, want := range cases {
		assert.Equal(t, want, needsMoreInput(in), in)
	}
}

func TestWordStart(t *testing.T) {
	require.Equal(t, 0, wordStart("lim"))
	assert.Equal(t, 3, wordStart("eq(donor"))
	assert.Equal(t, 17, wordStart(`eq(donor.gender,"ma`))
}
