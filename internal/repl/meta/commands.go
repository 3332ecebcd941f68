// Package meta handles REPL meta-commands (:help, :clear, :env, :history,
// :fields, :ops).
package meta

import (
	"fmt"
	"strings"

	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
)

// Handler dispatches meta-commands.
type Handler struct {
	registry *schema.Registry
}

// New creates a meta-command handler.
func New(registry *schema.Registry) *Handler {
	return &Handler{registry: registry}
}

// Result is the output of a meta-command execution.
type Result struct {
	Output string `json:"output"`
	Clear  bool   `json:"clear,omitempty"` // Signal frontend to clear screen
}

// Commands lists the meta-command names, used by completion.
var Commands = []string{"help", "clear", "env", "history", "fields", "ops"}

// Parse splits a ":command arg ..." line. ok is false when line is not a
// meta-command.
func Parse(line string) (command string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ":") {
		return "", nil, false
	}
	parts := strings.Fields(line[1:])
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}

// Execute runs a meta-command and returns the result.
func (h *Handler) Execute(sess *session.Session, command string, args []string) (*Result, error) {
	switch command {
	case "help":
		return h.help(args)
	case "clear":
		return &Result{Clear: true}, nil
	case "env":
		return h.env(sess)
	case "history":
		return h.history(sess)
	case "fields":
		return h.fields(args)
	case "ops":
		return h.ops()
	default:
		return nil, fmt.Errorf("unknown meta-command ':%s'. Type :help for available commands", command)
	}
}

func (h *Handler) help(args []string) (*Result, error) {
	if len(args) > 0 {
		return h.helpTopic(strings.ToLower(args[0]))
	}

	help := `PQL (Portal Query Language)

Enter a query to see its parse tree and canonical form, or paste a parse
tree as JSON to convert it back to PQL.

Filters:
  eq(field,value)  ne(field,value)  in(field,v1,v2,...)
  gt  ge  lt  le   range comparisons on numeric fields
  exists(field)    missing(field)

Logic:
  and(expr,...)  or(expr,...)  not(expr)  nested(path,expr,...)

Projection and paging:
  select(field,...|*)  facets(field,...|*)  count()
  sort(+field,-field)  limit(size[,from])

Top-level expressions are comma-separated and joined with "and".

Meta-commands:
  :help [op]       Show help
  :clear           Clear the screen
  :env             Show session info
  :history         Show query history
  :fields [entity] List searchable fields
  :ops             List operators

Examples:
  eq(donor.gender,"male")
  select(*),in(donor.projectId,"BRCA-US","LIHC-US"),sort(-donor.ageAtDiagnosis),limit(10)
  and(exists(donor.survivalTime),not(eq(mutation.functionalImpact,"Low")))`

	return &Result{Output: help}, nil
}

var topics = map[string]string{
	pql.OpEq:      "eq(field,value)\n\nMatches documents whose field equals value.",
	pql.OpNe:      "ne(field,value)\n\nMatches documents whose field differs from value.",
	pql.OpGt:      "gt(field,number)\n\nField strictly greater than number. Numeric fields only.",
	pql.OpGe:      "ge(field,number)\n\nField greater than or equal to number. Numeric fields only.",
	pql.OpLt:      "lt(field,number)\n\nField strictly less than number. Numeric fields only.",
	pql.OpLe:      "le(field,number)\n\nField less than or equal to number. Numeric fields only.",
	pql.OpIn:      "in(field,v1,v2,...)\n\nMatches any of the listed values.",
	pql.OpAnd:     "and(expr,expr,...)\n\nAll expressions must match.",
	pql.OpOr:      "or(expr,expr,...)\n\nAt least one expression must match.",
	pql.OpNot:     "not(expr)\n\nNegates an expression.",
	pql.OpNested:  "nested(path,expr,...)\n\nEvaluates expressions against a nested document path.",
	pql.OpExists:  "exists(field)\n\nField is present.",
	pql.OpMissing: "missing(field)\n\nField is absent.",
	pql.OpSelect:  "select(field,...)\nselect(*)\n\nChooses the fields returned.",
	pql.OpFacets:  "facets(field,...)\nfacets(*)\n\nRequests term aggregations. * means every facet field.",
	pql.OpCount:   "count()\n\nReturns the number of matches instead of documents.",
	pql.OpSort:    "sort(+field,-field,...)\n\nOrders results. + is ascending, - descending.",
	pql.OpLimit:   "limit(size)\nlimit(size,from)\n\nPages through results.",
}

func (h *Handler) helpTopic(topic string) (*Result, error) {
	if text, ok := topics[topic]; ok {
		return &Result{Output: text}, nil
	}
	msg := fmt.Sprintf("No help available for '%s'", topic)
	if s := pql.SuggestFrom(topic, pql.KnownOps, 2); s != "" {
		msg += " (" + s + ")"
	}
	return &Result{Output: msg}, nil
}

func (h *Handler) env(sess *session.Session) (*Result, error) {
	history, lastActive := sess.Snapshot()
	out := fmt.Sprintf("Session: %s\nCreated: %s\nLast active: %s\nHistory entries: %d\nEntities: %d\nFields: %d",
		sess.ID,
		sess.CreatedAt.Format("2006-01-02 15:04:05"),
		lastActive.Format("2006-01-02 15:04:05"),
		len(history), len(h.registry.EntityNames()), len(h.registry.FieldNames()))
	return &Result{Output: out}, nil
}

func (h *Handler) history(sess *session.Session) (*Result, error) {
	history, _ := sess.Snapshot()
	if len(history) == 0 {
		return &Result{Output: "(no history)"}, nil
	}

	var b strings.Builder
	for i, entry := range history {
		fmt.Fprintf(&b, "%3d  %s\n", i+1, entry)
	}
	return &Result{Output: b.String()}, nil
}

func (h *Handler) fields(args []string) (*Result, error) {
	if len(args) == 0 {
		names := h.registry.EntityNames()
		var b strings.Builder
		fmt.Fprintf(&b, "Entities (%d):\n", len(names))
		for _, name := range names {
			fmt.Fprintf(&b, "  %-12s %d fields\n", name, len(h.registry.Entity(name).FieldOrder))
		}
		return &Result{Output: b.String()}, nil
	}

	entityName := strings.ToLower(args[0])
	es := h.registry.Entity(entityName)
	if es == nil {
		err := fmt.Errorf("unknown entity '%s'", entityName)
		if s := pql.SuggestFrom(entityName, h.registry.EntityNames(), 2); s != "" {
			err = fmt.Errorf("unknown entity '%s' (%s)", entityName, s)
		}
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s\n\nFields:\n", es.Name)
	for _, fname := range es.FieldOrder {
		fm := es.Fields[fname]
		extra := ""
		if fm.Type == schema.FieldEnum && len(fm.EnumValues) > 0 {
			extra = " [" + strings.Join(fm.EnumValues, "|") + "]"
		}
		if fm.Facet {
			extra += " (facet)"
		}
		fmt.Fprintf(&b, "  %-32s %s%s\n", fm.Qualified, fm.Type, extra)
	}
	return &Result{Output: b.String()}, nil
}

func (h *Handler) ops() (*Result, error) {
	return &Result{Output: strings.Join(pql.KnownOps, " ")}, nil
}
