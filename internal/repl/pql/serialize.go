package pql

import (
	"encoding/json"
	"strings"
)

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Serialize renders a tree as canonical PQL text. Shapes that have no PQL
// form are reported to log as warnings and render as "".
func Serialize(t Tree, log Logger) string {
	if log == nil {
		log = Discard
	}
	s := serializer{log: log}
	return s.toPQL(t)
}

type serializer struct {
	log Logger
}

func (s serializer) toPQL(t Tree) string {
	switch v := t.(type) {
	case Sequence:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			out := s.toPQL(elem)
			if len(strings.TrimSpace(out)) <= 1 {
				continue
			}
			parts = append(parts, out)
		}
		return strings.Join(parts, ",")
	case *Limit:
		if v == nil {
			break
		}
		return limitToPQL(v)
	case *Sort:
		if v == nil {
			break
		}
		return sortToPQL(v)
	case *Node:
		if v == nil {
			break
		}
		return s.nodeToPQL(v)
	}
	s.log.Warnf("pql: cannot convert %s to PQL", jsonText(t))
	return ""
}

func (s serializer) nodeToPQL(n *Node) string {
	values := make([]string, 0, len(n.Values))
	for _, v := range n.Values {
		if IsNoNesting(n.Op) {
			raw, ok := rawText(v)
			if !ok {
				s.log.Warnf("pql: %s() takes literal values, dropping %s", n.Op, jsonText(v))
				continue
			}
			values = append(values, raw)
			continue
		}
		values = append(values, s.valueToPQL(v))
	}

	if LookupKeyword(n.Field) != TokenIdent {
		s.log.Warnf("pql: field %q reads back as a boolean value", n.Field)
	}
	params := n.Field
	if n.Field != "" && len(values) > 0 {
		params += ","
	}
	params += strings.Join(values, ",")

	if n.Op == OpCount {
		if params == "" {
			return "count()"
		}
		return "count()," + params + ")"
	}
	return n.Op + "(" + params + ")"
}

func (s serializer) valueToPQL(v Tree) string {
	switch lit := v.(type) {
	case Literal:
		if lit.Kind == LitString {
			return quote(lit.Value)
		}
		return lit.Value
	case Invalid:
		s.log.Warnf("pql: value %s has no PQL form, writing it verbatim", jsonText(lit))
		return lit.Raw
	case nil:
		s.log.Warnf("pql: value null has no PQL form, writing it verbatim")
		return "null"
	}
	return s.toPQL(v)
}

func limitToPQL(l *Limit) string {
	if l.IsEmpty() {
		return ""
	}
	size := l.SizeText()
	if l.From != nil {
		return "limit(" + l.FromText() + "," + size + ")"
	}
	return "limit(" + size + ")"
}

func sortToPQL(s *Sort) string {
	keys := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		keys[i] = f.Direction + f.Field
	}
	return "sort(" + strings.Join(keys, ",") + ")"
}

// rawText returns the verbatim text of a literal for no-nesting operators.
func rawText(v Tree) (string, bool) {
	switch lit := v.(type) {
	case Literal:
		return lit.Value, true
	case Invalid:
		return lit.Raw, true
	}
	return "", false
}

func quote(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// jsonText renders a tree for log messages.
func jsonText(t Tree) string {
	if t == nil {
		return "null"
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "<unprintable>"
	}
	return string(data)
}
