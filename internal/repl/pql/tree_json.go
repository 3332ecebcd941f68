package pql

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/valyala/fastjson"
)

// Trees marshal to the JSON shape the portal UI keeps in URL state:
//
//	{"op":"eq","field":"donor.gender","values":["male"]}
//	{"op":"limit","from":0,"size":10}
//	{"op":"sort","values":[{"direction":"-","field":"donor.age"}]}

var parserPool fastjson.ParserPool

func (n *Node) MarshalJSON() ([]byte, error) {
	type wire struct {
		Op     string `json:"op"`
		Field  string `json:"field,omitempty"`
		Values []Tree `json:"values,omitempty"`
	}
	return json.Marshal(wire{Op: n.Op, Field: n.Field, Values: n.Values})
}

func (l *Limit) MarshalJSON() ([]byte, error) {
	type wire struct {
		Op   string   `json:"op"`
		Size *float64 `json:"size,omitempty"`
		From *float64 `json:"from,omitempty"`
	}
	w := wire{Op: OpLimit}
	if l.Size != nil {
		v := normalizeCount(l.Size)
		w.Size = &v
	}
	if l.From != nil {
		v := normalizeCount(l.From)
		w.From = &v
	}
	return json.Marshal(w)
}

func (s *Sort) MarshalJSON() ([]byte, error) {
	type field struct {
		Direction string `json:"direction"`
		Field     string `json:"field"`
	}
	type wire struct {
		Op     string  `json:"op"`
		Values []field `json:"values"`
	}
	w := wire{Op: OpSort, Values: make([]field, len(s.Fields))}
	for i, f := range s.Fields {
		w.Values[i] = field{Direction: f.Direction, Field: f.Field}
	}
	return json.Marshal(w)
}

func (s Sequence) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Tree(s))
}

func (l Literal) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LitNumber:
		f, err := strconv.ParseFloat(l.Value, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return []byte("null"), nil
		}
		return []byte(l.Value), nil
	case LitBool:
		return []byte(strconv.FormatBool(l.Value == "true")), nil
	default:
		return json.Marshal(l.Value)
	}
}

func (i Invalid) MarshalJSON() ([]byte, error) {
	if i.Raw == "" {
		return []byte("null"), nil
	}
	if json.Valid([]byte(i.Raw)) {
		return []byte(i.Raw), nil
	}
	return json.Marshal(i.Raw)
}

// DecodeTree reads a tree from its JSON shape. Arrays become Sequences,
// objects with an "op" become nodes, primitives become Literals, and
// anything else is kept as Invalid for the serializer to report. Only
// malformed JSON is an error.
func DecodeTree(data []byte) (Tree, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	return decodeValue(v), nil
}

func decodeValue(v *fastjson.Value) Tree {
	switch v.Type() {
	case fastjson.TypeArray:
		arr, _ := v.Array()
		seq := make(Sequence, 0, len(arr))
		for _, elem := range arr {
			seq = append(seq, decodeValue(elem))
		}
		return seq
	case fastjson.TypeObject:
		return decodeObject(v)
	case fastjson.TypeString:
		return String(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		return Number(v.GetFloat64())
	case fastjson.TypeTrue:
		return Bool(true)
	case fastjson.TypeFalse:
		return Bool(false)
	default:
		return Invalid{Raw: string(v.MarshalTo(nil))}
	}
}

func decodeObject(v *fastjson.Value) Tree {
	opVal := v.Get("op")
	if opVal == nil || opVal.Type() != fastjson.TypeString {
		return Invalid{Raw: string(v.MarshalTo(nil))}
	}
	op := string(opVal.GetStringBytes())

	switch op {
	case OpLimit:
		return &Limit{Size: decodeCount(v.Get("size")), From: decodeCount(v.Get("from"))}
	case OpSort:
		s := &Sort{}
		for _, entry := range v.GetArray("values") {
			if entry.Type() != fastjson.TypeObject {
				continue
			}
			s.Fields = append(s.Fields, SortField{
				Direction: string(entry.GetStringBytes("direction")),
				Field:     string(entry.GetStringBytes("field")),
			})
		}
		return s
	}

	node := &Node{Op: op, Field: string(v.GetStringBytes("field"))}
	values := v.Get("values")
	switch {
	case values == nil || values.Type() == fastjson.TypeNull:
	case values.Type() == fastjson.TypeArray:
		arr, _ := values.Array()
		for _, elem := range arr {
			node.Values = append(node.Values, decodeValue(elem))
		}
	default:
		node.Values = []Tree{decodeValue(values)}
	}
	return node
}

// decodeCount reads a limit attribute. Absent and null mean unset; any
// non-numeric value is kept as NaN, which normalizes to zero.
func decodeCount(v *fastjson.Value) *float64 {
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil
	}
	if v.Type() != fastjson.TypeNumber {
		return Float(math.NaN())
	}
	return Float(v.GetFloat64())
}
