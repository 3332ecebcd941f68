package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed catalog.cue
var defaultCatalog []byte

// fieldDef mirrors #Field in catalog.cue.
type fieldDef struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Facet       bool     `json:"facet"`
	Values      []string `json:"values"`
}

// LoadCatalog compiles a CUE catalog document and builds a registry from its
// entities. The document must be concrete after unification.
func LoadCatalog(filename string, src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog: %w", err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}

	entities := val.LookupPath(cue.ParsePath("entities"))
	if !entities.Exists() {
		return nil, fmt.Errorf("catalog %s: no entities", filename)
	}

	reg := NewRegistry()
	iter, err := entities.Fields()
	if err != nil {
		return nil, fmt.Errorf("reading entities: %w", err)
	}
	for iter.Next() {
		es, err := parseEntity(iter.Selector().String(), iter.Value())
		if err != nil {
			return nil, err
		}
		reg.Register(es)
	}
	if len(reg.EntityNames()) == 0 {
		return nil, fmt.Errorf("catalog %s: no entities", filename)
	}
	return reg, nil
}

// LoadCatalogFile reads and loads a catalog from disk.
func LoadCatalogFile(path string) (*Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return LoadCatalog(path, src)
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return LoadCatalog("catalog.cue", defaultCatalog)
})

// DefaultRegistry returns the registry built from the embedded catalog.
// It panics if the embedded catalog is invalid.
func DefaultRegistry() *Registry {
	reg, err := defaultRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

func parseEntity(name string, v cue.Value) (*EntitySchema, error) {
	es := &EntitySchema{
		Name:   name,
		Fields: make(map[string]*FieldMeta),
	}

	fields, err := v.LookupPath(cue.ParsePath("fields")).Fields()
	if err != nil {
		return nil, fmt.Errorf("entity %s: reading fields: %w", name, err)
	}
	for fields.Next() {
		label := fields.Selector().String()
		var def fieldDef
		if err := fields.Value().Decode(&def); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", name, label, err)
		}
		ft, ok := ParseFieldType(def.Type)
		if !ok {
			return nil, fmt.Errorf("field %s.%s: unknown type %q", name, label, def.Type)
		}
		es.Fields[label] = &FieldMeta{
			Name:        label,
			Qualified:   name + "." + label,
			Type:        ft,
			Description: def.Description,
			EnumValues:  def.Values,
			Facet:       def.Facet,
		}
		es.FieldOrder = append(es.FieldOrder, label)
	}
	return es, nil
}
