// Package schema provides the searchable field catalog for PQL.
//
// The registry is loaded from a CUE document (see catalog.cue) and consumed
// by the planner (validation), the autocomplete engine, and the :fields
// meta-command.
package schema

import (
	"sort"
	"strings"
)

// FieldType classifies how PQL treats a field for comparison operators
// and value checking.
type FieldType int

const (
	FieldString FieldType = iota
	FieldID
	FieldInt
	FieldFloat
	FieldBool
	FieldEnum
)

// String returns the catalog-visible type name.
func (ft FieldType) String() string {
	switch ft {
	case FieldString:
		return "string"
	case FieldID:
		return "id"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// ParseFieldType maps a catalog type name to a FieldType.
func ParseFieldType(s string) (FieldType, bool) {
	switch s {
	case "string":
		return FieldString, true
	case "id":
		return FieldID, true
	case "int":
		return FieldInt, true
	case "float":
		return FieldFloat, true
	case "bool":
		return FieldBool, true
	case "enum":
		return FieldEnum, true
	}
	return FieldString, false
}

// Comparable returns true if the field type supports range operators (gt, ge, lt, le).
func (ft FieldType) Comparable() bool {
	return ft == FieldInt || ft == FieldFloat
}

// FieldMeta describes a single searchable field.
type FieldMeta struct {
	Name        string    // name within the entity (e.g. "gender")
	Qualified   string    // entity-qualified PQL name (e.g. "donor.gender")
	Type        FieldType // logical type for operator validation
	Description string
	EnumValues  []string // non-nil for enum fields
	Facet       bool     // offered by facets(*)
}

// EntitySchema holds the fields of one searchable entity.
type EntitySchema struct {
	Name       string                // PQL name (e.g. "donor")
	Fields     map[string]*FieldMeta // field name -> metadata
	FieldOrder []string              // fields in catalog order
}

// Registry holds the catalog for all entities. It is safe for concurrent
// read access once loading has finished.
type Registry struct {
	entities    map[string]*EntitySchema
	entityOrder []string
	qualified   map[string]*FieldMeta
	bare        map[string][]*FieldMeta
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]*EntitySchema),
		qualified: make(map[string]*FieldMeta),
		bare:      make(map[string][]*FieldMeta),
	}
}

// Register adds an entity schema to the registry.
func (r *Registry) Register(es *EntitySchema) {
	if _, ok := r.entities[es.Name]; !ok {
		r.entityOrder = append(r.entityOrder, es.Name)
	}
	r.entities[es.Name] = es
	for _, name := range es.FieldOrder {
		fm := es.Fields[name]
		if fm.Qualified == "" {
			fm.Qualified = es.Name + "." + name
		}
		r.qualified[fm.Qualified] = fm
		r.bare[name] = append(r.bare[name], fm)
	}
}

// Entity returns the schema for a named entity, or nil if not found.
func (r *Registry) Entity(name string) *EntitySchema {
	return r.entities[name]
}

// EntityNames returns entity names in catalog order.
func (r *Registry) EntityNames() []string {
	return r.entityOrder
}

// AllEntities returns all entity schemas.
func (r *Registry) AllEntities() map[string]*EntitySchema {
	return r.entities
}

// Field resolves a PQL field name. Qualified names ("donor.gender") are
// looked up directly; a bare name ("gender") resolves only when exactly one
// entity defines it.
func (r *Registry) Field(name string) *FieldMeta {
	if fm, ok := r.qualified[name]; ok {
		return fm
	}
	if strings.Contains(name, ".") {
		return nil
	}
	if matches := r.bare[name]; len(matches) == 1 {
		return matches[0]
	}
	return nil
}

// Ambiguous reports the qualified names a bare field name could mean when
// more than one entity defines it.
func (r *Registry) Ambiguous(name string) []string {
	matches := r.bare[name]
	if len(matches) < 2 {
		return nil
	}
	out := make([]string, len(matches))
	for i, fm := range matches {
		out[i] = fm.Qualified
	}
	return out
}

// FieldNames returns every qualified field name, sorted.
func (r *Registry) FieldNames() []string {
	names := make([]string, 0, len(r.qualified))
	for name := range r.qualified {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FacetFields returns the qualified names of facet-enabled fields in catalog
// order.
func (r *Registry) FacetFields() []string {
	var out []string
	for _, ent := range r.entityOrder {
		es := r.entities[ent]
		for _, name := range es.FieldOrder {
			if fm := es.Fields[name]; fm.Facet {
				out = append(out, fm.Qualified)
			}
		}
	}
	return out
}

// EntityOf returns the entity part of a qualified field name.
func EntityOf(qualified string) string {
	if i := strings.IndexByte(qualified, '.'); i > 0 {
		return qualified[:i]
	}
	return ""
}
