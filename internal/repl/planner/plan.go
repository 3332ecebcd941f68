// Package planner validates PQL parse trees against the field catalog and
// summarizes them as QueryPlans for UI callers.
package planner

// QueryPlan is the validated, resolved summary of a PQL query.
type QueryPlan struct {
	Entities []string     `json:"entities"`          // entities touched, in first-use order
	Filters  []FilterSpec `json:"filters,omitempty"` // conjunction of top-level filters
	Select   []string     `json:"select,omitempty"`  // qualified field names; "*" for all
	Facets   []string     `json:"facets,omitempty"`  // qualified facet names, "*" expanded
	OrderBy  []OrderSpec  `json:"orderBy,omitempty"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	Count    bool         `json:"count"`
	// CountField is set when count() carries trailing parameters.
	CountField string `json:"countField,omitempty"`
}

// FilterSpec is a resolved filter. Leaf filters carry Field and Values;
// "and", "or" and "nested" groups carry Clauses.
type FilterSpec struct {
	Op      string       `json:"op"`
	Field   string       `json:"field,omitempty"` // qualified name, or the nested path
	Values  []any        `json:"values,omitempty"`
	Negated bool         `json:"negated,omitempty"`
	Clauses []FilterSpec `json:"clauses,omitempty"`
}

// OrderSpec is a resolved ordering specification.
type OrderSpec struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}
