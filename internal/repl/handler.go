// Package repl provides the WebSocket-based REPL for PQL queries.
package repl

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/repl/autocomplete"
	"github.com/dcc-portal/pqlservice/internal/repl/meta"
	"github.com/dcc-portal/pqlservice/internal/repl/planner"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
	"github.com/dcc-portal/pqlservice/internal/repl/wire"
	"github.com/dcc-portal/pqlservice/internal/share"
)

// Options holds what the REPL routes are built from. Recorder may be nil.
type Options struct {
	Registry       *schema.Registry
	Translator     *pql.Translator
	Sessions       *session.Manager
	Codec          *share.Codec
	Recorder       *event.Recorder
	OriginPatterns []string
}

// RegisterRoutes registers REPL HTTP and WebSocket routes on the given router.
func RegisterRoutes(r chi.Router, opts Options) {
	wsHandler := wire.NewHandler(wire.Deps{
		Sessions:       opts.Sessions,
		Translator:     opts.Translator,
		Planner:        planner.New(opts.Registry),
		Autocomplete:   autocomplete.New(opts.Registry),
		Meta:           meta.New(opts.Registry),
		Codec:          opts.Codec,
		Recorder:       opts.Recorder,
		OriginPatterns: opts.OriginPatterns,
	})

	r.Route("/api/repl", func(r chi.Router) {
		// WebSocket endpoint
		r.Get("/ws", wsHandler.ServeHTTP)

		// Field catalog (REST, for inspector/tooling)
		r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(catalogView(opts.Registry))
		})

		// Session create endpoint; the id can be passed to /ws?session=
		r.Post("/session", func(w http.ResponseWriter, r *http.Request) {
			sess := opts.Sessions.Create()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(sess)
		})
	})
}

type schemaField struct {
	Type   string   `json:"type"`
	Values []string `json:"values,omitempty"`
	Facet  bool     `json:"facet,omitempty"`
}

// catalogView maps entity -> qualified field -> type info.
func catalogView(registry *schema.Registry) map[string]map[string]schemaField {
	out := make(map[string]map[string]schemaField)
	for name, es := range registry.AllEntities() {
		fields := make(map[string]schemaField, len(es.Fields))
		for _, fm := range es.Fields {
			fields[fm.Qualified] = schemaField{Type: fm.Type.String(), Values: fm.EnumValues, Facet: fm.Facet}
		}
		out[name] = fields
	}
	return out
}
