package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/repl/facet"
	"github.com/dcc-portal/pqlservice/internal/repl/planner"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/share"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

// PQLHandler serves the translation facade over HTTP.
type PQLHandler struct {
	tr       *pql.Translator
	registry *schema.Registry
	planner  *planner.Planner
	codec    *share.Codec
	tracker  *usage.Tracker
	rec      *event.Recorder
}

// NewPQLHandler creates a handler. rec may be nil.
func NewPQLHandler(tr *pql.Translator, registry *schema.Registry, codec *share.Codec, tracker *usage.Tracker, rec *event.Recorder) *PQLHandler {
	return &PQLHandler{
		tr:       tr,
		registry: registry,
		planner:  planner.New(registry),
		codec:    codec,
		tracker:  tracker,
		rec:      rec,
	}
}

// Routes mounts the handler's endpoints.
func (h *PQLHandler) Routes(r chi.Router) {
	r.Post("/parse", h.Parse)
	r.Post("/serialize", h.Serialize)
	r.Post("/validate", h.Validate)
	r.Post("/terms", h.Terms)
	r.Post("/share", h.CreateShare)
	r.Get("/share/{token}", h.ResolveShare)
	r.Get("/fields", h.Fields)
	r.Get("/stats", h.Stats)
}

type pqlRequest struct {
	PQL string `json:"pql"`
}

type parseResponse struct {
	pql.ParseResult
	Canonical string `json:"canonical,omitempty"`
}

type serializeResponse struct {
	PQL string `json:"pql"`
}

type validateResponse struct {
	Valid     bool               `json:"valid"`
	Canonical string             `json:"canonical,omitempty"`
	Plan      *planner.QueryPlan `json:"plan,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type termsRequest struct {
	PQL    string `json:"pql"`
	Action string `json:"action"` // add, remove, clear, list
	Field  string `json:"field"`
	Value  any    `json:"value"`
}

type termsResponse struct {
	PQL   string       `json:"pql"`
	Terms []facet.Term `json:"terms"`
}

type shareResponse struct {
	Token string   `json:"token,omitempty"`
	PQL   string   `json:"pql"`
	Tree  pql.Tree `json:"result,omitempty"`
}

// ── parse / serialize / validate ────────────────────────────────────────────

// Parse handles POST /api/pql/parse. Invalid PQL is not an HTTP error: the
// result reports it.
func (h *PQLHandler) Parse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req pqlRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.tr.TryParse(req.PQL)
	resp := parseResponse{ParseResult: res}
	var err error
	if res.IsValid {
		resp.Canonical = h.tr.ToPQL(res.Result)
	} else {
		err = errors.New(res.ErrorMessage)
	}
	h.rec.Record(r.Context(), event.KindParse, res.Result, err, start)
	writeJSON(w, http.StatusOK, resp)
}

// Serialize handles POST /api/pql/serialize. The body is a parse tree in
// its JSON shape.
func (h *PQLHandler) Serialize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	tree, err := pql.DecodeTree(data)
	if err != nil {
		h.rec.Record(r.Context(), event.KindSerialize, nil, err, start)
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid parse tree: "+err.Error())
		return
	}
	out := h.tr.ToPQL(tree)
	h.rec.Record(r.Context(), event.KindSerialize, tree, nil, start)
	writeJSON(w, http.StatusOK, serializeResponse{PQL: out})
}

// Validate handles POST /api/pql/validate: parse, then check against the
// field catalog.
func (h *PQLHandler) Validate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req pqlRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tree, err := h.tr.FromPQL(req.PQL)
	if err != nil {
		h.rec.Record(r.Context(), event.KindValidate, nil, err, start)
		writeJSON(w, http.StatusOK, validateResponse{Error: err.Error()})
		return
	}
	plan, err := h.planner.Plan(tree)
	h.rec.Record(r.Context(), event.KindValidate, tree, err, start)
	if err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:     true,
		Canonical: h.tr.ToPQL(tree),
		Plan:      plan,
	})
}

// ── terms ───────────────────────────────────────────────────────────────────

// Terms handles POST /api/pql/terms: facet-panel edits of a query.
func (h *PQLHandler) Terms(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req termsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var tree pql.Tree
	if req.PQL != "" {
		var err error
		tree, err = h.tr.FromPQL(req.PQL)
		if err != nil {
			h.rec.Record(r.Context(), event.KindTerms, nil, err, start)
			writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
			return
		}
	}
	q := facet.Decompose(tree)

	if req.Action != "list" {
		field, ok := h.resolveField(w, req.Field)
		if !ok {
			return
		}
		switch req.Action {
		case "add", "remove":
			value, ok := literalFromJSON(req.Value)
			if !ok {
				writeError(w, http.StatusBadRequest, "INVALID_VALUE",
					fmt.Sprintf("value must be a string, number or boolean, got %T", req.Value))
				return
			}
			if req.Action == "add" {
				q.AddTerm(field, value)
			} else {
				q.RemoveTerm(field, value)
			}
		case "clear":
			q.RemoveField(field)
		default:
			writeError(w, http.StatusBadRequest, "INVALID_ACTION",
				fmt.Sprintf("unknown action %q (expected add, remove, clear or list)", req.Action))
			return
		}
	}

	out := q.Tree()
	h.rec.Record(r.Context(), event.KindTerms, out, nil, start)
	terms := q.Terms()
	if terms == nil {
		terms = []facet.Term{}
	}
	writeJSON(w, http.StatusOK, termsResponse{PQL: h.tr.ToPQL(out), Terms: terms})
}

func (h *PQLHandler) resolveField(w http.ResponseWriter, name string) (string, bool) {
	if name == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "field is required")
		return "", false
	}
	if fm := h.registry.Field(name); fm != nil {
		return fm.Qualified, true
	}
	msg := fmt.Sprintf("unknown field '%s'", name)
	if s := pql.SuggestFrom(name, h.registry.FieldNames(), 3); s != "" {
		msg += " (" + s + ")"
	}
	writeError(w, http.StatusBadRequest, "UNKNOWN_FIELD", msg)
	return "", false
}

// literalFromJSON converts a decoded JSON scalar to a literal.
func literalFromJSON(v any) (pql.Literal, bool) {
	switch x := v.(type) {
	case string:
		return pql.String(x), true
	case float64:
		return pql.Number(x), true
	case bool:
		return pql.Bool(x), true
	}
	return pql.Literal{}, false
}

// ── share ───────────────────────────────────────────────────────────────────

// CreateShare handles POST /api/pql/share. Only valid PQL can be shared; the
// token carries its canonical form.
func (h *PQLHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req pqlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tree, err := h.tr.FromPQL(req.PQL)
	if err != nil {
		h.rec.Record(r.Context(), event.KindShare, nil, err, start)
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}
	canonical := h.tr.ToPQL(tree)
	token, err := h.codec.Encode(canonical)
	h.rec.Record(r.Context(), event.KindShare, tree, err, start)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, shareResponse{Token: token, PQL: canonical})
}

// ResolveShare handles GET /api/pql/share/{token}.
func (h *PQLHandler) ResolveShare(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	text, err := h.codec.Decode(chi.URLParam(r, "token"))
	if err != nil {
		h.rec.Record(r.Context(), event.KindShare, nil, err, start)
		if errors.Is(err, share.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", err.Error())
		return
	}
	tree := h.tr.ParseOrDefault(text, nil)
	h.rec.Record(r.Context(), event.KindShare, tree, nil, start)
	writeJSON(w, http.StatusOK, shareResponse{PQL: text, Tree: tree})
}

// ── catalog / stats ─────────────────────────────────────────────────────────

type fieldResponse struct {
	Name        string   `json:"name"`
	Qualified   string   `json:"qualified"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Values      []string `json:"values,omitempty"`
	Facet       bool     `json:"facet"`
}

type entityResponse struct {
	Name   string          `json:"name"`
	Fields []fieldResponse `json:"fields"`
}

// Fields handles GET /api/pql/fields[?entity=name].
func (h *PQLHandler) Fields(w http.ResponseWriter, r *http.Request) {
	names := h.registry.EntityNames()
	if ent := r.URL.Query().Get("entity"); ent != "" {
		if h.registry.Entity(ent) == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown entity '%s'", ent))
			return
		}
		names = []string{ent}
	}

	out := make([]entityResponse, 0, len(names))
	for _, name := range names {
		es := h.registry.Entity(name)
		er := entityResponse{Name: name, Fields: make([]fieldResponse, 0, len(es.FieldOrder))}
		for _, fname := range es.FieldOrder {
			fm := es.Fields[fname]
			er.Fields = append(er.Fields, fieldResponse{
				Name:        fm.Name,
				Qualified:   fm.Qualified,
				Type:        fm.Type.String(),
				Description: fm.Description,
				Values:      fm.EnumValues,
				Facet:       fm.Facet,
			})
		}
		out = append(out, er)
	}
	writeJSON(w, http.StatusOK, out)
}

// Stats handles GET /api/pql/stats[?top=n].
func (h *PQLHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Snapshot(queryInt(r, "top", 10)))
}
