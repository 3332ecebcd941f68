package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/repl/autocomplete"
	"github.com/dcc-portal/pqlservice/internal/repl/meta"
	"github.com/dcc-portal/pqlservice/internal/repl/planner"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
	"github.com/dcc-portal/pqlservice/internal/share"
)

// Handler manages WebSocket connections for the REPL.
type Handler struct {
	sessions       *session.Manager
	tr             *pql.Translator
	planner        *planner.Planner
	autocomplete   *autocomplete.Engine
	meta           *meta.Handler
	codec          *share.Codec
	rec            *event.Recorder
	originPatterns []string
}

// Deps holds the collaborators of a Handler. Recorder may be nil.
type Deps struct {
	Sessions       *session.Manager
	Translator     *pql.Translator
	Planner        *planner.Planner
	Autocomplete   *autocomplete.Engine
	Meta           *meta.Handler
	Codec          *share.Codec
	Recorder       *event.Recorder
	OriginPatterns []string // defaults to same-origin only
}

// NewHandler creates a WebSocket handler with all dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		sessions:       d.Sessions,
		tr:             d.Translator,
		planner:        d.Planner,
		autocomplete:   d.Autocomplete,
		meta:           d.Meta,
		codec:          d.Codec,
		rec:            d.Recorder,
		originPatterns: d.OriginPatterns,
	}
}

// ServeHTTP upgrades to WebSocket and runs the message loop. A "session"
// query parameter resumes a session created over REST.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Printf("repl: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sess, resumed := h.session(r.URL.Query().Get("session"))

	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{SessionID: sess.ID, Resumed: resumed},
	})

	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("repl: connection closed: %v", websocket.CloseStatus(err))
			}
			return
		}
		sess.Touch()

		switch msg.Type {
		case "parse", "execute":
			h.handleParse(ctx, conn, sess, msg)
		case "serialize":
			h.handleSerialize(ctx, conn, msg)
		case "validate":
			h.handleValidate(ctx, conn, msg)
		case "share":
			h.handleShare(ctx, conn, msg)
		case "autocomplete":
			h.handleAutocomplete(ctx, conn, msg)
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) session(id string) (*session.Session, bool) {
	if id != "" {
		if sess := h.sessions.Get(id); sess != nil {
			return sess, true
		}
	}
	return h.sessions.Create(), false
}

func (h *Handler) readPQL(ctx context.Context, conn *websocket.Conn, msg ClientMessage) (string, bool) {
	var data PQLData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", fmt.Sprintf("invalid %s data", msg.Type))
		return "", false
	}
	if strings.TrimSpace(data.PQL) == "" {
		h.sendError(ctx, conn, msg.ID, "empty_query", "empty PQL query")
		return "", false
	}
	return data.PQL, true
}

func (h *Handler) handleParse(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	start := time.Now()
	text, ok := h.readPQL(ctx, conn, msg)
	if !ok {
		return
	}

	if cmd, args, isMeta := meta.Parse(text); isMeta {
		result, err := h.meta.Execute(sess, cmd, args)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, "meta_error", err.Error())
			return
		}
		h.send(ctx, conn, ServerMessage{Type: "meta", RequestID: msg.ID, Data: result})
		return
	}

	sess.AddHistory(text)
	res := h.tr.TryParse(text)
	data := ResultData{ParseResult: res}
	var err error
	if res.IsValid {
		data.Canonical = h.tr.ToPQL(res.Result)
	} else {
		err = errors.New(res.ErrorMessage)
	}
	h.rec.Record(ctx, event.KindParse, res.Result, err, start)
	data.Elapsed = time.Since(start).String()
	h.send(ctx, conn, ServerMessage{Type: "result", RequestID: msg.ID, Data: data})
}

func (h *Handler) handleSerialize(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	start := time.Now()
	var data SerializeData
	if err := json.Unmarshal(msg.Data, &data); err != nil || len(data.Tree) == 0 {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid serialize data")
		return
	}
	tree, err := pql.DecodeTree(data.Tree)
	if err != nil {
		h.rec.Record(ctx, event.KindSerialize, nil, err, start)
		h.sendError(ctx, conn, msg.ID, "invalid_tree", err.Error())
		return
	}
	out := h.tr.ToPQL(tree)
	h.rec.Record(ctx, event.KindSerialize, tree, nil, start)
	h.send(ctx, conn, ServerMessage{Type: "pql", RequestID: msg.ID, Data: PQLResultData{PQL: out}})
}

func (h *Handler) handleValidate(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	start := time.Now()
	text, ok := h.readPQL(ctx, conn, msg)
	if !ok {
		return
	}
	tree, err := h.tr.FromPQL(text)
	if err != nil {
		h.rec.Record(ctx, event.KindValidate, nil, err, start)
		h.sendError(ctx, conn, msg.ID, "parse_error", err.Error())
		return
	}
	plan, err := h.planner.Plan(tree)
	h.rec.Record(ctx, event.KindValidate, tree, err, start)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "plan_error", err.Error())
		return
	}
	h.send(ctx, conn, ServerMessage{
		Type:      "plan",
		RequestID: msg.ID,
		Data:      PlanData{Canonical: h.tr.ToPQL(tree), Plan: plan},
	})
}

func (h *Handler) handleShare(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	start := time.Now()
	text, ok := h.readPQL(ctx, conn, msg)
	if !ok {
		return
	}
	tree, err := h.tr.FromPQL(text)
	if err != nil {
		h.rec.Record(ctx, event.KindShare, nil, err, start)
		h.sendError(ctx, conn, msg.ID, "parse_error", err.Error())
		return
	}
	canonical := h.tr.ToPQL(tree)
	token, err := h.codec.Encode(canonical)
	h.rec.Record(ctx, event.KindShare, tree, err, start)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "share_error", err.Error())
		return
	}
	h.send(ctx, conn, ServerMessage{Type: "share", RequestID: msg.ID, Data: ShareData{Token: token, PQL: canonical}})
}

func (h *Handler) handleAutocomplete(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	var data AutocompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid autocomplete data")
		return
	}

	items := h.autocomplete.Complete(data.PQL, data.Cursor)
	if items == nil {
		items = []autocomplete.CompletionItem{}
	}
	h.send(ctx, conn, ServerMessage{
		Type:      "completions",
		RequestID: msg.ID,
		Data:      CompletionsData{Items: items},
	})
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		log.Printf("repl: write error: %v", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
