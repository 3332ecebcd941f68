// Package wire defines the WebSocket protocol for the REPL.
package wire

import (
	"encoding/json"

	"github.com/dcc-portal/pqlservice/internal/repl/autocomplete"
	"github.com/dcc-portal/pqlservice/internal/repl/planner"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "parse", "serialize", "validate", "share", "autocomplete", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// PQLData is the payload for "parse", "validate" and "share" messages.
// A "parse" payload starting with ':' runs a meta-command.
type PQLData struct {
	PQL string `json:"pql"`
}

// SerializeData is the payload for "serialize" messages.
type SerializeData struct {
	Tree json.RawMessage `json:"tree"`
}

// AutocompleteData is the payload for "autocomplete" messages.
type AutocompleteData struct {
	PQL    string `json:"pql"`
	Cursor int    `json:"cursor"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "result", "pql", "plan", "share", "meta", "completions", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// ResultData answers a "parse" message.
type ResultData struct {
	pql.ParseResult
	Canonical string `json:"canonical,omitempty"`
	Elapsed   string `json:"elapsed"`
}

// PQLResultData answers a "serialize" message.
type PQLResultData struct {
	PQL string `json:"pql"`
}

// PlanData answers a "validate" message.
type PlanData struct {
	Canonical string             `json:"canonical"`
	Plan      *planner.QueryPlan `json:"plan"`
}

// ShareData answers a "share" message.
type ShareData struct {
	Token string `json:"token"`
	PQL   string `json:"pql"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompletionsData carries autocomplete suggestions.
type CompletionsData struct {
	Items []autocomplete.CompletionItem `json:"items"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
	Resumed   bool   `json:"resumed,omitempty"`
}
