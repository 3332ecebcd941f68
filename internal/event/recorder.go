// Package event describes translation calls as events. Surfaces (HTTP, the
// WebSocket REPL, the shell) record one event per facade call; events are
// published to the in-process event bus for downstream consumers.
package event

import (
	"context"
	"time"

	"github.com/dcc-portal/pqlservice/internal/repl/pql"
)

// Publisher sends translation events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt TranslationEvent)
}

// Recorder builds translation events for one surface and publishes them.
// A nil Recorder, or one without a publisher, records nothing.
type Recorder struct {
	source string
	bus    Publisher
}

// NewRecorder creates a recorder tagging events with source.
func NewRecorder(source string) *Recorder {
	return &Recorder{source: source}
}

// SetPublisher attaches an event bus.
func (r *Recorder) SetPublisher(p Publisher) {
	r.bus = p
}

// Record publishes an event for a call that started at started.
func (r *Recorder) Record(ctx context.Context, kind string, tree pql.Tree, err error, started time.Time) {
	if r == nil || r.bus == nil {
		return
	}
	r.bus.Publish(ctx, NewTranslationEvent(kind, r.source, tree, err, started))
}
