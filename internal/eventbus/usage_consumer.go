package eventbus

import (
	"context"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

// UsageConsumer feeds translation events into a usage tracker.
type UsageConsumer struct {
	tracker *usage.Tracker
}

// NewUsageConsumer creates a consumer that records into tracker.
func NewUsageConsumer(tracker *usage.Tracker) *UsageConsumer {
	return &UsageConsumer{tracker: tracker}
}

// HandleEvent records the event.
func (c *UsageConsumer) HandleEvent(_ context.Context, evt event.TranslationEvent) error {
	c.tracker.Record(evt)
	return nil
}
