package eventbus

import (
	"context"
	"log"

	"github.com/dcc-portal/pqlservice/internal/event"
)

// LogConsumer logs failed translations, and every translation when verbose.
type LogConsumer struct {
	verbose bool
}

func NewLogConsumer(verbose bool) *LogConsumer { return &LogConsumer{verbose: verbose} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.TranslationEvent) error {
	if evt.OK {
		if c.verbose {
			log.Printf("event: %s via %s ok in %s ops=%v fields=%v",
				evt.Kind, evt.Source, evt.Duration, evt.Ops, evt.Fields)
		}
		return nil
	}
	log.Printf("event: %s via %s failed in %s: %s", evt.Kind, evt.Source, evt.Duration, evt.Error)
	return nil
}
