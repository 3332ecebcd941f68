// Package usage keeps in-memory translation statistics: how often each kind
// of call succeeds or fails, and which operators and fields queries use.
package usage

import (
	"sort"
	"sync"
	"time"

	"github.com/dcc-portal/pqlservice/internal/event"
)

// maxRecentErrors bounds the recent error ring.
const maxRecentErrors = 20

// Tracker aggregates translation events. It is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	started  time.Time
	calls    map[string]int
	failures map[string]int
	ops      map[string]int
	fields   map[string]int
	sources  map[string]int
	recent   []RecentError
}

// RecentError is a failed call kept for the stats endpoint.
type RecentError struct {
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Count is a name with its number of occurrences.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats is a point-in-time copy of the tracker.
type Stats struct {
	Since        time.Time      `json:"since"`
	Calls        map[string]int `json:"calls"`
	Failures     map[string]int `json:"failures"`
	Sources      map[string]int `json:"sources"`
	TopOps       []Count        `json:"top_ops"`
	TopFields    []Count        `json:"top_fields"`
	RecentErrors []RecentError  `json:"recent_errors"`
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		started:  time.Now(),
		calls:    make(map[string]int),
		failures: make(map[string]int),
		ops:      make(map[string]int),
		fields:   make(map[string]int),
		sources:  make(map[string]int),
	}
}

// Record adds one event.
func (t *Tracker) Record(evt event.TranslationEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls[evt.Kind]++
	t.sources[evt.Source]++
	if !evt.OK {
		t.failures[evt.Kind]++
		t.recent = append(t.recent, RecentError{
			Kind:       evt.Kind,
			Source:     evt.Source,
			Error:      evt.Error,
			OccurredAt: evt.OccurredAt,
		})
		if len(t.recent) > maxRecentErrors {
			t.recent = t.recent[len(t.recent)-maxRecentErrors:]
		}
	}
	for _, op := range evt.Ops {
		t.ops[op]++
	}
	for _, f := range evt.Fields {
		t.fields[f]++
	}
}

// Snapshot returns the current statistics with the top n operators and
// fields (all of them when n <= 0). Recent errors are newest first.
func (t *Tracker) Snapshot(n int) Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	recent := make([]RecentError, len(t.recent))
	for i, e := range t.recent {
		recent[len(t.recent)-1-i] = e
	}
	return Stats{
		Since:        t.started,
		Calls:        copyMap(t.calls),
		Failures:     copyMap(t.failures),
		Sources:      copyMap(t.sources),
		TopOps:       top(t.ops, n),
		TopFields:    top(t.fields, n),
		RecentErrors: recent,
	}
}

// top sorts counts descending, ties by name.
func top(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for name, c := range m {
		out = append(out, Count{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func copyMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
