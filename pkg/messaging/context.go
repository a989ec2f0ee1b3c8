package messaging

import (
	"time"
)

// ProcessingContext is the per-dispatch record owned by the pipeline for the
// duration of a single dispatch. It is created at dispatch entry and must not
// be retained after the dispatch returns.
//
// Cancellation travels on the context.Context passed alongside the message;
// ProcessingContext carries everything else.
type ProcessingContext struct {
	// Attempt is the 0-based attempt number for the current invocation.
	Attempt int

	// RetryCount is the number of retries performed so far.
	RetryCount int

	// Deadline is the absolute instant processing must finish by.
	// Zero means no deadline.
	Deadline time.Time

	// Component names the subsystem that initiated the dispatch
	// (dispatcher, outbox, inbox, scheduler, queue). Used by the
	// dead-letter store.
	Component string

	// TraceID and SpanID carry trace identifiers when tracing is enabled.
	TraceID string
	SpanID  string

	items map[string]any
}

// NewProcessingContext creates an empty processing context.
func NewProcessingContext() *ProcessingContext {
	return &ProcessingContext{}
}

// Set stores an arbitrary typed context item under key.
func (pc *ProcessingContext) Set(key string, value any) {
	if pc.items == nil {
		pc.items = make(map[string]any)
	}
	pc.items[key] = value
}

// Get returns the context item stored under key.
func (pc *ProcessingContext) Get(key string) (any, bool) {
	v, ok := pc.items[key]
	return v, ok
}

// Expired reports whether the deadline, if any, has passed.
func (pc *ProcessingContext) Expired(now time.Time) bool {
	return !pc.Deadline.IsZero() && now.After(pc.Deadline)
}
