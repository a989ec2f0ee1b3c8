// Package memory provides an observability provider that records everything
// in memory so tests and health endpoints can inspect it.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// Provider implements observability.Observability backed by in-memory
// recorders.
type Provider struct {
	logger  *Recorder
	metrics *MetricsRecorder
	tracer  *TracerRecorder
}

// NewProvider creates a recording observability provider.
func NewProvider() *Provider {
	return &Provider{
		logger:  &Recorder{},
		metrics: NewMetricsRecorder(),
		tracer:  &TracerRecorder{},
	}
}

func (p *Provider) Logger() observability.Logger   { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.metrics }
func (p *Provider) Tracer() observability.Tracer   { return p.tracer }

// LogRecorder exposes the captured log entries.
func (p *Provider) LogRecorder() *Recorder { return p.logger }

// MetricsRecorder exposes the captured metric values.
func (p *Provider) MetricsRecorder() *MetricsRecorder { return p.metrics }

// LogEntry is one captured log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  []observability.Field
	At      time.Time
}

// Recorder captures log entries for assertions.
type Recorder struct {
	mu      sync.RWMutex
	with    []observability.Field
	entries []LogEntry
	parent  *Recorder
}

func (r *Recorder) log(level, msg string, fields []observability.Field) {
	root := r
	for root.parent != nil {
		root = root.parent
	}

	all := make([]observability.Field, 0, len(r.with)+len(fields))
	all = append(all, r.with...)
	all = append(all, fields...)

	root.mu.Lock()
	root.entries = append(root.entries, LogEntry{Level: level, Message: msg, Fields: all, At: time.Now()})
	root.mu.Unlock()
}

func (r *Recorder) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	r.log("debug", msg, fields)
}

func (r *Recorder) Info(ctx context.Context, msg string, fields ...observability.Field) {
	r.log("info", msg, fields)
}

func (r *Recorder) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	r.log("warn", msg, fields)
}

func (r *Recorder) Error(ctx context.Context, msg string, fields ...observability.Field) {
	r.log("error", msg, fields)
}

func (r *Recorder) With(fields ...observability.Field) observability.Logger {
	child := &Recorder{parent: r}
	child.with = append(child.with, r.with...)
	child.with = append(child.with, fields...)
	return child
}

// Entries returns a copy of the captured log entries.
func (r *Recorder) Entries() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// MetricsRecorder captures counter, histogram and gauge activity keyed by
// instrument name.
type MetricsRecorder struct {
	mu         sync.RWMutex
	counters   map[string]int64
	histograms map[string][]float64
	gauges     map[string]observability.GaugeCallback
}

// NewMetricsRecorder creates an empty metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{
		counters:   make(map[string]int64),
		histograms: make(map[string][]float64),
		gauges:     make(map[string]observability.GaugeCallback),
	}
}

func (m *MetricsRecorder) Counter(name, description, unit string) observability.Counter {
	return &memCounter{rec: m, name: name}
}

func (m *MetricsRecorder) Histogram(name, description, unit string) observability.Histogram {
	return &memHistogram{rec: m, name: name}
}

func (m *MetricsRecorder) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	return &memCounter{rec: m, name: name}
}

func (m *MetricsRecorder) Gauge(name, description, unit string, callback observability.GaugeCallback) error {
	m.mu.Lock()
	m.gauges[name] = callback
	m.mu.Unlock()
	return nil
}

// CounterValue returns the current value of a counter, optionally narrowed
// by field values appended to the instrument name by the caller.
func (m *MetricsRecorder) CounterValue(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// HistogramValues returns the recorded samples for a histogram.
func (m *MetricsRecorder) HistogramValues(name string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.histograms[name]))
	copy(out, m.histograms[name])
	return out
}

// GaugeValue observes a registered gauge.
func (m *MetricsRecorder) GaugeValue(ctx context.Context, name string) (float64, bool) {
	m.mu.RLock()
	callback, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return callback(ctx), true
}

type memCounter struct {
	rec  *MetricsRecorder
	name string
}

func (c *memCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	c.rec.mu.Lock()
	c.rec.counters[keyed(c.name, fields)] += value
	c.rec.mu.Unlock()
}

func (c *memCounter) Increment(ctx context.Context, fields ...observability.Field) {
	c.Add(ctx, 1, fields...)
}

type memHistogram struct {
	rec  *MetricsRecorder
	name string
}

func (h *memHistogram) Record(ctx context.Context, value float64, fields ...observability.Field) {
	h.rec.mu.Lock()
	key := keyed(h.name, fields)
	h.rec.histograms[key] = append(h.rec.histograms[key], value)
	h.rec.mu.Unlock()
}

// keyed folds string field values into the instrument key so tests can
// assert per-label counts without a full label model.
func keyed(name string, fields []observability.Field) string {
	for _, f := range fields {
		if s, ok := f.Value.(string); ok {
			name += "{" + f.Key + "=" + s + "}"
		}
	}
	return name
}

// SpanRecord is one captured span.
type SpanRecord struct {
	Name   string
	Fields []observability.Field
	Err    error
	Ended  bool
}

// TracerRecorder captures spans for assertions.
type TracerRecorder struct {
	mu    sync.RWMutex
	spans []*SpanRecord
}

func (t *TracerRecorder) Start(ctx context.Context, name string, fields ...observability.Field) (context.Context, observability.Span) {
	record := &SpanRecord{Name: name, Fields: fields}
	t.mu.Lock()
	t.spans = append(t.spans, record)
	t.mu.Unlock()
	return ctx, &memSpan{tracer: t, record: record}
}

// Spans returns the captured spans.
func (t *TracerRecorder) Spans() []*SpanRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*SpanRecord, len(t.spans))
	copy(out, t.spans)
	return out
}

type memSpan struct {
	tracer *TracerRecorder
	record *SpanRecord
}

func (s *memSpan) End() {
	s.tracer.mu.Lock()
	s.record.Ended = true
	s.tracer.mu.Unlock()
}

func (s *memSpan) SetAttributes(fields ...observability.Field) {
	s.tracer.mu.Lock()
	s.record.Fields = append(s.record.Fields, fields...)
	s.tracer.mu.Unlock()
}

func (s *memSpan) RecordError(err error) {
	s.tracer.mu.Lock()
	s.record.Err = err
	s.tracer.mu.Unlock()
}
