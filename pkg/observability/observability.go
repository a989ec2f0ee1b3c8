// Package observability is the instrumentation facade the framework components
// log and record metrics through. Providers live in subpackages; components
// depend only on these interfaces.
package observability

import (
	"context"
	"time"
)

// Observability bundles the instrumentation surfaces. This is the only
// observability type framework components accept.
type Observability interface {
	Logger() Logger
	Metrics() Metrics
	Tracer() Tracer
}

// Field is a key-value pair for structured logging and span attributes.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field.
func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value type.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger provides structured, leveled logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With creates a child logger whose entries always carry fields.
	With(fields ...Field) Logger
}

// Metrics provides metric instruments.
type Metrics interface {
	// Counter returns a monotonically increasing counter.
	Counter(name, description, unit string) Counter

	// Histogram returns a value-distribution instrument.
	Histogram(name, description, unit string) Histogram

	// UpDownCounter returns a counter that can decrease.
	UpDownCounter(name, description, unit string) UpDownCounter

	// Gauge registers an asynchronous gauge observed via callback.
	Gauge(name, description, unit string, callback GaugeCallback) error
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Add(ctx context.Context, value int64, fields ...Field)
	Increment(ctx context.Context, fields ...Field)
}

// Histogram records a distribution of values.
type Histogram interface {
	Record(ctx context.Context, value float64, fields ...Field)
}

// UpDownCounter is a metric that can increase and decrease.
type UpDownCounter interface {
	Add(ctx context.Context, value int64, fields ...Field)
}

// GaugeCallback returns the current value for an asynchronous gauge.
type GaugeCallback func(ctx context.Context) float64

// Tracer creates spans around message processing stages.
type Tracer interface {
	Start(ctx context.Context, name string, fields ...Field) (context.Context, Span)
}

// Span is an active trace span.
type Span interface {
	End()
	SetAttributes(fields ...Field)
	RecordError(err error)
}
