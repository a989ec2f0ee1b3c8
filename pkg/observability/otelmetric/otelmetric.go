// Package otelmetric adapts the OpenTelemetry metric API to the
// observability Metrics interface.
package otelmetric

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// Metrics implements observability.Metrics on an OpenTelemetry meter.
type Metrics struct {
	meter metric.Meter
}

// New wraps an OpenTelemetry meter.
func New(meter metric.Meter) *Metrics {
	return &Metrics{meter: meter}
}

func (m *Metrics) Counter(name, description, unit string) observability.Counter {
	instrument, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return discardCounter{}
	}
	return &otelCounter{counter: instrument}
}

func (m *Metrics) Histogram(name, description, unit string) observability.Histogram {
	instrument, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return discardHistogram{}
	}
	return &otelHistogram{histogram: instrument}
}

func (m *Metrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	instrument, err := m.meter.Int64UpDownCounter(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return discardCounter{}
	}
	return &otelUpDown{counter: instrument}
}

func (m *Metrics) Gauge(name, description, unit string, callback observability.GaugeCallback) error {
	_, err := m.meter.Float64ObservableGauge(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
		metric.WithFloat64Callback(func(ctx context.Context, observer metric.Float64Observer) error {
			observer.Observe(callback(ctx))
			return nil
		}),
	)
	return err
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	if len(fields) == 0 {
		c.counter.Add(ctx, value)
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(toAttributes(fields)...))
}

func (c *otelCounter) Increment(ctx context.Context, fields ...observability.Field) {
	c.Add(ctx, 1, fields...)
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, fields ...observability.Field) {
	if len(fields) == 0 {
		h.histogram.Record(ctx, value)
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(toAttributes(fields)...))
}

type otelUpDown struct {
	counter metric.Int64UpDownCounter
}

func (u *otelUpDown) Add(ctx context.Context, value int64, fields ...observability.Field) {
	if len(fields) == 0 {
		u.counter.Add(ctx, value)
		return
	}
	u.counter.Add(ctx, value, metric.WithAttributes(toAttributes(fields)...))
}

func toAttributes(fields []observability.Field) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, toAttribute(f))
	}
	return attrs
}

func toAttribute(f observability.Field) attribute.KeyValue {
	switch v := f.Value.(type) {
	case string:
		return attribute.String(f.Key, v)
	case int:
		return attribute.Int(f.Key, v)
	case int64:
		return attribute.Int64(f.Key, v)
	case float64:
		return attribute.Float64(f.Key, v)
	case bool:
		return attribute.Bool(f.Key, v)
	case time.Duration:
		return attribute.String(f.Key, v.String())
	case error:
		return attribute.String(f.Key, v.Error())
	default:
		return attribute.String(f.Key, fmt.Sprintf("%v", v))
	}
}

// discard instruments absorb recordings when instrument creation failed.
type discardCounter struct{}

func (discardCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {}
func (discardCounter) Increment(ctx context.Context, fields ...observability.Field)        {}

type discardHistogram struct{}

func (discardHistogram) Record(ctx context.Context, value float64, fields ...observability.Field) {}
