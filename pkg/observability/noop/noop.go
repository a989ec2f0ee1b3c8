// Package noop provides a zero-overhead observability provider for wiring
// that disables instrumentation.
package noop

import (
	"context"

	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// Provider implements observability.Observability with no-op operations.
type Provider struct {
	logger  noopLogger
	metrics noopMetrics
	tracer  noopTracer
}

// NewProvider creates a no-op observability provider.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Logger() observability.Logger   { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.metrics }
func (p *Provider) Tracer() observability.Tracer   { return p.tracer }

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...observability.Field) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...observability.Field)  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...observability.Field)  {}
func (noopLogger) Error(ctx context.Context, msg string, fields ...observability.Field) {}

func (l noopLogger) With(fields ...observability.Field) observability.Logger { return l }

type noopMetrics struct{}

func (noopMetrics) Counter(name, description, unit string) observability.Counter {
	return noopCounter{}
}

func (noopMetrics) Histogram(name, description, unit string) observability.Histogram {
	return noopHistogram{}
}

func (noopMetrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	return noopUpDownCounter{}
}

func (noopMetrics) Gauge(name, description, unit string, callback observability.GaugeCallback) error {
	return nil
}

type noopCounter struct{}

func (noopCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {}
func (noopCounter) Increment(ctx context.Context, fields ...observability.Field)        {}

type noopHistogram struct{}

func (noopHistogram) Record(ctx context.Context, value float64, fields ...observability.Field) {}

type noopUpDownCounter struct{}

func (noopUpDownCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, name string, fields ...observability.Field) (context.Context, observability.Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                        {}
func (noopSpan) SetAttributes(fields ...observability.Field) {}
func (noopSpan) RecordError(err error)                       {}
