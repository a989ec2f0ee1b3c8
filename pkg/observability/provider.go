package observability

import "context"

// NewProvider assembles an Observability from individual parts, so a zap
// logger can be combined with a prometheus metrics backend. Nil parts are
// replaced by discarding implementations.
func NewProvider(logger Logger, metrics Metrics, tracer Tracer) Observability {
	if logger == nil {
		logger = discardLogger{}
	}
	if metrics == nil {
		metrics = discardMetrics{}
	}
	if tracer == nil {
		tracer = discardTracer{}
	}
	return &provider{logger: logger, metrics: metrics, tracer: tracer}
}

type provider struct {
	logger  Logger
	metrics Metrics
	tracer  Tracer
}

func (p *provider) Logger() Logger   { return p.logger }
func (p *provider) Metrics() Metrics { return p.metrics }
func (p *provider) Tracer() Tracer   { return p.tracer }

type discardLogger struct{}

func (discardLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (discardLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (discardLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (discardLogger) Error(ctx context.Context, msg string, fields ...Field) {}

func (l discardLogger) With(fields ...Field) Logger { return l }

type discardMetrics struct{}

func (discardMetrics) Counter(name, description, unit string) Counter { return discardCounter{} }

func (discardMetrics) Histogram(name, description, unit string) Histogram {
	return discardHistogram{}
}

func (discardMetrics) UpDownCounter(name, description, unit string) UpDownCounter {
	return discardCounter{}
}

func (discardMetrics) Gauge(name, description, unit string, callback GaugeCallback) error {
	return nil
}

type discardCounter struct{}

func (discardCounter) Add(ctx context.Context, value int64, fields ...Field) {}
func (discardCounter) Increment(ctx context.Context, fields ...Field)        {}

type discardHistogram struct{}

func (discardHistogram) Record(ctx context.Context, value float64, fields ...Field) {}

type discardTracer struct{}

func (discardTracer) Start(ctx context.Context, name string, fields ...Field) (context.Context, Span) {
	return ctx, discardSpan{}
}

type discardSpan struct{}

func (discardSpan) End()                          {}
func (discardSpan) SetAttributes(fields ...Field) {}
func (discardSpan) RecordError(err error)         {}
