// Package prom adapts prometheus/client_golang to the observability Metrics
// interface. Label keys are fixed at first use of an instrument, matching how
// the framework emits a stable field set per metric name.
package prom

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// Metrics implements observability.Metrics on a prometheus registry.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	updowns    map[string]*prometheus.GaugeVec
}

// New creates a Metrics facade registering instruments on registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry, namespace string) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Metrics{
		registry:   registry,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		updowns:    make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry for scrape handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Counter(name, description, unit string) observability.Counter {
	return &counter{metrics: m, name: name, description: description}
}

func (m *Metrics) Histogram(name, description, unit string) observability.Histogram {
	return &histogram{metrics: m, name: name, description: description}
}

func (m *Metrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	return &upDown{metrics: m, name: name, description: description}
}

func (m *Metrics) Gauge(name, description, unit string, callback observability.GaugeCallback) error {
	fn := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      description,
	}, func() float64 { return callback(context.Background()) })
	return m.registry.Register(fn)
}

func labelPairs(fields []observability.Field) (keys []string, values []string) {
	for _, f := range fields {
		keys = append(keys, f.Key)
		values = append(values, fmt.Sprint(f.Value))
	}
	return keys, values
}

type counter struct {
	metrics     *Metrics
	name        string
	description string
}

func (c *counter) vec(keys []string) *prometheus.CounterVec {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()

	if v, ok := c.metrics.counters[c.name]; ok {
		return v
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: c.metrics.namespace,
		Name:      c.name,
		Help:      c.description,
	}, keys)
	c.metrics.registry.MustRegister(v)
	c.metrics.counters[c.name] = v
	return v
}

func (c *counter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	keys, values := labelPairs(fields)
	c.vec(keys).WithLabelValues(values...).Add(float64(value))
}

func (c *counter) Increment(ctx context.Context, fields ...observability.Field) {
	c.Add(ctx, 1, fields...)
}

type histogram struct {
	metrics     *Metrics
	name        string
	description string
}

func (h *histogram) vec(keys []string) *prometheus.HistogramVec {
	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()

	if v, ok := h.metrics.histograms[h.name]; ok {
		return v
	}
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: h.metrics.namespace,
		Name:      h.name,
		Help:      h.description,
		Buckets:   prometheus.DefBuckets,
	}, keys)
	h.metrics.registry.MustRegister(v)
	h.metrics.histograms[h.name] = v
	return v
}

func (h *histogram) Record(ctx context.Context, value float64, fields ...observability.Field) {
	keys, values := labelPairs(fields)
	h.vec(keys).WithLabelValues(values...).Observe(value)
}

type upDown struct {
	metrics     *Metrics
	name        string
	description string
}

func (u *upDown) vec(keys []string) *prometheus.GaugeVec {
	u.metrics.mu.Lock()
	defer u.metrics.mu.Unlock()

	if v, ok := u.metrics.updowns[u.name]; ok {
		return v
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: u.metrics.namespace,
		Name:      u.name,
		Help:      u.description,
	}, keys)
	u.metrics.registry.MustRegister(v)
	u.metrics.updowns[u.name] = v
	return v
}

func (u *upDown) Add(ctx context.Context, value int64, fields ...observability.Field) {
	keys, values := labelPairs(fields)
	u.vec(keys).WithLabelValues(values...).Add(float64(value))
}
