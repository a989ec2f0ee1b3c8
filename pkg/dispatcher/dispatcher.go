// Package dispatcher routes messages to their registered handlers through
// the processing pipeline: commands and queries synchronously to a single
// handler, events fanned out to every subscriber.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/heromessaging/heromessaging-go/pkg/correlation"
	"github.com/heromessaging/heromessaging-go/pkg/deadletter"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
	"github.com/heromessaging/heromessaging-go/pkg/pipeline"
)

var (
	// ErrSaturated is returned when the dispatcher's concurrency bound is
	// reached and backpressure rejects the dispatch.
	ErrSaturated = errors.New("dispatcher saturated")

	// ErrWrongKind is returned when a message reaches an operation for a
	// different message kind.
	ErrWrongKind = errors.New("wrong message kind for operation")
)

// Dispatcher is the synchronous entry point of the framework. Pipelines are
// built once per registration and reused across dispatches.
type Dispatcher struct {
	registry *messaging.Registry
	builder  *pipeline.Builder
	obs      observability.Observability
	dlq      deadletter.Store
	slots    chan struct{}

	mu        sync.RWMutex
	pipelines map[messaging.Subscription]pipeline.Processor
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPipeline sets the pipeline builder every handler is wrapped with.
func WithPipeline(builder *pipeline.Builder) Option {
	return func(d *Dispatcher) { d.builder = builder }
}

// WithObservability sets the instrumentation provider.
func WithObservability(obs observability.Observability) Option {
	return func(d *Dispatcher) { d.obs = obs }
}

// WithDeadLetter forwards exhausted event failures to store.
func WithDeadLetter(store deadletter.Store) Option {
	return func(d *Dispatcher) { d.dlq = store }
}

// WithMaxConcurrency bounds concurrent dispatches; beyond the bound,
// dispatch attempts are rejected with ErrSaturated.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.slots = make(chan struct{}, n)
		}
	}
}

// New creates a dispatcher over registry.
func New(registry *messaging.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		builder:   pipeline.NewBuilder(),
		pipelines: make(map[messaging.Subscription]pipeline.Processor),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.obs != nil {
		d.builder.WithObservability(d.obs)
	}
	return d
}

// Send dispatches a command or query to its registered handler and returns
// the handler's response. Commands without a reply return (nil, nil) on
// success.
func (d *Dispatcher) Send(ctx context.Context, msg messaging.Message) (any, error) {
	if msg == nil {
		return nil, messaging.ErrNilMessage
	}

	var (
		reg messaging.Registration
		ok  bool
	)
	switch msg.MessageKind() {
	case messaging.KindCommand:
		reg, ok = d.registry.CommandHandler(msg.MessageType())
	case messaging.KindQuery:
		reg, ok = d.registry.QueryHandler(msg.MessageType())
	default:
		return nil, fmt.Errorf("%w: cannot send %s", ErrWrongKind, msg.MessageKind())
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", messaging.ErrNoHandler, msg.MessageType())
	}

	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	msg = correlation.Apply(ctx, msg)
	ctx = correlation.Enter(ctx, msg)

	pc := messaging.NewProcessingContext()
	pc.Component = "dispatcher"

	result := d.pipelineFor(reg).Process(ctx, msg, pc)
	if !result.Succeeded {
		return nil, result.Err
	}
	return result.Data, nil
}

// Publish fans an event out to every subscribed handler. A failing handler
// never prevents the others from running; failures are joined into the
// returned error and, when a dead-letter store is configured, recorded there.
func (d *Dispatcher) Publish(ctx context.Context, msg messaging.Message) error {
	if msg == nil {
		return messaging.ErrNilMessage
	}
	if msg.MessageKind() != messaging.KindEvent {
		return fmt.Errorf("%w: cannot publish %s", ErrWrongKind, msg.MessageKind())
	}

	regs := d.registry.EventHandlers(msg.MessageType())
	if len(regs) == 0 {
		// Events without subscribers are dropped silently.
		return nil
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.release()

	msg = correlation.Apply(ctx, msg)
	ctx = correlation.Enter(ctx, msg)

	var failures []error
	for _, reg := range regs {
		pc := messaging.NewProcessingContext()
		pc.Component = "dispatcher"

		result := d.pipelineFor(reg).Process(ctx, msg, pc)
		if result.Succeeded {
			continue
		}
		failures = append(failures, result.Err)

		if d.dlq != nil {
			if _, dlqErr := d.dlq.Send(ctx, msg, result.Reason, pc.Component, pc.RetryCount); dlqErr != nil {
				failures = append(failures, fmt.Errorf("dead letter: %w", dlqErr))
			}
		}
	}
	return errors.Join(failures...)
}

func (d *Dispatcher) acquire() error {
	if d.slots == nil {
		return nil
	}
	select {
	case d.slots <- struct{}{}:
		return nil
	default:
		return ErrSaturated
	}
}

func (d *Dispatcher) release() {
	if d.slots != nil {
		<-d.slots
	}
}

func (d *Dispatcher) pipelineFor(reg messaging.Registration) pipeline.Processor {
	d.mu.RLock()
	p, ok := d.pipelines[reg.Sub]
	d.mu.RUnlock()
	if ok {
		return p
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok = d.pipelines[reg.Sub]; ok {
		return p
	}
	p = d.builder.Build(reg.Handler)
	d.pipelines[reg.Sub] = p
	return p
}
