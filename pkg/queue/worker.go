package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heromessaging/heromessaging-go/pkg/deadletter"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
	"github.com/heromessaging/heromessaging-go/pkg/policies"
	"github.com/heromessaging/heromessaging-go/pkg/ratelimit"
)

// ConsumerOptions tunes the worker.
type ConsumerOptions struct {
	// Concurrency is the number of handler goroutines.
	Concurrency int

	// Prefetch is how many entries one poll leases.
	Prefetch int

	// Visibility is the lease duration per delivery attempt.
	Visibility time.Duration

	// PollInterval is the base idle poll interval; idle polls back off
	// exponentially up to MaxIdleWait.
	PollInterval time.Duration
	MaxIdleWait  time.Duration
}

// DefaultConsumerOptions returns the standard worker tuning.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		Concurrency:  4,
		Prefetch:     16,
		Visibility:   30 * time.Second,
		PollInterval: 50 * time.Millisecond,
		MaxIdleWait:  5 * time.Second,
	}
}

// Worker consumes a queue: leased entries are routed to the sender by
// message kind, acked on success and nacked with the retry policy's delay on
// failure. Exhausted entries go to the dead-letter store.
type Worker struct {
	store   Store
	sender  Sender
	opts    ConsumerOptions
	policy  policies.RetryPolicy
	limiter *ratelimit.Limiter
	dlq     deadletter.Store
	obs     observability.Observability

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConsumerOptions replaces the worker tuning.
func WithConsumerOptions(opts ConsumerOptions) WorkerOption {
	return func(w *Worker) { w.opts = opts }
}

// WithRetryPolicy sets the redelivery budget and backoff schedule. Every
// failed delivery is redelivered until the budget is spent.
func WithRetryPolicy(policy policies.RetryPolicy) WorkerOption {
	return func(w *Worker) { w.policy = policy }
}

// WithRateLimiter throttles consumption through limiter.
func WithRateLimiter(limiter *ratelimit.Limiter) WorkerOption {
	return func(w *Worker) { w.limiter = limiter }
}

// WithDeadLetter forwards exhausted entries to store.
func WithDeadLetter(store deadletter.Store) WorkerOption {
	return func(w *Worker) { w.dlq = store }
}

// WithObservability sets the instrumentation provider.
func WithObservability(obs observability.Observability) WorkerOption {
	return func(w *Worker) { w.obs = obs }
}

// NewWorker creates a queue consumer over store and sender.
func NewWorker(store Store, sender Sender, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:  store,
		sender: sender,
		opts:   DefaultConsumerOptions(),
		policy: policies.NewExponentialBackoff(3, time.Second, time.Minute, 0.2),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.opts.Concurrency < 1 {
		w.opts.Concurrency = 1
	}
	if w.opts.Prefetch < 1 {
		w.opts.Prefetch = 1
	}
	return w
}

// Start launches the poll loop and handler pool. Subsequent calls are
// no-ops.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.run(ctx)
	})
}

// Stop halts consumption and waits for in-flight handlers to finish.
// Stopping a worker that never started returns immediately.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	work := make(chan *Entry)
	var handlers sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			for entry := range work {
				w.handle(ctx, entry)
			}
		}()
	}
	defer func() {
		close(work)
		handlers.Wait()
	}()

	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = w.opts.PollInterval
	idle.MaxInterval = w.opts.MaxIdleWait
	idle.MaxElapsedTime = 0
	idle.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		entries, err := w.store.Dequeue(ctx, w.opts.Prefetch, w.opts.Visibility)
		if err != nil {
			w.logError(ctx, "queue dequeue failed", err)
		}

		for _, entry := range entries {
			select {
			case work <- entry:
			case <-w.stop:
				// Not handled; the visibility timeout redelivers it.
				return
			case <-ctx.Done():
				return
			}
		}

		if len(entries) > 0 {
			idle.Reset()
			timer.Reset(0)
		} else {
			timer.Reset(idle.NextBackOff())
		}
	}
}

func (w *Worker) handle(ctx context.Context, entry *Entry) {
	if w.limiter != nil {
		decision, err := w.limiter.Acquire(ctx, entry.Message.MessageType(), 1)
		if err != nil || !decision.Allowed {
			delay := decision.RetryAfter
			if delay <= 0 {
				delay = time.Second
			}
			if nackErr := w.store.Nack(ctx, entry.ID, nil, delay); nackErr != nil {
				w.logError(ctx, "queue nack failed", nackErr)
			}
			return
		}
	}

	err := w.route(ctx, entry.Message)
	if err == nil {
		if ackErr := w.store.Ack(ctx, entry.ID); ackErr != nil {
			w.logError(ctx, "queue ack failed", ackErr)
		}
		return
	}

	// Attempts counts deliveries; retries performed so far is one less.
	// Queued work is retried on its attempt budget alone, whatever the
	// failure kind.
	if entry.Attempts-1 < w.policy.MaxRetries() {
		delay := w.policy.RetryDelay(entry.Attempts - 1)
		if nackErr := w.store.Nack(ctx, entry.ID, err, delay); nackErr != nil {
			w.logError(ctx, "queue nack failed", nackErr)
		}
		return
	}

	if w.dlq != nil {
		reason := "queue delivery exhausted: " + err.Error()
		if _, dlqErr := w.dlq.Send(ctx, entry.Message, reason, "queue", entry.Attempts-1); dlqErr != nil {
			w.logError(ctx, "queue dead letter failed", dlqErr)
		}
	}
	if ackErr := w.store.Ack(ctx, entry.ID); ackErr != nil {
		w.logError(ctx, "queue ack failed", ackErr)
	}
}

func (w *Worker) route(ctx context.Context, msg messaging.Message) error {
	switch msg.MessageKind() {
	case messaging.KindEvent:
		return w.sender.Publish(ctx, msg)
	case messaging.KindCommand:
		_, err := w.sender.Send(ctx, msg)
		return err
	default:
		return fmt.Errorf("%w: %s cannot be queued", messaging.ErrNoHandler, msg.MessageKind())
	}
}

func (w *Worker) logError(ctx context.Context, msg string, err error) {
	if w.obs != nil {
		w.obs.Logger().Error(ctx, msg, observability.Error(err))
	}
}
