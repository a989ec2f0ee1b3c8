package outbox

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heromessaging/heromessaging-go/pkg/deadletter"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
	"github.com/heromessaging/heromessaging-go/pkg/policies"
)

// Worker relays staged entries to the transport. It polls in batches and
// backs off exponentially while the outbox is empty.
type Worker struct {
	store     Store
	transport Transport
	policy    policies.RetryPolicy
	dlq       deadletter.Store
	obs       observability.Observability

	batchSize    int
	leaseFor     time.Duration
	pollInterval time.Duration
	maxIdleWait  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithBatchSize sets how many entries one poll claims.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) { w.batchSize = n }
}

// WithLease sets how long a claim is protected from other workers.
func WithLease(d time.Duration) WorkerOption {
	return func(w *Worker) { w.leaseFor = d }
}

// WithPollInterval sets the base poll interval; idle polls back off
// exponentially from it up to max.
func WithPollInterval(base, max time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollInterval = base
		w.maxIdleWait = max
	}
}

// WithRetryPolicy sets the default retry budget and backoff schedule. Staged
// entries are already committed, so every delivery failure is retried until
// the budget is spent, whatever its kind; entries can override the budget and
// spacing through their staging Options.
func WithRetryPolicy(policy policies.RetryPolicy) WorkerOption {
	return func(w *Worker) { w.policy = policy }
}

// WithDeadLetter forwards exhausted entries to store.
func WithDeadLetter(store deadletter.Store) WorkerOption {
	return func(w *Worker) { w.dlq = store }
}

// WithObservability sets the instrumentation provider.
func WithObservability(obs observability.Observability) WorkerOption {
	return func(w *Worker) { w.obs = obs }
}

// NewWorker creates a relay worker over store and transport.
func NewWorker(store Store, transport Transport, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:        store,
		transport:    transport,
		policy:       policies.NewExponentialBackoff(3, time.Second, time.Minute, 0.2),
		batchSize:    100,
		leaseFor:     30 * time.Second,
		pollInterval: 100 * time.Millisecond,
		maxIdleWait:  5 * time.Second,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the poll loop. Subsequent calls are no-ops.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.run(ctx)
	})
}

// Stop halts the poll loop and waits for the in-flight batch to finish.
// Stopping a worker that never started returns immediately.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = w.pollInterval
	idle.MaxInterval = w.maxIdleWait
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

		processed := w.drainBatch(ctx)
		if processed > 0 {
			idle.Reset()
			timer.Reset(0)
		} else {
			timer.Reset(idle.NextBackOff())
		}
	}
}

// drainBatch claims and delivers one batch, returning how many entries it
// processed.
func (w *Worker) drainBatch(ctx context.Context) int {
	entries, err := w.store.Claim(ctx, w.batchSize, w.leaseFor)
	if err != nil {
		w.logError(ctx, "outbox claim failed", err)
		return 0
	}

	for _, entry := range entries {
		w.deliver(ctx, entry)
	}
	return len(entries)
}

func (w *Worker) deliver(ctx context.Context, entry *Entry) {
	err := w.transport.Publish(ctx, entry.Destination, entry.Message)
	if err == nil {
		if markErr := w.store.MarkProcessed(ctx, entry.ID); markErr != nil {
			w.logError(ctx, "outbox mark processed failed", markErr)
		}
		return
	}

	if entry.RetryCount < w.maxRetries(entry) {
		nextRetryAt := time.Now().Add(w.retryDelay(entry))
		if markErr := w.store.MarkRetry(ctx, entry.ID, err, nextRetryAt); markErr != nil {
			w.logError(ctx, "outbox mark retry failed", markErr)
		}
		return
	}

	if markErr := w.store.MarkFailed(ctx, entry.ID, err); markErr != nil {
		w.logError(ctx, "outbox mark failed failed", markErr)
	}
	if w.dlq != nil {
		reason := "outbox delivery exhausted: " + err.Error()
		if _, dlqErr := w.dlq.Send(ctx, entry.Message, reason, "outbox", entry.RetryCount); dlqErr != nil {
			w.logError(ctx, "outbox dead letter failed", dlqErr)
		}
	}
}

func (w *Worker) maxRetries(entry *Entry) int {
	if entry.MaxRetries > 0 {
		return entry.MaxRetries
	}
	return w.policy.MaxRetries()
}

func (w *Worker) retryDelay(entry *Entry) time.Duration {
	if entry.RetryDelay > 0 {
		return entry.RetryDelay
	}
	return w.policy.RetryDelay(entry.RetryCount)
}

func (w *Worker) logError(ctx context.Context, msg string, err error) {
	if w.obs != nil {
		w.obs.Logger().Error(ctx, msg, observability.Error(err))
	}
}
