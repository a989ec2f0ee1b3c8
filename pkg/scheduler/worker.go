package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// Worker polls storage for due entries and routes them to the sender,
// backing off exponentially while nothing is due.
type Worker struct {
	storage Storage
	sender  Sender
	obs     observability.Observability

	batchSize    int
	pollInterval time.Duration
	maxIdleWait  time.Duration
	now          func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithBatchSize sets how many due entries one poll claims.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) { w.batchSize = n }
}

// WithPollInterval sets the base poll interval; idle polls back off
// exponentially from it up to max.
func WithPollInterval(base, max time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollInterval = base
		w.maxIdleWait = max
	}
}

// WithObservability sets the instrumentation provider.
func WithObservability(obs observability.Observability) WorkerOption {
	return func(w *Worker) { w.obs = obs }
}

// NewWorker creates a delivery worker over storage and sender.
func NewWorker(storage Storage, sender Sender, opts ...WorkerOption) *Worker {
	w := &Worker{
		storage:      storage,
		sender:       sender,
		batchSize:    100,
		pollInterval: 50 * time.Millisecond,
		maxIdleWait:  5 * time.Second,
		now:          time.Now,
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

		delivered := w.deliverDue(ctx)
		if delivered > 0 {
			idle.Reset()
			timer.Reset(0)
		} else {
			timer.Reset(idle.NextBackOff())
		}
	}
}

func (w *Worker) deliverDue(ctx context.Context) int {
	now := w.now()
	entries, err := w.storage.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		w.logError(ctx, "scheduler claim failed", err)
		return 0
	}

	for _, entry := range entries {
		w.deliver(ctx, entry, now)
	}
	return len(entries)
}

func (w *Worker) deliver(ctx context.Context, entry *Entry, now time.Time) {
	if entry.SkipIfPastDue && now.Sub(entry.DeliverAt) > entry.PastDueTolerance {
		cause := faults.Newf(faults.KindInvalidOperation,
			"past due: scheduled for %s, found at %s", entry.DeliverAt.Format(time.RFC3339), now.Format(time.RFC3339))
		if err := w.storage.MarkFailed(ctx, entry.ID, cause); err != nil {
			w.logError(ctx, "scheduler mark failed failed", err)
		}
		return
	}

	if err := w.route(ctx, entry.Message); err != nil {
		if markErr := w.storage.MarkFailed(ctx, entry.ID, err); markErr != nil {
			w.logError(ctx, "scheduler mark failed failed", markErr)
		}
		return
	}

	if err := w.storage.MarkDelivered(ctx, entry.ID); err != nil {
		w.logError(ctx, "scheduler mark delivered failed", err)
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
		return fmt.Errorf("%w: %s", ErrUnschedulableMessage, msg.MessageKind())
	}
}

func (w *Worker) logError(ctx context.Context, msg string, err error) {
	if w.obs != nil {
		w.obs.Logger().Error(ctx, msg, observability.Error(err))
	}
}
