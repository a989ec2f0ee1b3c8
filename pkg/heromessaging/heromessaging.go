// Package heromessaging is the assembled framework: one facade wiring the
// dispatcher, pipeline, queue, outbox, inbox, scheduler and supporting
// stores behind a single construction point.
package heromessaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/deadletter"
	"github.com/heromessaging/heromessaging-go/pkg/dispatcher"
	"github.com/heromessaging/heromessaging-go/pkg/idempotency"
	"github.com/heromessaging/heromessaging-go/pkg/inbox"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
	"github.com/heromessaging/heromessaging-go/pkg/observability/noop"
	"github.com/heromessaging/heromessaging-go/pkg/outbox"
	"github.com/heromessaging/heromessaging-go/pkg/pipeline"
	"github.com/heromessaging/heromessaging-go/pkg/policies"
	"github.com/heromessaging/heromessaging-go/pkg/queue"
	"github.com/heromessaging/heromessaging-go/pkg/ratelimit"
	"github.com/heromessaging/heromessaging-go/pkg/scheduler"
)

// DefaultQueue is the queue used when callers do not name one.
const DefaultQueue = "default"

// ErrUnknownQueue is returned for lifecycle calls on a queue that was never
// written to or declared.
var ErrUnknownQueue = errors.New("unknown queue")

// Messaging is the framework facade. Construct with New, register handlers,
// then Start the background workers.
type Messaging struct {
	cfg      Config
	obs      observability.Observability
	registry *messaging.Registry
	dispatch *dispatcher.Dispatcher

	idempotencyStore idempotency.Store
	dlq              deadletter.Store
	limiter          *ratelimit.Limiter
	retry            policies.RetryPolicy
	queueOpts        queue.ConsumerOptions

	outboxStore  outbox.Store
	outboxWorker *outbox.Worker
	inboxStore   inbox.Store
	inboxProc    *inbox.Processor
	schedStorage scheduler.Storage
	schedWorker  *scheduler.Worker

	mu      sync.Mutex
	queues  map[string]*queueRuntime
	started bool
}

// queueRuntime is one named queue: its store plus the consumer currently
// draining it, nil while stopped. Workers are single-use, so each start
// builds a fresh one over the same store.
type queueRuntime struct {
	store   queue.Store
	worker  *queue.Worker
	running bool
}

// Option configures the facade.
type Option func(*builder)

type builder struct {
	cfg              Config
	obs              observability.Observability
	validators       []pipeline.Validator
	uow              pipeline.UnitOfWork
	retryPolicy      policies.RetryPolicy
	transport        outbox.Transport
	idempotencyStore idempotency.Store
	dlq              deadletter.Store
	queueStore       queue.Store
	namedQueues      map[string]queue.Store
	outboxStore      outbox.Store
	inboxStore       inbox.Store
	schedStorage     scheduler.Storage
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(b *builder) { b.cfg = cfg }
}

// WithObservability sets the instrumentation provider for every component.
func WithObservability(obs observability.Observability) Option {
	return func(b *builder) { b.obs = obs }
}

// WithValidators adds pipeline validators, run in order on every dispatch.
func WithValidators(validators ...pipeline.Validator) Option {
	return func(b *builder) { b.validators = append(b.validators, validators...) }
}

// WithUnitOfWork wraps handler execution in uow.
func WithUnitOfWork(uow pipeline.UnitOfWork) Option {
	return func(b *builder) { b.uow = uow }
}

// WithRetryPolicy replaces the pipeline retry policy.
func WithRetryPolicy(policy policies.RetryPolicy) Option {
	return func(b *builder) { b.retryPolicy = policy }
}

// WithOutboxTransport sets where the outbox worker delivers to. Without a
// transport, outbox entries are published on the local dispatcher.
func WithOutboxTransport(transport outbox.Transport) Option {
	return func(b *builder) { b.transport = transport }
}

// WithIdempotencyStore replaces the in-memory idempotency cache.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(b *builder) { b.idempotencyStore = store }
}

// WithDeadLetterStore replaces the in-memory dead-letter store.
func WithDeadLetterStore(store deadletter.Store) Option {
	return func(b *builder) { b.dlq = store }
}

// WithQueueStore replaces the in-memory store backing the default queue.
func WithQueueStore(store queue.Store) Option {
	return func(b *builder) { b.queueStore = store }
}

// WithNamedQueue declares a queue backed by store. Queues named only at
// Enqueue time get an in-memory store.
func WithNamedQueue(name string, store queue.Store) Option {
	return func(b *builder) { b.namedQueues[name] = store }
}

// WithOutboxStore replaces the in-memory outbox store.
func WithOutboxStore(store outbox.Store) Option {
	return func(b *builder) { b.outboxStore = store }
}

// WithInboxStore replaces the in-memory inbox store.
func WithInboxStore(store inbox.Store) Option {
	return func(b *builder) { b.inboxStore = store }
}

// WithSchedulerStorage replaces the in-memory scheduler storage.
func WithSchedulerStorage(storage scheduler.Storage) Option {
	return func(b *builder) { b.schedStorage = storage }
}

// New assembles the framework. In-memory stores back every component unless
// replaced through options.
func New(opts ...Option) (*Messaging, error) {
	b := &builder{cfg: DefaultConfig(), namedQueues: make(map[string]queue.Store)}
	for _, opt := range opts {
		opt(b)
	}

	if b.obs == nil {
		b.obs = noop.NewProvider()
	}
	if b.idempotencyStore == nil {
		b.idempotencyStore = idempotency.NewMemoryStore()
	}
	if b.dlq == nil {
		b.dlq = deadletter.NewMemoryStore()
	}
	if b.queueStore == nil {
		b.queueStore = queue.NewMemoryStore()
	}
	if b.outboxStore == nil {
		b.outboxStore = outbox.NewMemoryStore()
	}
	if b.inboxStore == nil {
		b.inboxStore = inbox.NewMemoryStore()
	}
	if b.schedStorage == nil {
		b.schedStorage = scheduler.NewMemoryStorage()
	}
	if b.retryPolicy == nil {
		b.retryPolicy = policies.NewExponentialBackoff(
			b.cfg.RetryMaxAttempts, b.cfg.RetryBaseDelay, b.cfg.RetryMaxDelay, 0.2)
	}

	var limiter *ratelimit.Limiter
	if b.cfg.RateCapacity > 0 {
		var err error
		limiter, err = ratelimit.New(ratelimit.Options{
			Capacity:     b.cfg.RateCapacity,
			RefillRate:   b.cfg.RateRefillPerSec,
			RefillPeriod: time.Second,
			Behavior:     ratelimit.Queue,
			MaxQueueWait: b.cfg.RateMaxQueueWait,
		})
		if err != nil {
			return nil, err
		}
	}

	policy := idempotency.DefaultPolicy()
	policy.SuccessTTL = b.cfg.IdempotencySuccessTTL
	policy.FailureTTL = b.cfg.IdempotencyFailureTTL

	pipelineBuilder := pipeline.NewBuilder().
		WithObservability(b.obs).
		WithIdempotency(b.idempotencyStore, policy).
		WithRetry(b.retryPolicy)
	if len(b.validators) > 0 {
		pipelineBuilder.WithValidation(b.validators...)
	}
	if b.uow != nil {
		pipelineBuilder.WithTransaction(b.uow)
	}

	registry := messaging.NewRegistry()
	dispatchOpts := []dispatcher.Option{
		dispatcher.WithPipeline(pipelineBuilder),
		dispatcher.WithObservability(b.obs),
		dispatcher.WithDeadLetter(b.dlq),
	}
	if b.cfg.MaxConcurrency > 0 {
		dispatchOpts = append(dispatchOpts, dispatcher.WithMaxConcurrency(b.cfg.MaxConcurrency))
	}
	dispatch := dispatcher.New(registry, dispatchOpts...)

	queueOpts := queue.DefaultConsumerOptions()
	queueOpts.Concurrency = b.cfg.QueueConcurrency
	queueOpts.Prefetch = b.cfg.QueuePrefetch
	queueOpts.Visibility = b.cfg.QueueVisibility
	queueOpts.PollInterval = b.cfg.PollInterval
	queueOpts.MaxIdleWait = b.cfg.MaxIdleWait

	m := &Messaging{
		cfg:              b.cfg,
		obs:              b.obs,
		registry:         registry,
		dispatch:         dispatch,
		idempotencyStore: b.idempotencyStore,
		dlq:              b.dlq,
		limiter:          limiter,
		retry:            b.retryPolicy,
		queueOpts:        queueOpts,
		outboxStore:      b.outboxStore,
		inboxStore:       b.inboxStore,
		schedStorage:     b.schedStorage,
		queues:           make(map[string]*queueRuntime),
	}

	m.queues[DefaultQueue] = &queueRuntime{store: b.queueStore}
	for name, store := range b.namedQueues {
		m.queues[name] = &queueRuntime{store: store}
	}

	transport := b.transport
	if transport == nil {
		transport = outbox.TransportFunc(func(ctx context.Context, destination string, msg messaging.Message) error {
			return dispatch.Publish(ctx, msg)
		})
	}
	m.outboxWorker = outbox.NewWorker(b.outboxStore, transport,
		outbox.WithBatchSize(b.cfg.OutboxBatchSize),
		outbox.WithLease(b.cfg.OutboxLease),
		outbox.WithPollInterval(b.cfg.PollInterval, b.cfg.MaxIdleWait),
		outbox.WithRetryPolicy(b.retryPolicy),
		outbox.WithDeadLetter(b.dlq),
		outbox.WithObservability(b.obs))

	inboxOpts := []inbox.ProcessorOption{}
	if b.uow != nil {
		inboxOpts = append(inboxOpts, inbox.WithUnitOfWork(b.uow))
	}
	m.inboxProc = inbox.NewProcessor(b.inboxStore, dispatch, inboxOpts...)

	m.schedWorker = scheduler.NewWorker(b.schedStorage, dispatch,
		scheduler.WithPollInterval(b.cfg.PollInterval, b.cfg.MaxIdleWait),
		scheduler.WithObservability(b.obs))

	return m, nil
}

// RegisterCommand binds the handler for a command type.
func (m *Messaging) RegisterCommand(messageType string, handler messaging.Handler) error {
	return m.registry.RegisterCommand(messageType, handler)
}

// RegisterQuery binds the handler for a query type.
func (m *Messaging) RegisterQuery(messageType string, handler messaging.Handler) error {
	return m.registry.RegisterQuery(messageType, handler)
}

// RegisterEvent adds a handler for an event type.
func (m *Messaging) RegisterEvent(messageType string, handler messaging.Handler) error {
	_, err := m.registry.RegisterEvent(messageType, handler)
	return err
}

// Send dispatches a command or query synchronously and returns the
// handler's response.
func (m *Messaging) Send(ctx context.Context, msg messaging.Message) (any, error) {
	return m.dispatch.Send(ctx, msg)
}

// Publish fans an event out to every subscriber synchronously.
func (m *Messaging) Publish(ctx context.Context, msg messaging.Message) error {
	return m.dispatch.Publish(ctx, msg)
}

// Enqueue stages a message on the named queue for asynchronous processing.
// Unknown queue names get an in-memory queue on first use; an empty name
// means the default queue.
func (m *Messaging) Enqueue(ctx context.Context, queueName string, msg messaging.Message, opts queue.EnqueueOptions) (string, error) {
	rt := m.queueFor(queueName, true)
	entry, err := rt.store.Enqueue(ctx, msg, opts)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// StartQueue launches the consumer for one named queue. Starting a running
// queue is a no-op.
func (m *Messaging) StartQueue(ctx context.Context, queueName string) error {
	rt := m.queueFor(queueName, false)
	if rt == nil {
		return ErrUnknownQueue
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rt.running {
		return nil
	}
	rt.worker = m.newQueueWorker(rt.store)
	rt.running = true
	rt.worker.Start(ctx)
	return nil
}

// StopQueue halts the consumer for one named queue, waiting for in-flight
// handlers. Stopping a stopped queue is a no-op.
func (m *Messaging) StopQueue(queueName string) error {
	rt := m.queueFor(queueName, false)
	if rt == nil {
		return ErrUnknownQueue
	}

	m.mu.Lock()
	if !rt.running {
		m.mu.Unlock()
		return nil
	}
	worker := rt.worker
	rt.worker = nil
	rt.running = false
	m.mu.Unlock()

	worker.Stop()
	return nil
}

func (m *Messaging) queueFor(name string, create bool) *queueRuntime {
	if name == "" {
		name = DefaultQueue
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.queues[name]
	if !ok && create {
		rt = &queueRuntime{store: queue.NewMemoryStore()}
		m.queues[name] = rt
	}
	return rt
}

func (m *Messaging) newQueueWorker(store queue.Store) *queue.Worker {
	opts := []queue.WorkerOption{
		queue.WithConsumerOptions(m.queueOpts),
		queue.WithRetryPolicy(m.retry),
		queue.WithDeadLetter(m.dlq),
		queue.WithObservability(m.obs),
	}
	if m.limiter != nil {
		opts = append(opts, queue.WithRateLimiter(m.limiter))
	}
	return queue.NewWorker(store, m.dispatch, opts...)
}

// PublishToOutbox stages a message in the transactional outbox.
func (m *Messaging) PublishToOutbox(ctx context.Context, msg messaging.Message, opts outbox.Options) (string, error) {
	entry, err := m.outboxStore.Add(ctx, msg, opts)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// ProcessIncoming ingests an externally received message through the inbox:
// duplicates are dropped, fresh messages dispatched.
func (m *Messaging) ProcessIncoming(ctx context.Context, msg messaging.Message, source string) (inbox.Result, error) {
	return m.inboxProc.Process(ctx, msg, source)
}

// Schedule stages a message for delivery at deliverAt and returns the entry
// id for cancellation.
func (m *Messaging) Schedule(ctx context.Context, msg messaging.Message, deliverAt time.Time, opts scheduler.Options) (string, error) {
	entry, err := m.schedStorage.Add(ctx, msg, deliverAt, opts)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// CancelScheduled cancels a scheduled entry before delivery.
func (m *Messaging) CancelScheduled(ctx context.Context, id string) error {
	return m.schedStorage.Cancel(ctx, id)
}

// DeadLetters exposes the dead-letter store for operational tooling.
func (m *Messaging) DeadLetters() deadletter.Store {
	return m.dlq
}

// Observability returns the instrumentation provider the facade was built
// with, for metrics snapshots.
func (m *Messaging) Observability() observability.Observability {
	return m.obs
}

// Health is a point-in-time snapshot of the backlog in every component.
type Health struct {
	// QueueDepth is the backlog per queue name.
	QueueDepth map[string]int

	OutboxPending    int
	SchedulerPending int
	DeadLetters      int

	// RateLimiter is nil when rate limiting is disabled.
	RateLimiter *ratelimit.Statistics
}

// Health reports backlog depths across the queues, outbox, scheduler and
// dead-letter store.
func (m *Messaging) Health(ctx context.Context) (Health, error) {
	var h Health
	var err error

	m.mu.Lock()
	stores := make(map[string]queue.Store, len(m.queues))
	for name, rt := range m.queues {
		stores[name] = rt.store
	}
	m.mu.Unlock()

	h.QueueDepth = make(map[string]int, len(stores))
	for name, store := range stores {
		if h.QueueDepth[name], err = store.Depth(ctx); err != nil {
			return Health{}, err
		}
	}
	if h.OutboxPending, err = m.outboxStore.PendingCount(ctx); err != nil {
		return Health{}, err
	}
	if h.SchedulerPending, err = m.schedStorage.PendingCount(ctx); err != nil {
		return Health{}, err
	}
	if h.DeadLetters, err = m.dlq.Count(ctx); err != nil {
		return Health{}, err
	}
	if m.limiter != nil {
		stats := m.limiter.Statistics()
		h.RateLimiter = &stats
	}
	return h, nil
}

// Start launches the outbox and scheduler workers and the consumers of
// every declared queue. A Messaging is single-use: after Stop it cannot be
// started again.
func (m *Messaging) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	m.mu.Unlock()

	m.outboxWorker.Start(ctx)
	m.schedWorker.Start(ctx)
	for _, name := range names {
		_ = m.StartQueue(ctx, name)
	}
}

// Stop halts every worker and waits for in-flight work to finish.
func (m *Messaging) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		_ = m.StopQueue(name)
	}
	m.outboxWorker.Stop()
	m.schedWorker.Stop()
}
