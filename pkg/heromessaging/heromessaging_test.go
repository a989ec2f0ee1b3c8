package heromessaging

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/outbox"
	"github.com/heromessaging/heromessaging-go/pkg/pipeline"
	"github.com/heromessaging/heromessaging-go/pkg/policies"
	"github.com/heromessaging/heromessaging-go/pkg/queue"
	"github.com/heromessaging/heromessaging-go/pkg/scheduler"
)

type createOrder struct {
	messaging.CommandBase
	OrderID string `validate:"required"`
	Amount  int    `validate:"gt=0"`
}

func (createOrder) MessageType() string { return "orders.create" }
func (createOrder) ExpectsReply() bool  { return true }

func newCreateOrder(orderID string, amount int) createOrder {
	return createOrder{CommandBase: messaging.NewCommandBase(), OrderID: orderID, Amount: amount}
}

type sendReminder struct {
	messaging.CommandBase
	OrderID string
}

func (sendReminder) MessageType() string { return "orders.remind" }

func newSendReminder(orderID string) sendReminder {
	return sendReminder{CommandBase: messaging.NewCommandBase(), OrderID: orderID}
}

type orderCreated struct {
	messaging.EventBase
	OrderID string
}

func (orderCreated) MessageType() string { return "orders.created" }

func newOrderCreated(orderID string) orderCreated {
	return orderCreated{EventBase: messaging.NewEventBase(), OrderID: orderID}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.MaxIdleWait = 10 * time.Millisecond
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSend_IdempotentCommandReplay(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	var calls atomic.Int32
	handler := messaging.Typed(func(ctx context.Context, msg createOrder, pc *messaging.ProcessingContext) (any, error) {
		calls.Add(1)
		return "created:" + msg.OrderID, nil
	})
	require.NoError(t, m.RegisterCommand("orders.create", handler))

	cmd := newCreateOrder("ord-42", 100)
	ctx := context.Background()

	first, err := m.Send(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "created:ord-42", first)

	// Re-dispatching the same message replays the cached response.
	second, err := m.Send(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_DeterministicFailureReplayed(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	var calls atomic.Int32
	handler := messaging.HandlerFunc(func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
		calls.Add(1)
		return nil, faults.New(faults.KindValidation, "amount must be positive")
	})
	require.NoError(t, m.RegisterCommand("orders.create", handler))

	cmd := newCreateOrder("ord-1", -5)
	ctx := context.Background()

	_, err = m.Send(ctx, cmd)
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.Classify(err))

	_, err = m.Send(ctx, cmd)
	require.Error(t, err)
	assert.Equal(t, faults.KindValidation, faults.Classify(err))
	assert.Equal(t, int32(1), calls.Load(), "deterministic failure is cached, handler runs once")
}

func TestSend_TransientFailureNotCached(t *testing.T) {
	m, err := New(WithRetryPolicy(policies.NewNoRetry()))
	require.NoError(t, err)

	var calls atomic.Int32
	handler := messaging.HandlerFunc(func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
		if calls.Add(1) == 1 {
			return nil, faults.New(faults.KindTimeout, "downstream slow")
		}
		return "ok", nil
	})
	require.NoError(t, m.RegisterCommand("orders.create", handler))

	cmd := newCreateOrder("ord-2", 10)
	ctx := context.Background()

	_, err = m.Send(ctx, cmd)
	require.Error(t, err)

	response, err := m.Send(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "ok", response)
	assert.Equal(t, int32(2), calls.Load(), "transient failure is not cached")
}

func TestSend_StructValidationBlocksInvalidPayload(t *testing.T) {
	m, err := New(WithValidators(pipeline.NewStructValidator()))
	require.NoError(t, err)

	var calls atomic.Int32
	handler := messaging.HandlerFunc(func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
		calls.Add(1)
		return nil, nil
	})
	require.NoError(t, m.RegisterCommand("orders.create", handler))

	_, err = m.Send(context.Background(), newCreateOrder("", 0))
	require.Error(t, err)

	var ve *faults.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Zero(t, calls.Load())
}

func TestPublish_FansOutToSubscribers(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	var first, second atomic.Int32
	require.NoError(t, m.RegisterEvent("orders.created", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			first.Add(1)
			return nil, nil
		})))
	require.NoError(t, m.RegisterEvent("orders.created", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			second.Add(1)
			return nil, nil
		})))

	require.NoError(t, m.Publish(context.Background(), newOrderCreated("ord-42")))
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestEnqueue_WorkerDeliversAsynchronously(t *testing.T) {
	m, err := New(WithConfig(fastConfig()))
	require.NoError(t, err)

	var handled atomic.Int32
	require.NoError(t, m.RegisterCommand("orders.remind", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			handled.Add(1)
			return nil, nil
		})))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := m.Enqueue(ctx, "", newSendReminder("ord"), queue.EnqueueOptions{})
		require.NoError(t, err)
	}

	m.Start(ctx)
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool { return handled.Load() == 5 })

	health, err := m.Health(ctx)
	require.NoError(t, err)
	assert.Zero(t, health.QueueDepth[DefaultQueue])
}

func TestNamedQueue_Lifecycle(t *testing.T) {
	m, err := New(WithConfig(fastConfig()))
	require.NoError(t, err)

	var handled atomic.Int32
	require.NoError(t, m.RegisterCommand("orders.remind", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			handled.Add(1)
			return nil, nil
		})))

	ctx := context.Background()
	_, err = m.Enqueue(ctx, "reminders", newSendReminder("ord"), queue.EnqueueOptions{})
	require.NoError(t, err)

	// Nothing consumes the queue until it is started.
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, handled.Load())

	require.NoError(t, m.StartQueue(ctx, "reminders"))
	waitFor(t, 2*time.Second, func() bool { return handled.Load() == 1 })
	require.NoError(t, m.StopQueue("reminders"))

	assert.ErrorIs(t, m.StartQueue(ctx, "nope"), ErrUnknownQueue)
	assert.ErrorIs(t, m.StopQueue("nope"), ErrUnknownQueue)
}

func TestPublishToOutbox_DeliversOnLocalDispatcher(t *testing.T) {
	m, err := New(WithConfig(fastConfig()))
	require.NoError(t, err)

	var handled atomic.Int32
	require.NoError(t, m.RegisterEvent("orders.created", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			handled.Add(1)
			return nil, nil
		})))

	ctx := context.Background()
	_, err = m.PublishToOutbox(ctx, newOrderCreated("ord-42"), outbox.Options{})
	require.NoError(t, err)

	m.Start(ctx)
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool { return handled.Load() == 1 })

	health, err := m.Health(ctx)
	require.NoError(t, err)
	assert.Zero(t, health.OutboxPending)
}

func TestProcessIncoming_DropsRedeliveries(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	var handled atomic.Int32
	require.NoError(t, m.RegisterCommand("orders.create", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			handled.Add(1)
			return "done", nil
		})))

	ctx := context.Background()
	cmd := newCreateOrder("ord-42", 100)

	result, err := m.ProcessIncoming(ctx, cmd, "broker-a")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "done", result.Response)

	result, err = m.ProcessIncoming(ctx, cmd, "broker-b")
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, int32(1), handled.Load())
}

func TestSchedule_DeliversAtDueTime(t *testing.T) {
	m, err := New(WithConfig(fastConfig()))
	require.NoError(t, err)

	var handled atomic.Int32
	require.NoError(t, m.RegisterCommand("orders.remind", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			handled.Add(1)
			return nil, nil
		})))

	ctx := context.Background()
	_, err = m.Schedule(ctx, newSendReminder("ord"), time.Now().Add(20*time.Millisecond), scheduler.Options{})
	require.NoError(t, err)

	m.Start(ctx)
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool { return handled.Load() == 1 })
}

func TestCancelScheduled_PreventsDelivery(t *testing.T) {
	m, err := New(WithConfig(fastConfig()))
	require.NoError(t, err)

	var handled atomic.Int32
	require.NoError(t, m.RegisterCommand("orders.remind", messaging.HandlerFunc(
		func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (any, error) {
			handled.Add(1)
			return nil, nil
		})))

	ctx := context.Background()
	id, err := m.Schedule(ctx, newSendReminder("ord"), time.Now().Add(50*time.Millisecond), scheduler.Options{})
	require.NoError(t, err)
	require.NoError(t, m.CancelScheduled(ctx, id))

	m.Start(ctx)
	defer m.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, handled.Load())
}

func TestHealth_ReportsBacklogAndLimiter(t *testing.T) {
	cfg := fastConfig()
	cfg.RateCapacity = 10
	cfg.RateRefillPerSec = 5

	m, err := New(WithConfig(cfg))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = m.Enqueue(ctx, "", newSendReminder("ord"), queue.EnqueueOptions{})
	require.NoError(t, err)
	_, err = m.PublishToOutbox(ctx, newOrderCreated("ord"), outbox.Options{})
	require.NoError(t, err)
	_, err = m.Schedule(ctx, newSendReminder("ord"), time.Now().Add(time.Hour), scheduler.Options{})
	require.NoError(t, err)

	health, err := m.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, health.QueueDepth[DefaultQueue])
	assert.Equal(t, 1, health.OutboxPending)
	assert.Equal(t, 1, health.SchedulerPending)
	assert.Zero(t, health.DeadLetters)
	require.NotNil(t, health.RateLimiter)
	assert.Equal(t, float64(10), health.RateLimiter.Capacity)
}

func TestStartStop_Idempotent(t *testing.T) {
	m, err := New(WithConfig(fastConfig()))
	require.NoError(t, err)

	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx)
	m.Stop()
	m.Stop()
}
