package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

type sendReminder struct {
	messaging.CommandBase
	Tag string
}

func (sendReminder) MessageType() string { return "reminders.send" }

func newReminder(tag string) sendReminder {
	return sendReminder{CommandBase: messaging.NewCommandBase(), Tag: tag}
}

type reminderDue struct {
	messaging.EventBase
	Tag string
}

func (reminderDue) MessageType() string { return "reminders.due" }

type lookupReminder struct {
	messaging.QueryBase
}

func (lookupReminder) MessageType() string { return "reminders.lookup" }

type captureSender struct {
	mu        sync.Mutex
	sent      []messaging.Message
	published []messaging.Message
}

func (c *captureSender) Send(ctx context.Context, msg messaging.Message) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil, nil
}

func (c *captureSender) Publish(ctx context.Context, msg messaging.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	return nil
}

func (c *captureSender) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent), len(c.published)
}

func TestAdd_RejectsReplyExpectingMessages(t *testing.T) {
	storage := NewMemoryStorage()

	_, err := storage.Add(context.Background(), lookupReminder{QueryBase: messaging.NewQueryBase()},
		time.Now().Add(time.Hour), Options{})
	assert.ErrorIs(t, err, ErrUnschedulableMessage)
}

func TestAdd_RejectsPastDeliverAt(t *testing.T) {
	storage := NewMemoryStorage()

	_, err := storage.Add(context.Background(), newReminder("a"), time.Now().Add(-time.Hour), Options{})
	assert.ErrorIs(t, err, ErrPastDeliverAt)
}

func TestClaimDue_OnlyDueEntriesInOrder(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	base := time.Now()
	storage.now = func() time.Time { return base }

	early, err := storage.Add(ctx, newReminder("early"), base.Add(time.Minute), Options{})
	require.NoError(t, err)
	_, err = storage.Add(ctx, newReminder("late"), base.Add(3*time.Minute), Options{})
	require.NoError(t, err)
	urgent, err := storage.Add(ctx, newReminder("urgent"), base.Add(time.Minute), Options{Priority: 5})
	require.NoError(t, err)

	due, err := storage.ClaimDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 2, "late entry is not due yet")
	assert.Equal(t, urgent.ID, due[0].ID, "same instant, higher priority first")
	assert.Equal(t, early.ID, due[1].ID)

	// Claimed entries are delivering; a second claim finds nothing.
	again, err := storage.ClaimDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	pending, err := storage.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestCancel(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	entry, err := storage.Add(ctx, newReminder("a"), time.Now().Add(time.Hour), Options{})
	require.NoError(t, err)

	require.NoError(t, storage.Cancel(ctx, entry.ID))
	// Cancelling twice is a no-op.
	require.NoError(t, storage.Cancel(ctx, entry.ID))

	stored, err := storage.Entry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	assert.ErrorIs(t, storage.Cancel(ctx, "unknown"), ErrNotFound)
}

func TestCancel_DeliveredEntryNotCancellable(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	base := time.Now()
	storage.now = func() time.Time { return base }

	entry, err := storage.Add(ctx, newReminder("a"), base.Add(time.Minute), Options{})
	require.NoError(t, err)

	_, err = storage.ClaimDue(ctx, base.Add(2*time.Minute), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, storage.Cancel(ctx, entry.ID), ErrNotCancellable)
}

func TestWorker_DeliversDueAndRoutesByKind(t *testing.T) {
	storage := NewMemoryStorage()
	sender := &captureSender{}
	ctx := context.Background()

	base := time.Now()
	storage.now = func() time.Time { return base }

	cmd, err := storage.Add(ctx, newReminder("cmd"), base.Add(time.Second), Options{})
	require.NoError(t, err)
	event, err := storage.Add(ctx, reminderDue{EventBase: messaging.NewEventBase(), Tag: "evt"}, base.Add(time.Second), Options{})
	require.NoError(t, err)
	future, err := storage.Add(ctx, newReminder("future"), base.Add(time.Hour), Options{})
	require.NoError(t, err)

	worker := NewWorker(storage, sender, WithPollInterval(time.Millisecond, 10*time.Millisecond))
	worker.now = func() time.Time { return base.Add(2 * time.Second) }
	worker.Start(ctx)
	defer worker.Stop()

	waitFor(t, time.Second, func() bool {
		sent, published := sender.counts()
		return sent == 1 && published == 1
	})

	stored, err := storage.Entry(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, stored.Status)

	stored, err = storage.Entry(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, stored.Status)

	stored, err = storage.Entry(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status, "future entry stays pending")
}

func TestWorker_CancelledEntryNeverDelivered(t *testing.T) {
	storage := NewMemoryStorage()
	sender := &captureSender{}
	ctx := context.Background()

	base := time.Now()
	storage.now = func() time.Time { return base }

	entry, err := storage.Add(ctx, newReminder("a"), base.Add(time.Second), Options{})
	require.NoError(t, err)
	require.NoError(t, storage.Cancel(ctx, entry.ID))

	worker := NewWorker(storage, sender, WithPollInterval(time.Millisecond, 10*time.Millisecond))
	worker.now = func() time.Time { return base.Add(time.Minute) }
	worker.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	worker.Stop()

	sent, published := sender.counts()
	assert.Zero(t, sent)
	assert.Zero(t, published)
}

func TestWorker_SkipIfPastDue(t *testing.T) {
	storage := NewMemoryStorage()
	sender := &captureSender{}
	ctx := context.Background()

	base := time.Now()
	storage.now = func() time.Time { return base }

	entry, err := storage.Add(ctx, newReminder("stale"), base.Add(time.Second),
		Options{SkipIfPastDue: true, PastDueTolerance: time.Minute})
	require.NoError(t, err)

	worker := NewWorker(storage, sender, WithPollInterval(time.Millisecond, 10*time.Millisecond))
	// The worker wakes up long after the tolerance window.
	worker.now = func() time.Time { return base.Add(time.Hour) }
	worker.Start(ctx)
	defer worker.Stop()

	waitFor(t, time.Second, func() bool {
		stored, err := storage.Entry(ctx, entry.ID)
		return err == nil && stored.Status == StatusFailed
	})

	sent, published := sender.counts()
	assert.Zero(t, sent)
	assert.Zero(t, published)

	stored, _ := storage.Entry(ctx, entry.ID)
	assert.Contains(t, stored.LastError, "past due")
}

func TestWorker_StopWithoutStartReturns(t *testing.T) {
	worker := NewWorker(NewMemoryStorage(), &captureSender{})

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a worker that never started")
	}
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
