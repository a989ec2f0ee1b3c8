package ringbuffer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSingleProducer_CapacityValidation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{name: "power of two", capacity: 8, wantErr: false},
		{name: "one", capacity: 1, wantErr: false},
		{name: "zero", capacity: 0, wantErr: true},
		{name: "negative", capacity: -4, wantErr: true},
		{name: "not power of two", capacity: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSingleProducer[int](tt.capacity, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCapacityNotPowerOfTwo)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSingleProducer_FIFO(t *testing.T) {
	rb, err := NewSingleProducer[int](8, NewBlockingWaitStrategy())
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		received []int
	)
	consumer := NewBatchConsumer(rb, rb.NewBarrier(), func(event *int, seq int64, endOfBatch bool) error {
		mu.Lock()
		received = append(received, *event)
		mu.Unlock()
		return nil
	})
	rb.AddGating(consumer.Sequence())
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	const total = 64
	for i := 0; i < total; i++ {
		seq := rb.Next()
		*rb.Get(seq) = i
		rb.Publish(seq)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == total
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < total; i++ {
		assert.Equal(t, i, received[i])
	}
}

func TestSingleProducer_BatchBoundary(t *testing.T) {
	rb, err := NewSingleProducer[int64](8, NewBlockingWaitStrategy())
	require.NoError(t, err)

	type observation struct {
		seq        int64
		endOfBatch bool
	}
	var (
		mu  sync.Mutex
		obs []observation
	)
	consumer := NewBatchConsumer(rb, rb.NewBarrier(), func(event *int64, seq int64, endOfBatch bool) error {
		mu.Lock()
		obs = append(obs, observation{seq: seq, endOfBatch: endOfBatch})
		mu.Unlock()
		return nil
	})
	rb.AddGating(consumer.Sequence())

	// Publish before starting the consumer so sequences 0..6 arrive in one
	// wake-up.
	for i := int64(0); i <= 6; i++ {
		seq := rb.Next()
		*rb.Get(seq) = i
		rb.Publish(seq)
	}
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(obs) == 7
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, o := range obs {
		assert.Equal(t, int64(i), o.seq)
	}
	// Exactly one endOfBatch covering the then-latest available sequence.
	var boundaries int
	for _, o := range obs {
		if o.endOfBatch {
			boundaries++
		}
	}
	assert.Equal(t, 1, boundaries)
	assert.True(t, obs[6].endOfBatch)
}

func TestSingleProducer_Backpressure(t *testing.T) {
	rb, err := NewSingleProducer[int](4, NewYieldingWaitStrategy())
	require.NoError(t, err)

	gate := NewSequence(InitialSequence)
	rb.AddGating(gate)

	for i := 0; i < 4; i++ {
		seq := rb.Next()
		*rb.Get(seq) = i
		rb.Publish(seq)
	}

	// Buffer is full: the next reservation must spin until the gating
	// sequence advances.
	claimed := make(chan int64)
	go func() {
		claimed <- rb.Next()
	}()

	select {
	case <-claimed:
		t.Fatal("producer advanced past gating sequence + capacity")
	case <-time.After(50 * time.Millisecond):
	}

	gate.Set(0)
	select {
	case seq := <-claimed:
		assert.Equal(t, int64(4), seq)
		rb.Publish(seq)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not resume after gating advance")
	}

	assert.LessOrEqual(t, rb.Cursor(), gate.Get()+rb.Capacity())
}

func TestMultiProducer_AllValuesObserved(t *testing.T) {
	rb, err := NewMultiProducer[int](64, NewBlockingWaitStrategy())
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	consumer := NewBatchConsumer(rb, rb.NewBarrier(), func(event *int, seq int64, endOfBatch bool) error {
		mu.Lock()
		seen[*event] = true
		mu.Unlock()
		return nil
	})
	rb.AddGating(consumer.Sequence())
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	const producers = 4
	const perProducer = 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				seq := rb.Next()
				*rb.Get(seq) = p*perProducer + i
				rb.Publish(seq)
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == producers*perProducer
	}, 5*time.Second, time.Millisecond)
}

func TestMultiProducer_BatchReservation(t *testing.T) {
	rb, err := NewMultiProducer[int](16, NewBlockingWaitStrategy())
	require.NoError(t, err)

	var count atomic.Int64
	consumer := NewBatchConsumer(rb, rb.NewBarrier(), func(event *int, seq int64, endOfBatch bool) error {
		count.Add(1)
		return nil
	})
	rb.AddGating(consumer.Sequence())
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	hi := rb.NextN(5)
	for seq := hi - 4; seq <= hi; seq++ {
		*rb.Get(seq) = int(seq)
	}
	rb.PublishRange(hi-4, hi)

	require.Eventually(t, func() bool {
		return count.Load() == 5
	}, 2*time.Second, time.Millisecond)
}

func TestBarrier_AlertAndClear(t *testing.T) {
	rb, err := NewSingleProducer[int](8, NewBlockingWaitStrategy())
	require.NoError(t, err)
	barrier := rb.NewBarrier()

	waitErr := make(chan error, 1)
	go func() {
		_, err := barrier.WaitFor(0)
		waitErr <- err
	}()

	barrier.Alert()
	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, ErrAlerted)
	case <-time.After(2 * time.Second):
		t.Fatal("alert did not wake waiting consumer")
	}

	// After ClearAlert the barrier resumes normal operation.
	barrier.ClearAlert()
	seq := rb.Next()
	*rb.Get(seq) = 7
	rb.Publish(seq)

	available, err := barrier.WaitFor(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), available)
}

func TestTimeoutBlockingWaitStrategy(t *testing.T) {
	rb, err := NewSingleProducer[int](8, NewTimeoutBlockingWaitStrategy(20*time.Millisecond))
	require.NoError(t, err)
	barrier := rb.NewBarrier()

	start := time.Now()
	_, werr := barrier.WaitFor(0)
	assert.ErrorIs(t, werr, ErrWaitTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestBatchConsumer_HandlerErrorSkipsSequence(t *testing.T) {
	rb, err := NewSingleProducer[int](8, NewBlockingWaitStrategy())
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		processed []int
		faulted   []int64
	)
	consumer := NewBatchConsumer(rb, rb.NewBarrier(),
		func(event *int, seq int64, endOfBatch bool) error {
			if *event == 1 {
				return assert.AnError
			}
			mu.Lock()
			processed = append(processed, *event)
			mu.Unlock()
			return nil
		},
		WithErrorHandler[int](func(err error, seq int64, event *int) {
			mu.Lock()
			faulted = append(faulted, seq)
			mu.Unlock()
		}),
	)
	rb.AddGating(consumer.Sequence())
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	for i := 0; i < 3; i++ {
		seq := rb.Next()
		*rb.Get(seq) = i
		rb.Publish(seq)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 2 && len(faulted) == 1
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 2}, processed)
	assert.Equal(t, []int64{1}, faulted)
}

func TestBatchConsumer_StopTimeoutCanBeRetried(t *testing.T) {
	rb, err := NewSingleProducer[int](8, NewBlockingWaitStrategy())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	consumer := NewBatchConsumer(rb, rb.NewBarrier(),
		func(event *int, seq int64, endOfBatch bool) error {
			close(entered)
			<-release
			return nil
		},
		WithStopTimeout[int](10*time.Millisecond))
	rb.AddGating(consumer.Sequence())
	require.NoError(t, consumer.Start())

	seq := rb.Next()
	*rb.Get(seq) = 1
	rb.Publish(seq)

	<-entered
	assert.ErrorIs(t, consumer.Stop(), ErrWaitTimeout, "handler still busy")
	assert.ErrorIs(t, consumer.Start(), ErrConsumerAlreadyStarted)

	close(release)
	require.NoError(t, consumer.Stop())

	// The consumer is idle again and restarts cleanly.
	require.NoError(t, consumer.Start())
	require.NoError(t, consumer.Stop())
}

func TestBatchConsumer_StartStopIdempotent(t *testing.T) {
	rb, err := NewSingleProducer[int](8, NewBlockingWaitStrategy())
	require.NoError(t, err)
	consumer := NewBatchConsumer(rb, rb.NewBarrier(), func(event *int, seq int64, endOfBatch bool) error {
		return nil
	})
	rb.AddGating(consumer.Sequence())

	require.NoError(t, consumer.Start())
	assert.ErrorIs(t, consumer.Start(), ErrConsumerAlreadyStarted)

	require.NoError(t, consumer.Stop())
	require.NoError(t, consumer.Stop())

	// Restart after stop.
	require.NoError(t, consumer.Start())
	require.NoError(t, consumer.Stop())
}
