package ringbuffer

import (
	"errors"
	"sync/atomic"
	"time"
)

const (
	consumerIdle int32 = iota
	consumerRunning
	consumerHalting
)

// EventHandler processes one slot. endOfBatch is true for the last sequence
// of the current batch, letting handlers flush per wake-up.
type EventHandler[T any] func(event *T, seq int64, endOfBatch bool) error

// ErrorHandler is invoked when an EventHandler returns an error. Processing
// continues with the next sequence; the faulted sequence is not retried.
type ErrorHandler[T any] func(err error, seq int64, event *T)

// BatchConsumer drains a ring buffer in batches. It owns one gating sequence
// initialised to InitialSequence; register it with the producer via
// RingBuffer.AddGating before publishing starts.
type BatchConsumer[T any] struct {
	rb       *RingBuffer[T]
	barrier  *Barrier
	handler  EventHandler[T]
	onError  ErrorHandler[T]
	seq      *Sequence
	state    atomic.Int32
	done     chan struct{}
	stopWait time.Duration
}

// ConsumerOption configures a BatchConsumer.
type ConsumerOption[T any] func(*BatchConsumer[T])

// WithErrorHandler sets the callback invoked for handler errors.
func WithErrorHandler[T any](onError ErrorHandler[T]) ConsumerOption[T] {
	return func(c *BatchConsumer[T]) {
		c.onError = onError
	}
}

// WithStopTimeout bounds how long Stop waits for the processing goroutine
// to exit. Default 5s.
func WithStopTimeout[T any](d time.Duration) ConsumerOption[T] {
	return func(c *BatchConsumer[T]) {
		c.stopWait = d
	}
}

// NewBatchConsumer creates a consumer reading from rb through barrier.
func NewBatchConsumer[T any](rb *RingBuffer[T], barrier *Barrier, handler EventHandler[T], opts ...ConsumerOption[T]) *BatchConsumer[T] {
	c := &BatchConsumer[T]{
		rb:       rb,
		barrier:  barrier,
		handler:  handler,
		seq:      NewSequence(InitialSequence),
		stopWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sequence returns the consumer's gating sequence.
func (c *BatchConsumer[T]) Sequence() *Sequence { return c.seq }

// Start launches the processing goroutine. Starting a running consumer
// returns ErrConsumerAlreadyStarted.
func (c *BatchConsumer[T]) Start() error {
	if !c.state.CompareAndSwap(consumerIdle, consumerRunning) {
		return ErrConsumerAlreadyStarted
	}
	c.barrier.ClearAlert()
	c.done = make(chan struct{})
	go c.run()
	return nil
}

// Stop alerts the barrier and waits bounded time for the processing
// goroutine to exit. Stopping an idle consumer is a no-op. Returns
// ErrWaitTimeout if the goroutine does not exit in time; the consumer stays
// halting and Stop may be called again to finish the wait.
func (c *BatchConsumer[T]) Stop() error {
	if c.state.CompareAndSwap(consumerRunning, consumerHalting) {
		c.barrier.Alert()
	} else if c.state.Load() != consumerHalting {
		return nil
	}

	select {
	case <-c.done:
		c.state.Store(consumerIdle)
		return nil
	case <-time.After(c.stopWait):
		return ErrWaitTimeout
	}
}

func (c *BatchConsumer[T]) run() {
	defer close(c.done)

	next := c.seq.Get() + 1
	for {
		available, err := c.barrier.WaitFor(next)
		switch {
		case errors.Is(err, ErrAlerted):
			if c.state.Load() == consumerHalting {
				return
			}
			c.barrier.ClearAlert()
			continue
		case errors.Is(err, ErrWaitTimeout):
			continue
		case err != nil:
			return
		}

		if available < next {
			continue
		}

		for seq := next; seq <= available; seq++ {
			event := c.rb.Get(seq)
			if herr := c.handler(event, seq, seq == available); herr != nil {
				if c.onError != nil {
					c.onError(herr, seq, event)
				}
				// Faulted sequence is skipped, not retried.
			}
			c.seq.Set(seq)
		}
		next = available + 1
	}
}
