package ringbuffer

// RingBuffer is a fixed-size pre-allocated slot array coordinated by a
// sequencer. Producers reserve sequences, fill the slot, then publish;
// consumers only observe sequences up to the cursor, and producers cannot
// advance past min(gating sequences) + capacity.
//
// Slots are exclusively owned by the buffer. A producer owns a slot between
// reserve and publish; consumers must treat slots as read-only.
type RingBuffer[T any] struct {
	slots []T
	mask  int64
	seq   sequencer
	wait  WaitStrategy
}

// NewSingleProducer creates a ring buffer for exactly one publishing
// goroutine. capacity must be a positive power of two.
func NewSingleProducer[T any](capacity int, wait WaitStrategy) (*RingBuffer[T], error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	if wait == nil {
		wait = NewBlockingWaitStrategy()
	}
	return &RingBuffer[T]{
		slots: make([]T, capacity),
		mask:  int64(capacity - 1),
		seq:   newSingleProducerSequencer(int64(capacity), wait),
		wait:  wait,
	}, nil
}

// NewMultiProducer creates a ring buffer safe for concurrent publishers.
// capacity must be a positive power of two.
func NewMultiProducer[T any](capacity int, wait WaitStrategy) (*RingBuffer[T], error) {
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	if wait == nil {
		wait = NewBlockingWaitStrategy()
	}
	return &RingBuffer[T]{
		slots: make([]T, capacity),
		mask:  int64(capacity - 1),
		seq:   newMultiProducerSequencer(int64(capacity), wait),
		wait:  wait,
	}, nil
}

func validateCapacity(capacity int) error {
	if capacity < 1 || capacity&(capacity-1) != 0 {
		return ErrCapacityNotPowerOfTwo
	}
	return nil
}

// Capacity returns the number of slots.
func (r *RingBuffer[T]) Capacity() int64 { return r.mask + 1 }

// Next reserves the next sequence, spinning while the buffer is full.
func (r *RingBuffer[T]) Next() int64 { return r.seq.next(1) }

// NextN reserves n sequences and returns the highest. The reserved range is
// hi-n+1 .. hi.
func (r *RingBuffer[T]) NextN(n int64) int64 { return r.seq.next(n) }

// Get returns a pointer to the slot for seq. Valid for writing only between
// reserve and publish by the reserving producer, and for reading only for
// sequences at or below the cursor.
func (r *RingBuffer[T]) Get(seq int64) *T { return &r.slots[seq&r.mask] }

// Publish makes seq visible to consumers.
func (r *RingBuffer[T]) Publish(seq int64) { r.seq.publish(seq, seq) }

// PublishRange makes the inclusive range lo..hi visible to consumers.
func (r *RingBuffer[T]) PublishRange(lo, hi int64) { r.seq.publish(lo, hi) }

// Cursor returns the highest published sequence.
func (r *RingBuffer[T]) Cursor() int64 { return r.seq.cursor().Get() }

// AddGating registers consumer sequences that bound the producer. Every
// consumer must be gated before the producer starts publishing, or it may be
// lapped.
func (r *RingBuffer[T]) AddGating(seqs ...*Sequence) { r.seq.addGating(seqs...) }

// NewBarrier creates a barrier that waits on the cursor, further constrained
// by the given dependent sequences (for consumers that must run behind other
// consumers).
func (r *RingBuffer[T]) NewBarrier(dependents ...*Sequence) *Barrier {
	return newBarrier(r.seq, r.wait, dependents)
}
