// Package ringbuffer implements a bounded lock-free queue with two-phase
// publish (reserve, fill, publish), pluggable wait strategies and gating
// sequences for backpressure.
//
// Capacity is always a power of two; slot lookup is sequence & (capacity-1).
// All slots are pre-allocated and the publish/consume hot path does not
// allocate.
package ringbuffer

import "sync/atomic"

// InitialSequence is the value a consumer sequence starts at, one before the
// first valid sequence.
const InitialSequence int64 = -1

// Sequence is a 64-bit monotonic counter padded to its own cache line to
// avoid false sharing between producer and consumer counters.
type Sequence struct {
	_     [56]byte
	value atomic.Int64
	_     [56]byte
}

// NewSequence creates a sequence starting at initial.
func NewSequence(initial int64) *Sequence {
	s := &Sequence{}
	s.value.Store(initial)
	return s
}

// Get returns the current value.
func (s *Sequence) Get() int64 { return s.value.Load() }

// Set stores a new value.
func (s *Sequence) Set(v int64) { s.value.Store(v) }

// CompareAndSwap atomically replaces old with new.
func (s *Sequence) CompareAndSwap(old, new int64) bool {
	return s.value.CompareAndSwap(old, new)
}

// minimumSequence returns the smallest value among sequences, or fallback
// when the set is empty.
func minimumSequence(sequences []*Sequence, fallback int64) int64 {
	min := fallback
	for _, s := range sequences {
		if v := s.Get(); v < min {
			min = v
		}
	}
	return min
}
