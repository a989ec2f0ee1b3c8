package ringbuffer

import (
	"runtime"
	"sync/atomic"
)

// sequencer coordinates slot reservation and publication between producers
// and the gating consumers.
type sequencer interface {
	// next reserves n sequences and returns the highest reserved one,
	// spinning while the buffer is full.
	next(n int64) int64

	// publish makes the reserved range lo..hi visible to consumers.
	publish(lo, hi int64)

	// cursor returns the highest published sequence counter.
	cursor() *Sequence

	// highestPublished returns the highest sequence in lo..hi whose slot
	// has actually been published.
	highestPublished(lo, hi int64) int64

	// addGating registers consumer sequences the producer must not lap.
	addGating(seqs ...*Sequence)
}

// singleProducerSequencer reserves sequences without atomics on the claim:
// exactly one goroutine may call next/publish.
type singleProducerSequencer struct {
	bufferSize int64
	wait       WaitStrategy

	cur    *Sequence
	gating []*Sequence

	// nextValue and cachedGating are owned by the single producer.
	nextValue    int64
	cachedGating int64
}

func newSingleProducerSequencer(bufferSize int64, wait WaitStrategy) *singleProducerSequencer {
	return &singleProducerSequencer{
		bufferSize:   bufferSize,
		wait:         wait,
		cur:          NewSequence(InitialSequence),
		nextValue:    InitialSequence,
		cachedGating: InitialSequence,
	}
}

func (s *singleProducerSequencer) next(n int64) int64 {
	next := s.nextValue + n
	wrapPoint := next - s.bufferSize

	if wrapPoint > s.cachedGating {
		for {
			min := minimumSequence(s.gating, s.nextValue)
			s.cachedGating = min
			if wrapPoint <= min {
				break
			}
			runtime.Gosched()
		}
	}

	s.nextValue = next
	return next
}

func (s *singleProducerSequencer) publish(lo, hi int64) {
	s.cur.Set(hi)
	s.wait.Signal()
}

func (s *singleProducerSequencer) cursor() *Sequence { return s.cur }

func (s *singleProducerSequencer) highestPublished(lo, hi int64) int64 {
	// With a single producer the cursor only moves after the slot is
	// written, so everything up to hi is readable.
	return hi
}

func (s *singleProducerSequencer) addGating(seqs ...*Sequence) {
	s.gating = append(s.gating, seqs...)
}

// multiProducerSequencer CAS-advances a shared claim counter and tracks
// per-slot availability: the availability ring records, for each slot
// position, which wrap generation is currently published so consumers can
// detect yet-unpublished reservations.
type multiProducerSequencer struct {
	bufferSize int64
	mask       int64
	shift      uint
	wait       WaitStrategy

	cur   *Sequence
	claim *Sequence

	gating       atomic.Pointer[[]*Sequence]
	cachedGating *Sequence

	available []atomic.Int64
}

func newMultiProducerSequencer(bufferSize int64, wait WaitStrategy) *multiProducerSequencer {
	s := &multiProducerSequencer{
		bufferSize:   bufferSize,
		mask:         bufferSize - 1,
		shift:        log2(bufferSize),
		wait:         wait,
		cur:          NewSequence(InitialSequence),
		claim:        NewSequence(InitialSequence),
		cachedGating: NewSequence(InitialSequence),
		available:    make([]atomic.Int64, bufferSize),
	}
	for i := range s.available {
		s.available[i].Store(-1)
	}
	empty := make([]*Sequence, 0)
	s.gating.Store(&empty)
	return s
}

func (s *multiProducerSequencer) next(n int64) int64 {
	for {
		current := s.claim.Get()
		next := current + n
		wrapPoint := next - s.bufferSize

		if wrapPoint > s.cachedGating.Get() {
			min := minimumSequence(*s.gating.Load(), current)
			s.cachedGating.Set(min)
			if wrapPoint > min {
				runtime.Gosched()
				continue
			}
		}

		if s.claim.CompareAndSwap(current, next) {
			return next
		}
	}
}

func (s *multiProducerSequencer) publish(lo, hi int64) {
	for seq := lo; seq <= hi; seq++ {
		// Mark the slot with its wrap generation.
		s.available[seq&s.mask].Store(seq >> s.shift)
	}

	// Advance the cursor over every contiguously published sequence. A
	// producer that published out of order leaves the cursor for whoever
	// fills the gap.
	for {
		current := s.cur.Get()
		if hi <= current {
			break
		}
		next := current
		for s.isAvailable(next + 1) {
			next++
		}
		if next == current || s.cur.CompareAndSwap(current, next) {
			break
		}
	}
	s.wait.Signal()
}

func (s *multiProducerSequencer) isAvailable(seq int64) bool {
	return s.available[seq&s.mask].Load() == seq>>s.shift
}

func (s *multiProducerSequencer) cursor() *Sequence { return s.cur }

func (s *multiProducerSequencer) highestPublished(lo, hi int64) int64 {
	for seq := lo; seq <= hi; seq++ {
		if !s.isAvailable(seq) {
			return seq - 1
		}
	}
	return hi
}

func (s *multiProducerSequencer) addGating(seqs ...*Sequence) {
	for {
		old := s.gating.Load()
		next := make([]*Sequence, len(*old), len(*old)+len(seqs))
		copy(next, *old)
		next = append(next, seqs...)
		if s.gating.CompareAndSwap(old, &next) {
			return
		}
	}
}

func log2(v int64) uint {
	var r uint
	for v > 1 {
		v >>= 1
		r++
	}
	return r
}
