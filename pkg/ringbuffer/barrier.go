package ringbuffer

import "sync/atomic"

// Barrier is the consumer-side view of the sequencer: it waits for a target
// sequence on the cursor, constrained by the minimum of its dependent
// sequences, and supports alerting to force waiting consumers out.
type Barrier struct {
	seq        sequencer
	wait       WaitStrategy
	dependents []*Sequence
	alerted    atomic.Bool
}

func newBarrier(seq sequencer, wait WaitStrategy, dependents []*Sequence) *Barrier {
	return &Barrier{
		seq:        seq,
		wait:       wait,
		dependents: dependents,
	}
}

// WaitFor blocks until sequence seq is available and returns the highest
// published sequence reachable, which may be greater than seq. It returns
// ErrAlerted after Alert, or ErrWaitTimeout from a timeout-blocking
// strategy.
func (b *Barrier) WaitFor(seq int64) (int64, error) {
	available, err := b.wait.WaitFor(seq, b.availableSequence, b.checkAlert)
	if err != nil {
		return 0, err
	}
	if available < seq {
		return available, nil
	}
	return b.seq.highestPublished(seq, available), nil
}

func (b *Barrier) availableSequence() int64 {
	available := b.seq.cursor().Get()
	if len(b.dependents) > 0 {
		available = minimumSequence(b.dependents, available)
	}
	return available
}

func (b *Barrier) checkAlert() error {
	if b.alerted.Load() {
		return ErrAlerted
	}
	return nil
}

// Alert forces every consumer waiting on this barrier to exit with
// ErrAlerted. The barrier stays alerted until ClearAlert.
func (b *Barrier) Alert() {
	b.alerted.Store(true)
	b.wait.Signal()
}

// ClearAlert resumes normal operation after an alert.
func (b *Barrier) ClearAlert() { b.alerted.Store(false) }

// IsAlerted reports whether the barrier is in the alerted state.
func (b *Barrier) IsAlerted() bool { return b.alerted.Load() }
