package ringbuffer

import (
	"runtime"
	"sync"
	"time"
)

// WaitStrategy decides how a consumer waits for a sequence to become
// available.
//
// WaitFor blocks until available() reports at least seq, returning the
// highest available sequence. It must call alerted() periodically and return
// its error as soon as it reports one. Signal wakes blocked waiters after a
// publish; it is a no-op for spinning strategies.
//
// Latency/CPU trade-off, roughly: busy-spin <10µs at a full core, yielding
// ~50-100µs, sleeping ~100µs-1ms, blocking ~1-5ms at minimal CPU.
type WaitStrategy interface {
	WaitFor(seq int64, available func() int64, alerted func() error) (int64, error)
	Signal()
}

// BusySpinWaitStrategy spins in a tight loop. Lowest latency, burns a core.
type BusySpinWaitStrategy struct{}

func NewBusySpinWaitStrategy() *BusySpinWaitStrategy { return &BusySpinWaitStrategy{} }

func (*BusySpinWaitStrategy) WaitFor(seq int64, available func() int64, alerted func() error) (int64, error) {
	for {
		if err := alerted(); err != nil {
			return 0, err
		}
		if av := available(); av >= seq {
			return av, nil
		}
	}
}

func (*BusySpinWaitStrategy) Signal() {}

// YieldingWaitStrategy spins a bounded number of times, then yields the
// processor between checks.
type YieldingWaitStrategy struct {
	spinTries int
}

func NewYieldingWaitStrategy() *YieldingWaitStrategy {
	return &YieldingWaitStrategy{spinTries: 100}
}

func (w *YieldingWaitStrategy) WaitFor(seq int64, available func() int64, alerted func() error) (int64, error) {
	counter := w.spinTries
	for {
		if err := alerted(); err != nil {
			return 0, err
		}
		if av := available(); av >= seq {
			return av, nil
		}
		if counter > 0 {
			counter--
			continue
		}
		runtime.Gosched()
	}
}

func (*YieldingWaitStrategy) Signal() {}

// SleepingWaitStrategy backs off progressively: tight spins, then yields,
// then short time-sliced sleeps. Low CPU at the cost of wake-up latency.
type SleepingWaitStrategy struct {
	retries  int
	sleepFor time.Duration
}

func NewSleepingWaitStrategy() *SleepingWaitStrategy {
	return &SleepingWaitStrategy{retries: 200, sleepFor: 100 * time.Microsecond}
}

func (w *SleepingWaitStrategy) WaitFor(seq int64, available func() int64, alerted func() error) (int64, error) {
	counter := w.retries
	for {
		if err := alerted(); err != nil {
			return 0, err
		}
		if av := available(); av >= seq {
			return av, nil
		}
		switch {
		case counter > 100:
			counter--
		case counter > 0:
			counter--
			runtime.Gosched()
		default:
			time.Sleep(w.sleepFor)
		}
	}
}

func (*SleepingWaitStrategy) Signal() {}

// BlockingWaitStrategy parks waiters on a condition variable until a
// producer signals a publish. Minimal CPU; Signal must wake all waiters.
type BlockingWaitStrategy struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	w := &BlockingWaitStrategy{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *BlockingWaitStrategy) WaitFor(seq int64, available func() int64, alerted func() error) (int64, error) {
	for {
		if err := alerted(); err != nil {
			return 0, err
		}
		if av := available(); av >= seq {
			return av, nil
		}
		w.mu.Lock()
		// Re-check under the lock so a publish between the check and the
		// wait cannot be missed.
		if av := available(); av >= seq {
			w.mu.Unlock()
			return av, nil
		}
		if err := alerted(); err != nil {
			w.mu.Unlock()
			return 0, err
		}
		w.cond.Wait()
		w.mu.Unlock()
	}
}

func (w *BlockingWaitStrategy) Signal() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// TimeoutBlockingWaitStrategy behaves like BlockingWaitStrategy but fails
// with ErrWaitTimeout when the configured interval elapses.
type TimeoutBlockingWaitStrategy struct {
	mu      sync.Mutex
	cond    *sync.Cond
	timeout time.Duration
}

func NewTimeoutBlockingWaitStrategy(timeout time.Duration) *TimeoutBlockingWaitStrategy {
	w := &TimeoutBlockingWaitStrategy{timeout: timeout}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *TimeoutBlockingWaitStrategy) WaitFor(seq int64, available func() int64, alerted func() error) (int64, error) {
	deadline := time.Now().Add(w.timeout)

	// sync.Cond has no timed wait, so a timer broadcasts at the deadline
	// and the loop converts the expiry into ErrWaitTimeout.
	timer := time.AfterFunc(w.timeout, w.Signal)
	defer timer.Stop()

	for {
		if err := alerted(); err != nil {
			return 0, err
		}
		if av := available(); av >= seq {
			return av, nil
		}
		if time.Now().After(deadline) {
			return 0, ErrWaitTimeout
		}
		w.mu.Lock()
		if av := available(); av >= seq {
			w.mu.Unlock()
			return av, nil
		}
		if err := alerted(); err != nil {
			w.mu.Unlock()
			return 0, err
		}
		if time.Now().After(deadline) {
			w.mu.Unlock()
			return 0, ErrWaitTimeout
		}
		w.cond.Wait()
		w.mu.Unlock()
	}
}

func (w *TimeoutBlockingWaitStrategy) Signal() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}
