package ringbuffer

import "errors"

var (
	// ErrAlerted is returned from a barrier wait when the barrier has been
	// alerted, forcing waiting consumers to exit.
	ErrAlerted = errors.New("sequence barrier alerted")

	// ErrWaitTimeout is returned by timeout-blocking wait strategies when
	// the configured interval elapses before the sequence is available.
	ErrWaitTimeout = errors.New("wait strategy timed out")

	// ErrCapacityNotPowerOfTwo is returned when a ring buffer is created
	// with a capacity that is not a positive power of two.
	ErrCapacityNotPowerOfTwo = errors.New("capacity must be a positive power of two")

	// ErrConsumerAlreadyStarted is returned when Start is called on a
	// running batch consumer.
	ErrConsumerAlreadyStarted = errors.New("batch consumer already started")
)
