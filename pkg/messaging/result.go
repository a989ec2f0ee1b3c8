package messaging

// ProcessingResult is the tagged outcome of a pipeline invocation. Every
// decorator returns a ProcessingResult; errors bubble as Go errors only for
// catastrophic failures.
type ProcessingResult struct {
	// Succeeded is true for a success outcome.
	Succeeded bool

	// Data carries the handler's return value on success, if any.
	Data any

	// Err is the failure cause. Nil on success.
	Err error

	// Reason is a short human-readable failure description.
	Reason string
}

// Success returns a successful result carrying data.
func Success(data any) ProcessingResult {
	return ProcessingResult{Succeeded: true, Data: data}
}

// Failure returns a failed result carrying the cause and a reason.
func Failure(err error, reason string) ProcessingResult {
	if reason == "" && err != nil {
		reason = err.Error()
	}
	return ProcessingResult{Err: err, Reason: reason}
}
