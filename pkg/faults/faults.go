// Package faults classifies errors into a finite set of kinds that drive
// retry, caching and dead-letter decisions. Callers comparing failure kinds
// compare tags, never concrete types.
package faults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Kind is the classified failure tag.
type Kind string

const (
	// KindUnknown is the conservative default: surfaced, never cached,
	// never retried.
	KindUnknown Kind = "unknown"

	// KindValidation marks deterministic input validation failures.
	KindValidation Kind = "validation"

	// KindInvalidOperation marks deterministic business-rule violations.
	KindInvalidOperation Kind = "invalid_operation"

	// KindNotSupported marks operations the target does not support.
	KindNotSupported Kind = "not_supported"

	// KindFormat marks malformed payloads and parse failures.
	KindFormat Kind = "format"

	// KindUnauthorized marks authentication and authorization denials.
	KindUnauthorized Kind = "unauthorized"

	// KindNotFound marks deterministic missing-data failures.
	KindNotFound Kind = "not_found"

	// KindCancellation marks caller-initiated cancellation.
	KindCancellation Kind = "cancellation"

	// KindTimeout marks deadline expiry.
	KindTimeout Kind = "timeout"

	// KindIO marks transient I/O failures.
	KindIO Kind = "io"

	// KindNetwork marks transient network failures.
	KindNetwork Kind = "network"

	// KindConflict marks optimistic-concurrency conflicts, retried after
	// reload rather than blindly.
	KindConflict Kind = "conflict"

	// KindFatal marks resource exhaustion and corruption: surfaced, never
	// retried, never cached.
	KindFatal Kind = "fatal"
)

// Fault is an error carrying a classified kind. The original message and a
// type tag survive serialization, so a reconstructed failure compares equal
// by kind even when the concrete type is gone.
type Fault struct {
	Kind    Kind
	Message string
	Wrapped error
}

// New creates a classified fault.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Newf creates a classified fault with a formatted message.
func Newf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error without losing it.
func Wrap(kind Kind, err error) *Fault {
	if err == nil {
		return nil
	}
	return &Fault{Kind: kind, Message: err.Error(), Wrapped: err}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.Wrapped }

// Is matches faults by kind so errors.Is(err, faults.New(kind, "")) works
// against sentinel faults.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	return ok && t.Kind == f.Kind
}

// Classifier lets error types defined outside this package declare their
// kind without wrapping a Fault.
type Classifier interface {
	FaultKind() Kind
}

// Classify walks err's chain and returns its kind.
//
// Cancellation is checked before timeout so a cancellation that also
// satisfies a timeout interface is not misclassified.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}

	var c Classifier
	if errors.As(err, &c) {
		return c.FaultKind()
	}

	if errors.Is(err, context.Canceled) {
		return KindCancellation
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return KindIO
	}

	return KindUnknown
}

// IsTransient reports whether a kind is worth retrying.
func IsTransient(kind Kind) bool {
	switch kind {
	case KindTimeout, KindIO, KindNetwork:
		return true
	default:
		return false
	}
}

// IsDeterministic reports whether a failure of this kind will recur for the
// same input, making it safe to cache as an idempotent failure.
func IsDeterministic(kind Kind) bool {
	switch kind {
	case KindValidation, KindInvalidOperation, KindNotSupported, KindFormat,
		KindUnauthorized, KindNotFound:
		return true
	default:
		return false
	}
}

// IsFatal reports whether a failure must surface uncaught: never retried,
// never cached.
func IsFatal(kind Kind) bool { return kind == KindFatal }

// ValidationError aggregates the structured results of all validators that
// rejected a message. It classifies as KindValidation.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Is lets errors.Is match any ValidationError and KindValidation faults.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	f, ok := target.(*Fault)
	return ok && f.Kind == KindValidation
}

// Reconstruct rebuilds a classified error from a persisted (kind, message)
// pair. Used by the idempotency cache when replaying a cached failure.
func Reconstruct(kind Kind, message string) error {
	if kind == "" {
		kind = KindUnknown
	}
	return &Fault{Kind: kind, Message: message}
}
