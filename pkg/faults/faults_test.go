package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "net failure" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

var _ net.Error = (*fakeNetError)(nil)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain error", err: errors.New("boom"), want: KindUnknown},
		{name: "cancellation", err: context.Canceled, want: KindCancellation},
		{name: "wrapped cancellation", err: fmt.Errorf("dispatch: %w", context.Canceled), want: KindCancellation},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "net timeout", err: &fakeNetError{timeout: true}, want: KindTimeout},
		{name: "net failure", err: &fakeNetError{}, want: KindNetwork},
		{name: "fault", err: New(KindNotFound, "order missing"), want: KindNotFound},
		{name: "wrapped fault", err: fmt.Errorf("handler: %w", New(KindFatal, "corrupt")), want: KindFatal},
		{name: "validation", err: &ValidationError{Errors: []string{"CustomerId required"}}, want: KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_CancellationBeforeTimeout(t *testing.T) {
	// A context cancelled before its deadline must classify as
	// cancellation even though the deadline machinery is also armed.
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	cancel()
	assert.Equal(t, KindCancellation, Classify(ctx.Err()))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsTransient(KindTimeout))
	assert.True(t, IsTransient(KindNetwork))
	assert.True(t, IsTransient(KindIO))
	assert.False(t, IsTransient(KindCancellation))
	assert.False(t, IsTransient(KindValidation))
	assert.False(t, IsTransient(KindFatal))

	assert.True(t, IsDeterministic(KindValidation))
	assert.True(t, IsDeterministic(KindUnauthorized))
	assert.True(t, IsDeterministic(KindNotFound))
	assert.False(t, IsDeterministic(KindTimeout))
	assert.False(t, IsDeterministic(KindUnknown))
	assert.False(t, IsDeterministic(KindFatal))

	assert.True(t, IsFatal(KindFatal))
	assert.False(t, IsFatal(KindUnknown))
}

func TestFault_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindNotFound, "order 42"))
	assert.ErrorIs(t, err, New(KindNotFound, ""))
	assert.NotErrorIs(t, err, New(KindTimeout, ""))
}

func TestReconstruct(t *testing.T) {
	original := New(KindInvalidOperation, "already shipped")
	rebuilt := Reconstruct(Classify(original), original.Message)

	assert.Equal(t, Classify(original), Classify(rebuilt))
	assert.Contains(t, rebuilt.Error(), "already shipped")

	assert.Equal(t, KindUnknown, Classify(Reconstruct("", "lost")))
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Errors: []string{"CustomerId required", "Amount must be positive"}}
	assert.Contains(t, err.Error(), "CustomerId required")
	assert.Contains(t, err.Error(), "Amount must be positive")
	assert.ErrorIs(t, fmt.Errorf("pipeline: %w", err), &ValidationError{})
}
