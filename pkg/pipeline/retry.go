package pipeline

import (
	"context"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/policies"
)

// RetryStage re-runs the inner stages according to a retry policy. The
// attempt counters on the processing context are updated in place so inner
// stages and metrics observe them. A cancelled context stops retrying
// immediately.
type RetryStage struct {
	next   Processor
	policy policies.RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryStage wraps next with the given policy.
func NewRetryStage(next Processor, policy policies.RetryPolicy) *RetryStage {
	return &RetryStage{next: next, policy: policy, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RetryStage) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	for attempt := 0; ; attempt++ {
		pc.Attempt = attempt

		result := s.next.Process(ctx, msg, pc)
		if result.Succeeded {
			return result
		}

		if ctx.Err() != nil {
			return result
		}
		if !s.policy.ShouldRetry(result.Err, attempt) {
			return result
		}

		if err := s.sleep(ctx, s.policy.RetryDelay(attempt)); err != nil {
			return result
		}
		pc.RetryCount++
	}
}
