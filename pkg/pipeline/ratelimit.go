package pipeline

import (
	"context"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/ratelimit"
)

// RateLimitStage meters dispatches against a token bucket, keyed by message
// type when the limiter scopes per key. Throttled dispatches fail with a
// timeout-kind fault so retry policies treat them as transient and the
// idempotency stage never caches them.
type RateLimitStage struct {
	next    Processor
	limiter *ratelimit.Limiter
}

// NewRateLimitStage wraps next with limiter.
func NewRateLimitStage(next Processor, limiter *ratelimit.Limiter) *RateLimitStage {
	return &RateLimitStage{next: next, limiter: limiter}
}

func (s *RateLimitStage) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	decision, err := s.limiter.Acquire(ctx, msg.MessageType(), 1)
	if err != nil {
		return messaging.Failure(err, "rate limit wait interrupted")
	}
	if !decision.Allowed {
		return messaging.Failure(
			faults.Newf(faults.KindTimeout, "rate limit exceeded for %s, retry after %s",
				msg.MessageType(), decision.RetryAfter),
			"rate limited")
	}
	return s.next.Process(ctx, msg, pc)
}
