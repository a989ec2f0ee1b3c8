package pipeline

import (
	"context"

	"github.com/heromessaging/heromessaging-go/pkg/idempotency"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// IdempotencyStage replays cached outcomes for messages already processed.
// Cache failures degrade to processing normally: an unavailable cache must
// never block the pipeline.
type IdempotencyStage struct {
	next   Processor
	store  idempotency.Store
	policy idempotency.Policy
	logger observability.Logger
}

// NewIdempotencyStage wraps next with outcome caching on store.
func NewIdempotencyStage(next Processor, store idempotency.Store, policy idempotency.Policy, logger observability.Logger) *IdempotencyStage {
	if policy.KeyGenerator == nil {
		policy.KeyGenerator = idempotency.DefaultKeyGenerator
	}
	if policy.IsIdempotentFailure == nil {
		policy.IsIdempotentFailure = idempotency.DefaultClassifier
	}
	return &IdempotencyStage{next: next, store: store, policy: policy, logger: logger}
}

func (s *IdempotencyStage) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	key := s.policy.KeyGenerator(msg, pc)

	cached, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "idempotency cache read failed, processing without dedup",
			observability.String("key", key), observability.Error(err))
	}
	if cached != nil {
		switch cached.Status {
		case idempotency.StatusSuccess:
			return messaging.Success(cached.SuccessResult)
		case idempotency.StatusFailure:
			return messaging.Failure(cached.ReconstructFailure(), "replayed cached failure")
		}
		// An in-flight marker falls through to normal processing.
	}

	result := s.next.Process(ctx, msg, pc)

	if result.Succeeded {
		if err := s.store.StoreSuccess(ctx, key, result.Data, s.policy.SuccessTTL); err != nil {
			s.logger.Warn(ctx, "idempotency cache write failed",
				observability.String("key", key), observability.Error(err))
		}
		return result
	}

	if s.policy.CacheFailures && result.Err != nil && s.policy.IsIdempotentFailure(result.Err) {
		if err := s.store.StoreFailure(ctx, key, result.Err, s.policy.FailureTTL); err != nil {
			s.logger.Warn(ctx, "idempotency cache write failed",
				observability.String("key", key), observability.Error(err))
		}
	}
	return result
}
