package pipeline

import (
	"github.com/heromessaging/heromessaging-go/pkg/idempotency"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
	"github.com/heromessaging/heromessaging-go/pkg/policies"
	"github.com/heromessaging/heromessaging-go/pkg/ratelimit"
)

// Builder assembles a pipeline around a handler. Stages are optional and
// composed in a fixed canonical order regardless of configuration order,
// outermost first:
//
//	validation -> metrics -> rate limit -> idempotency -> retry -> transaction -> handler
//
// Validation sits outside retry so a message is validated once, the rate
// limit sits outside idempotency so cache replays still consume a token, and
// idempotency sits outside retry so the cache stores the final outcome of
// all attempts, not intermediate failures.
type Builder struct {
	validators        []Validator
	obs               observability.Observability
	limiter           *ratelimit.Limiter
	idempotencyStore  idempotency.Store
	idempotencyPolicy idempotency.Policy
	retryPolicy       policies.RetryPolicy
	uow               UnitOfWork
}

// NewBuilder creates an empty pipeline builder.
func NewBuilder() *Builder {
	return &Builder{idempotencyPolicy: idempotency.DefaultPolicy()}
}

// WithValidation appends validators, run in order.
func (b *Builder) WithValidation(validators ...Validator) *Builder {
	b.validators = append(b.validators, validators...)
	return b
}

// WithObservability enables the metrics stage and stage logging.
func (b *Builder) WithObservability(obs observability.Observability) *Builder {
	b.obs = obs
	return b
}

// WithRateLimit enables the rate-limit stage on limiter.
func (b *Builder) WithRateLimit(limiter *ratelimit.Limiter) *Builder {
	b.limiter = limiter
	return b
}

// WithIdempotency enables outcome caching on store under policy.
func (b *Builder) WithIdempotency(store idempotency.Store, policy idempotency.Policy) *Builder {
	b.idempotencyStore = store
	b.idempotencyPolicy = policy
	return b
}

// WithRetry enables the retry stage under policy.
func (b *Builder) WithRetry(policy policies.RetryPolicy) *Builder {
	b.retryPolicy = policy
	return b
}

// WithTransaction wraps handler execution in uow.
func (b *Builder) WithTransaction(uow UnitOfWork) *Builder {
	b.uow = uow
	return b
}

// Build assembles the pipeline terminating in handler.
func (b *Builder) Build(handler messaging.Handler) Processor {
	var p Processor = NewInvoker(handler)

	if b.uow != nil {
		p = NewTransactionStage(p, b.uow)
	}
	if b.retryPolicy != nil {
		p = NewRetryStage(p, b.retryPolicy)
	}
	if b.idempotencyStore != nil {
		var logger observability.Logger
		if b.obs != nil {
			logger = b.obs.Logger()
		} else {
			logger = NewProviderlessLogger()
		}
		p = NewIdempotencyStage(p, b.idempotencyStore, b.idempotencyPolicy, logger)
	}
	if b.limiter != nil {
		p = NewRateLimitStage(p, b.limiter)
	}
	if b.obs != nil {
		p = NewMetricsStage(p, b.obs.Metrics())
	}
	if len(b.validators) > 0 {
		p = NewValidationStage(p, b.validators...)
	}
	return p
}

// NewProviderlessLogger returns a logger that drops everything, for stages
// built without an observability provider.
func NewProviderlessLogger() observability.Logger {
	return observability.NewProvider(nil, nil, nil).Logger()
}
