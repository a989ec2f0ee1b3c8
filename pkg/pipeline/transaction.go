package pipeline

import (
	"context"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// UnitOfWork executes a function inside an atomic unit. A returned error
// rolls the unit back; success commits it. Implementations must roll back on
// panic and re-raise it.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopUnitOfWork runs the function without transactional semantics. Used when
// no store participates in message handling.
type NopUnitOfWork struct{}

func (NopUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// TransactionStage runs the inner stages inside a unit of work: handler side
// effects and store writes commit or roll back together.
type TransactionStage struct {
	next Processor
	uow  UnitOfWork
}

// NewTransactionStage wraps next in uow.
func NewTransactionStage(next Processor, uow UnitOfWork) *TransactionStage {
	if uow == nil {
		uow = NopUnitOfWork{}
	}
	return &TransactionStage{next: next, uow: uow}
}

func (s *TransactionStage) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	var result messaging.ProcessingResult
	err := s.uow.Do(ctx, func(txCtx context.Context) error {
		result = s.next.Process(txCtx, msg, pc)
		if !result.Succeeded {
			return result.Err
		}
		return nil
	})
	if err != nil && result.Err == nil {
		// Commit failed after a successful inner result.
		return messaging.Failure(err, "commit failed")
	}
	return result
}
