package pipeline

import (
	"context"
	"fmt"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// Invoker is the innermost stage: it calls the registered handler and
// converts its outcome to a ProcessingResult. Panics in the handler are
// recovered into fatal failures so a poison message cannot take the worker
// down.
type Invoker struct {
	handler messaging.Handler
}

// NewInvoker wraps a handler as the pipeline's terminal stage.
func NewInvoker(handler messaging.Handler) *Invoker {
	return &Invoker{handler: handler}
}

func (i *Invoker) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) (result messaging.ProcessingResult) {
	if i.handler == nil {
		return messaging.Failure(messaging.ErrNilHandler, "no handler")
	}

	defer func() {
		if r := recover(); r != nil {
			err := faults.New(faults.KindFatal, fmt.Sprintf("handler panic: %v", r))
			result = messaging.Failure(err, "handler panic")
		}
	}()

	data, err := i.handler.Handle(ctx, msg, pc)
	if err != nil {
		return messaging.Failure(err, "")
	}
	return messaging.Success(data)
}
