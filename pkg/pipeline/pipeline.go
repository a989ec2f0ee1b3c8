// Package pipeline assembles message processing as a chain of decorators
// around the handler invocation: validation, metrics, idempotency, retry and
// transaction stages, composed in a fixed canonical order.
package pipeline

import (
	"context"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// Processor is one stage of the processing pipeline. Stages return a tagged
// result; a Go error escapes only for infrastructure failures the pipeline
// itself cannot express as a result.
type Processor interface {
	Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult

func (f ProcessorFunc) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	return f(ctx, msg, pc)
}
