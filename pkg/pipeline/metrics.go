package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// MetricsStage records per-message-type processing counters and latency.
type MetricsStage struct {
	next Processor

	started   observability.Counter
	succeeded observability.Counter
	failed    observability.Counter
	retried   observability.Counter
	duration  observability.Histogram
}

// NewMetricsStage wraps next with metric recording on metrics.
func NewMetricsStage(next Processor, metrics observability.Metrics) *MetricsStage {
	return &MetricsStage{
		next:      next,
		started:   metrics.Counter("messages_started_total", "Messages entering the pipeline", "{message}"),
		succeeded: metrics.Counter("messages_succeeded_total", "Messages processed successfully", "{message}"),
		failed:    metrics.Counter("messages_failed_total", "Messages that failed processing", "{message}"),
		retried:   metrics.Counter("messages_retried_total", "Retry attempts performed", "{retry}"),
		duration:  metrics.Histogram("message_duration_seconds", "End-to-end processing duration", "s"),
	}
}

func (s *MetricsStage) Process(ctx context.Context, msg messaging.Message, pc *messaging.ProcessingContext) messaging.ProcessingResult {
	messageType := observability.String("message_type", msg.MessageType())
	s.started.Increment(ctx, messageType)

	retriesBefore := pc.RetryCount
	start := time.Now()
	result := s.next.Process(ctx, msg, pc)
	s.duration.Record(ctx, time.Since(start).Seconds(), messageType)

	if retries := pc.RetryCount - retriesBefore; retries > 0 {
		s.retried.Add(ctx, int64(retries), messageType,
			observability.String("attempt", strconv.Itoa(pc.Attempt)))
	}

	if result.Succeeded {
		s.succeeded.Increment(ctx, messageType)
	} else {
		s.failed.Increment(ctx, messageType)
	}
	return result
}
