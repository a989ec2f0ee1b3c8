// Package zaplog adapts go.uber.org/zap to the observability Logger.
package zaplog

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/heromessaging/heromessaging-go/pkg/correlation"
	"github.com/heromessaging/heromessaging-go/pkg/observability"
)

// Logger implements observability.Logger on top of a zap.Logger. Correlation
// scope from the context is appended to every entry.
type Logger struct {
	base *zap.Logger
}

// New wraps an existing zap logger.
func New(base *zap.Logger) *Logger {
	return &Logger{base: base}
}

// NewProduction builds a JSON production logger at the given level.
func NewProduction(level zapcore.Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{base: base}, nil
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.base.Debug(msg, l.convert(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.base.Info(msg, l.convert(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.base.Warn(msg, l.convert(ctx, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.base.Error(msg, l.convert(ctx, fields)...)
}

func (l *Logger) With(fields ...observability.Field) observability.Logger {
	zfields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zfields = append(zfields, toZap(f))
	}
	return &Logger{base: l.base.With(zfields...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

func (l *Logger) convert(ctx context.Context, fields []observability.Field) []zap.Field {
	zfields := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		zfields = append(zfields, toZap(f))
	}
	if scope, ok := correlation.FromContext(ctx); ok {
		zfields = append(zfields, zap.String("correlation_id", scope.CorrelationID))
		if scope.MessageID != "" {
			zfields = append(zfields, zap.String("message_id", scope.MessageID))
		}
	}
	return zfields
}

func toZap(f observability.Field) zap.Field {
	if err, ok := f.Value.(error); ok && f.Key == "error" {
		return zap.Error(err)
	}
	return zap.Any(f.Key, f.Value)
}
