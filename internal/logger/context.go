package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	runIDKey  contextKey = "run_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRunID tags ctx and l with a fresh run id. Every log line of one load run
// or one browser test then shares the same run_id field.
func WithRunID(ctx context.Context, l *zap.Logger) (context.Context, *zap.Logger, string) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, runIDKey, runID)
	enriched := l.With(zap.String("run_id", runID))
	return WithContext(ctx, enriched), enriched, runID
}

// RunID returns the run id stored by WithRunID, or "".
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}
