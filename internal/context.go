package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextSourceKey ctxKey = "reconcileSource"

// SourceFromContext returns the adapter name that triggered the current request.
func SourceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if source, ok := ctx.Value(ContextSourceKey).(string); ok {
		return source
	}
	return ""
}

func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ContextSourceKey, source)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
