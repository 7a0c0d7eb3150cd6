package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

type correlationKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithCorrelationID attaches a correlation identifier to the context and the
// contextual logger so audit records and request logs line up.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	l := FromContext(ctx)
	ctx = context.WithValue(ctx, correlationKey{}, id)
	return WithContext(ctx, l.With("correlation_id", id))
}

// CorrelationIDFromContext returns the correlation identifier set by
// WithCorrelationID, or "" when none is present.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
