package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyRequestID contextKey = "request_id"
	keyPairID    contextKey = "pair_id"
)

// WithTraceID adds a trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts the trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the search request's correlation ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the search request's correlation ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithPairID adds a worker's pair ID to context, for log correlation.
func WithPairID(ctx context.Context, pairID int) context.Context {
	return context.WithValue(ctx, keyPairID, pairID)
}

// PairID extracts a worker's pair ID from context.
func PairID(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(keyPairID).(int)
	return v, ok
}
