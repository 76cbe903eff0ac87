package logger

import "context"

// contextKey is unexported so no other package can collide with it.
type contextKey struct{}

// requestIDKey carries the per-request correlation ID.
var requestIDKey = contextKey{}

// WithRequestID stores the request ID on the context for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored on the context, or the empty
// string when the request carries none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
