package contextx

import "context"

// WithRequestID returns a derived context carrying the given request ID. Set
// it at the top of a screen-level read so the remote fetches and background
// revalidations it spawns all log and send the same ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID stored in ctx. It returns an
// empty string when none is present; callers treat that as "don't attach".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
