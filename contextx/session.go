// Package contextx carries request-scoped identity through the fetch and
// cache layers: the signed-in user a screen is fetching for, and a request
// ID correlating a screen-level read with the fetches and revalidations it
// spawned.
package contextx

import "context"

// Session identifies the signed-in user behind a screen-level request. It is
// populated when the auth layer resolves a session and read by the entity
// helpers for logging and key construction.
type Session struct {
	UserID string
	Email  string
}

// WithSession returns a derived context that carries the given Session.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext extracts the Session stored in ctx.
// The boolean return value indicates whether a Session was present.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// UserIDFromContext is a convenience accessor for the session's user ID.
// It returns an empty string when no session is present.
func UserIDFromContext(ctx context.Context) string {
	s, _ := SessionFromContext(ctx)
	return s.UserID
}
