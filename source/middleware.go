package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/nestfall/stash/contextx"
	"github.com/nestfall/stash/retry"
	"github.com/nestfall/stash/tracing"
)

// Traced records an OpenTelemetry span around the fetch.
func Traced[T any](cfg *tracing.Config, name string) Middleware[T] {
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			ctx, span := tracing.StartFetch(ctx, cfg, name)
			v, err := next(ctx)
			tracing.End(span, err)
			return v, err
		}
	}
}

// Logged logs fetch outcomes and latency at debug level, failures at warn.
// When the context carries a request ID or a session, both are attached so a
// fetch line correlates with the screen read and the user that triggered it.
func Logged[T any](log *slog.Logger, name string) Middleware[T] {
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			l := log
			if id := contextx.RequestIDFromContext(ctx); id != "" {
				l = l.With("request_id", id)
			}
			if uid := contextx.UserIDFromContext(ctx); uid != "" {
				l = l.With("user_id", uid)
			}
			start := time.Now()
			v, err := next(ctx)
			if err != nil {
				l.Warn("fetch failed", "fetch", name, "elapsed", time.Since(start), "error", err)
			} else {
				l.Debug("fetch ok", "fetch", name, "elapsed", time.Since(start))
			}
			return v, err
		}
	}
}

// Retried retries the fetch per the given config.
func Retried[T any](cfg retry.Config) Middleware[T] {
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			return retry.Do(ctx, cfg, next)
		}
	}
}
