package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nestfall/stash/breaker"
)

// ErrUnavailable marks a fetch whose every strategy failed. Returned only
// from chains built without a default; chains with one degrade silently.
var ErrUnavailable = errors.New("source: all fetch strategies failed")

// Strategy is one entry in a fallback chain: a named fetch, optionally
// guarded by a circuit breaker so a known-broken endpoint is skipped without
// being called.
type Strategy[T any] struct {
	Name    string
	Fetch   Func[T]
	Breaker *breaker.Breaker
}

// Fallback builds a Func that tries strategies in order and returns the
// first success. When every strategy fails the chain returns def() with a
// nil error — degraded-but-served is the contract: callers render an empty
// result the same way they render "no data yet". Pass a nil def to propagate
// the last error instead.
func Fallback[T any](log *slog.Logger, def func() T, strategies ...Strategy[T]) Func[T] {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) (T, error) {
		var lastErr error
		for _, s := range strategies {
			var v T
			var err error
			if s.Breaker != nil {
				err = s.Breaker.Do(ctx, func(ctx context.Context) error {
					v, err = s.Fetch(ctx)
					return err
				})
			} else {
				v, err = s.Fetch(ctx)
			}
			if err == nil {
				return v, nil
			}
			lastErr = err
			log.Debug("fetch strategy failed, falling back", "strategy", s.Name, "error", err)
		}
		if def == nil {
			var zero T
			return zero, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
		}
		log.Warn("all fetch strategies failed, serving default", "error", lastErr)
		return def(), nil
	}
}
