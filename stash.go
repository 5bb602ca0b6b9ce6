// Package stash implements a read-through cache with TTL expiry, optimistic
// local mutation, and stale-while-revalidate refresh over a persistent
// key/value store.
//
// A [Client] sits between callers and a [store.Store]. [GetOrFetch] decides
// per call whether to serve the cached payload, refetch inline, or return a
// stale payload and revalidate in the background. [Mutate] splices a
// locally-known-correct change into a cached payload ahead of server
// confirmation; callers invalidate the key if the authoritative write later
// fails.
package stash

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/nestfall/stash/policy"
	"github.com/nestfall/stash/store"
	"github.com/nestfall/stash/tracing"
)

// Client is the read-through orchestrator. All methods are safe for
// concurrent use; racing writers on the same key resolve last-write-wins
// (see the revision check in the revalidation path for the one narrowing of
// that rule).
type Client struct {
	store    *store.Store
	log      *slog.Logger
	trace    *tracing.Config
	metrics  *metrics
	gate     *rate.Limiter
	resolver *policy.Resolver
	now      func() time.Time

	metricsReg    prometheus.Registerer
	metricsPrefix string

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// New creates a Client over the given store. It returns an error only when
// an option fails to initialize (currently just metrics registration).
func New(st *store.Store, opts ...Option) (*Client, error) {
	c := &Client{
		store:    st,
		log:      slog.Default(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metricsReg != nil {
		m, err := newMetrics(c.metricsReg, c.metricsPrefix)
		if err != nil {
			return nil, fmt.Errorf("register cache metrics: %w", err)
		}
		c.metrics = m
	}
	return c, nil
}

// Store exposes the underlying cache store for diagnostic surfaces.
func (c *Client) Store() *store.Store {
	return c.store
}

// Invalidate removes a single cache entry. This is the rollback half of the
// optimistic-update contract: when the authoritative write behind a [Mutate]
// fails, the caller invalidates the key so the next read refetches.
func (c *Client) Invalidate(ctx context.Context, key string) bool {
	return c.store.Remove(ctx, key)
}

// ClearNamespace removes every entry under the given key prefix and returns
// the number removed.
func (c *Client) ClearNamespace(ctx context.Context, prefix string) int {
	return c.store.ClearByPrefix(ctx, prefix)
}

// ClearAll wipes the whole store. Backs "log out" and "reset app data".
func (c *Client) ClearAll(ctx context.Context) int {
	return c.store.ClearAll(ctx)
}

// Close waits for in-flight background revalidations to settle. Late writes
// are idempotent overwrites, so this exists for orderly shutdown and for
// tests, not for correctness.
func (c *Client) Close() error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for background revalidations")
	}
}
