package stash

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nestfall/stash/tracing"
)

// Policy is the per-call fetch configuration. It is never persisted.
type Policy struct {
	// TTL is the duration until the written entry is considered stale. Zero
	// means "use the namespace default" (policy resolver, then [DefaultTTL]).
	TTL time.Duration

	// ForceRefresh bypasses the cache read entirely and refetches.
	ForceRefresh bool

	// Background controls the stale path: when true a stale hit is returned
	// immediately and revalidated without blocking the caller. A true miss
	// always blocks regardless — there is nothing to return immediately.
	Background bool
}

// GetOrFetch returns the value for key, consulting the cache first.
//
// A fresh hit returns the cached value with no fetch. A stale hit either
// blocks on fetch (Background false) or returns the stale value and
// revalidates in a detached task (Background true). A miss or a forced
// refresh always blocks on fetch. Blocking fetch errors propagate to the
// caller; background fetch errors are swallowed and logged, and the stale
// value already returned stands.
func GetOrFetch[T any](ctx context.Context, c *Client, key string, pol Policy, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	pol = c.fillPolicy(key, pol)

	ctx, span := tracing.StartCacheOp(ctx, c.trace, "stash.get_or_fetch", key)

	outcome := "miss"
	if pol.ForceRefresh {
		outcome = "forced"
	} else if env, ok := c.store.Read(ctx, key); ok {
		var v T
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			// Undecodable for this call site's type: treat as a miss and let
			// the blocking fetch overwrite it.
			c.log.Warn("cached payload undecodable, refetching", "key", key, "error", err)
		} else if env.Fresh(c.now()) {
			c.metrics.read("fresh")
			tracing.SetOutcome(span, "fresh")
			tracing.End(span, nil)
			return v, nil
		} else if pol.Background {
			c.revalidate(ctx, key, pol.TTL, env.Revision, func(ctx context.Context) (json.RawMessage, error) {
				nv, err := fetch(ctx)
				if err != nil {
					return nil, err
				}
				return json.Marshal(nv)
			})
			c.metrics.read("stale")
			tracing.SetOutcome(span, "stale")
			tracing.End(span, nil)
			return v, nil
		} else {
			outcome = "stale"
		}
	}

	// Blocking path: miss, forced refresh, or stale without background.
	v, err := fetch(ctx)
	if err != nil {
		c.metrics.read(outcome)
		tracing.SetOutcome(span, outcome)
		tracing.End(span, err)
		return zero, err
	}
	if raw, merr := json.Marshal(v); merr != nil {
		c.log.Warn("fetched value not cacheable", "key", key, "error", merr)
	} else {
		c.store.Write(ctx, key, raw, pol.TTL)
	}
	c.metrics.read(outcome)
	tracing.SetOutcome(span, outcome)
	tracing.End(span, nil)
	return v, nil
}

// Put writes a value under key with the given TTL, bypassing any fetch. The
// entity layer uses it to seed a namespace from a locally-known value (e.g.
// the first queue item for a user).
func Put[T any](ctx context.Context, c *Client, key string, v T, ttl time.Duration) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("put dropped: value not serializable", "key", key, "error", err)
		return false
	}
	return c.store.Write(ctx, key, raw, ttl)
}

// fillPolicy resolves a zero-TTL policy through the policy resolver, falling
// back to DefaultTTL. The resolver supplies both the namespace TTL and its
// Background preference; a call that sets Background itself keeps it.
func (c *Client) fillPolicy(key string, pol Policy) Policy {
	if pol.TTL != 0 {
		return pol
	}
	if c.resolver != nil {
		if _, p, ok := c.resolver.Resolve(key); ok && p != nil {
			pol.TTL = p.TTL
			if !pol.Background {
				pol.Background = p.Background
			}
		}
	}
	if pol.TTL == 0 {
		pol.TTL = DefaultTTL
	}
	return pol
}

// revalidate spawns a detached refresh for a stale key. At most one
// revalidation per key is in flight, and spawns are subject to the rate
// gate; a skipped refresh is retried by a later stale read. The detached
// task keeps the caller's context values but not its cancellation — the
// caller already got its answer, and a late write is an idempotent
// overwrite.
func (c *Client) revalidate(ctx context.Context, key string, ttl time.Duration, revision int64, fetch func(context.Context) (json.RawMessage, error)) {
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return
	}
	if c.gate != nil && !c.gate.Allow() {
		c.mu.Unlock()
		c.log.Debug("revalidation skipped: rate gate", "key", key)
		return
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()

	c.metrics.revalidationSpawned()
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			if r := recover(); r != nil {
				c.log.Error("background revalidation panicked", "key", key, "panic", r)
			}
		}()

		raw, err := fetch(bg)
		if err != nil {
			c.metrics.revalidationFailed()
			c.log.Warn("background revalidation failed, stale value stands", "key", key, "error", err)
			return
		}
		// Check-before-write: an optimistic patch moved the revision while
		// the refetch was in flight, so the fetched snapshot is already
		// behind the local view. Leave the patch in place; the next stale
		// read refetches.
		if cur, ok := c.store.Read(bg, key); ok && cur.Revision != revision {
			c.metrics.revalidationSkipped()
			c.log.Debug("revalidation write skipped: entry patched mid-flight", "key", key)
			return
		}
		if c.store.Write(bg, key, raw, ttl) {
			c.log.Debug("background revalidation complete", "key", key)
		}
	}()
}
