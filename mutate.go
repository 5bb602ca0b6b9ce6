package stash

import (
	"context"
	"encoding/json"
)

// Mutate applies an optimistic local patch to the payload cached under key.
//
// The patch function receives the decoded payload and returns the new
// payload plus a flag reporting whether anything changed. The envelope's
// CachedAt and ExpiresAt are preserved — a local patch is not a revalidation
// and does not reset the TTL — and its revision is bumped so an in-flight
// background refetch will not clobber the patch.
//
// When no entry exists under key the mutate is a defined no-op and returns
// false: an optimistic update never materializes a cache entry from nothing.
func Mutate[T any](ctx context.Context, c *Client, key string, patch func(T) (T, bool)) bool {
	env, ok := c.store.Read(ctx, key)
	if !ok {
		return false
	}

	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		c.log.Warn("optimistic patch skipped: cached payload undecodable", "key", key, "error", err)
		return false
	}

	next, changed := patch(v)
	if !changed {
		return false
	}

	raw, err := json.Marshal(next)
	if err != nil {
		c.log.Warn("optimistic patch dropped: patched payload not serializable", "key", key, "error", err)
		return false
	}

	env.Payload = raw
	env.Revision++
	if !c.store.WriteEnvelope(ctx, key, env) {
		return false
	}
	c.metrics.optimisticApplied()
	return true
}
