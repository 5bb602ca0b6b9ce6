package stash

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/nestfall/stash/policy"
	"github.com/nestfall/stash/tracing"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for background-revalidation outcomes and
// fail-soft diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTracing enables OpenTelemetry spans around cache operations.
func WithTracing(cfg *tracing.Config) Option {
	return func(c *Client) { c.trace = cfg }
}

// WithMetrics registers hit/miss/revalidation counters against reg under the
// given prefix. Registration happens inside [New]; a collision there makes
// New fail.
func WithMetrics(reg prometheus.Registerer, prefix string) Option {
	return func(c *Client) {
		c.metricsReg = reg
		c.metricsPrefix = prefix
	}
}

// WithRevalidationLimit caps how fast background revalidations may be
// spawned. Stale reads beyond the budget are still served from cache; the
// refresh is simply skipped until a later read.
func WithRevalidationLimit(rps float64, burst int) Option {
	return func(c *Client) { c.gate = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithPolicyResolver supplies per-namespace policy defaults. When a call
// passes a zero TTL, the resolver is consulted with the cache key to fill in
// the TTL and background preference, so operators can retune namespaces
// without touching entity code.
func WithPolicyResolver(r *policy.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}
