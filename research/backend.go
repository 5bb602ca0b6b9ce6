package research

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/nestfall/stash/breaker"
	"github.com/nestfall/stash/retry"
	"github.com/nestfall/stash/source"
	"github.com/nestfall/stash/tracing"
)

// Backend builds the remote fetch functions for each entity. Every fetch is
// a fallback chain: the server-side aggregation procedure first (guarded by
// a shared circuit breaker, so a backend without the procedures deployed is
// skipped instead of probed on every read), then a direct table query, then
// an empty default. Degraded service is intentional — the UI renders "no
// data yet" and "data unavailable" identically.
type Backend struct {
	src   *source.Client
	log   *slog.Logger
	retry retry.Config
	rpcBr *breaker.Breaker
	trace *tracing.Config
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(log *slog.Logger) BackendOption {
	return func(b *Backend) { b.log = log }
}

// WithRetry overrides the per-strategy retry configuration.
func WithRetry(cfg retry.Config) BackendOption {
	return func(b *Backend) { b.retry = cfg }
}

// WithTracing enables spans around each fetch strategy.
func WithTracing(cfg *tracing.Config) BackendOption {
	return func(b *Backend) { b.trace = cfg }
}

// NewBackend creates a Backend over the given REST client.
func NewBackend(src *source.Client, opts ...BackendOption) *Backend {
	b := &Backend{
		src: src,
		log: slog.Default(),
		retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
			RetryIf:     source.Retryable,
		},
		rpcBr: breaker.New(breaker.Config{
			FailureThreshold:   3,
			OpenTimeout:        30 * time.Second,
			HalfOpenMaxSuccess: 1,
		}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// wrap applies the standard middleware stack to one fetch strategy.
func wrap[T any](b *Backend, name string, fn source.Func[T]) source.Func[T] {
	return source.Wrap(fn,
		source.Traced[T](b.trace, name),
		source.Logged[T](b.log, name),
		source.Retried[T](b.retry),
	)
}

// History fetches a user's full research history, newest first.
func (b *Backend) History(userID string) source.Func[[]Item] {
	rpc := wrap(b, "history_rpc", func(ctx context.Context) ([]Item, error) {
		var out []Item
		err := b.src.PostRPC(ctx, "get_user_research_history", map[string]string{"p_user_id": userID}, &out)
		return out, err
	})
	direct := wrap(b, "history_query", func(ctx context.Context) ([]Item, error) {
		var out []Item
		q := url.Values{
			"user_id": {"eq." + userID},
			"order":   {"created_at.desc"},
		}
		err := b.src.GetJSON(ctx, "/rest/v1/research", q, &out)
		return out, err
	})
	return source.Fallback(b.log, func() []Item { return []Item{} },
		source.Strategy[[]Item]{Name: "history_rpc", Fetch: rpc, Breaker: b.rpcBr},
		source.Strategy[[]Item]{Name: "history_query", Fetch: direct},
	)
}

// Research fetches a single research item by id. A missing row resolves to
// nil, not an error.
func (b *Backend) Research(id string) source.Func[*Item] {
	rpc := wrap(b, "research_rpc", func(ctx context.Context) (*Item, error) {
		var out *Item
		err := b.src.PostRPC(ctx, "get_research_detail", map[string]string{"p_research_id": id}, &out)
		return out, err
	})
	direct := wrap(b, "research_query", func(ctx context.Context) (*Item, error) {
		var rows []Item
		q := url.Values{
			"id":    {"eq." + id},
			"limit": {"1"},
		}
		if err := b.src.GetJSON(ctx, "/rest/v1/research", q, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	})
	return source.Fallback(b.log, func() *Item { return nil },
		source.Strategy[*Item]{Name: "research_rpc", Fetch: rpc, Breaker: b.rpcBr},
		source.Strategy[*Item]{Name: "research_query", Fetch: direct},
	)
}

// ActiveQueue fetches a user's pending and processing runs.
func (b *Backend) ActiveQueue(userID string) source.Func[[]Item] {
	rpc := wrap(b, "queue_rpc", func(ctx context.Context) ([]Item, error) {
		var out []Item
		err := b.src.PostRPC(ctx, "get_active_research", map[string]string{"p_user_id": userID}, &out)
		return out, err
	})
	direct := wrap(b, "queue_query", func(ctx context.Context) ([]Item, error) {
		var out []Item
		q := url.Values{
			"user_id": {"eq." + userID},
			"status":  {"in.(pending,processing)"},
			"order":   {"created_at.asc"},
		}
		err := b.src.GetJSON(ctx, "/rest/v1/research", q, &out)
		return out, err
	})
	return source.Fallback(b.log, func() []Item { return []Item{} },
		source.Strategy[[]Item]{Name: "queue_rpc", Fetch: rpc, Breaker: b.rpcBr},
		source.Strategy[[]Item]{Name: "queue_query", Fetch: direct},
	)
}

// ResultsMap fetches the set of research ids with results available.
func (b *Backend) ResultsMap(userID string) source.Func[ResultsMap] {
	rpc := wrap(b, "results_rpc", func(ctx context.Context) (ResultsMap, error) {
		var ids []string
		if err := b.src.PostRPC(ctx, "get_results_existence", map[string]string{"p_user_id": userID}, &ids); err != nil {
			return nil, err
		}
		m := make(ResultsMap, len(ids))
		for _, id := range ids {
			m[id] = true
		}
		return m, nil
	})
	direct := wrap(b, "results_query", func(ctx context.Context) (ResultsMap, error) {
		var rows []struct {
			ResearchID string `json:"research_id"`
		}
		q := url.Values{
			"user_id": {"eq." + userID},
			"select":  {"research_id"},
		}
		if err := b.src.GetJSON(ctx, "/rest/v1/research_results", q, &rows); err != nil {
			return nil, err
		}
		m := make(ResultsMap, len(rows))
		for _, row := range rows {
			m[row.ResearchID] = true
		}
		return m, nil
	})
	return source.Fallback(b.log, func() ResultsMap { return ResultsMap{} },
		source.Strategy[ResultsMap]{Name: "results_rpc", Fetch: rpc, Breaker: b.rpcBr},
		source.Strategy[ResultsMap]{Name: "results_query", Fetch: direct},
	)
}
