package research

import (
	"context"
	"log/slog"

	"github.com/nestfall/stash"
)

// Service binds the cache client and the backend into the screen-facing
// read API. Every read returns a safe default on unrecoverable error — a
// screen never distinguishes "fetch failed" from "no data yet".
type Service struct {
	cache   *stash.Client
	backend *Backend
	log     *slog.Logger
}

// NewService creates a Service. A nil log falls back to slog.Default().
func NewService(cache *stash.Client, backend *Backend, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cache: cache, backend: backend, log: log}
}

// Options is the per-call fetch configuration a screen chooses.
type Options struct {
	// ForceRefresh bypasses the cache read entirely.
	ForceRefresh bool

	// Background serves a stale hit immediately and revalidates without
	// blocking.
	Background bool
}

func (o Options) policy(ttl stash.Policy) stash.Policy {
	ttl.ForceRefresh = o.ForceRefresh
	ttl.Background = o.Background
	return ttl
}

// History returns the user's research history, newest first. Serves from
// cache within HistoryTTL; returns an empty list on unrecoverable error.
func (s *Service) History(ctx context.Context, userID string, opt Options) []Item {
	items, err := stash.GetOrFetch(ctx, s.cache, HistoryKey(userID),
		opt.policy(stash.Policy{TTL: HistoryTTL}), s.backend.History(userID))
	if err != nil {
		s.log.Warn("history read failed, serving empty", "user_id", userID, "error", err)
		return []Item{}
	}
	if items == nil {
		items = []Item{}
	}
	return items
}

// Research returns a single research item, or nil when it is missing or the
// read fails.
func (s *Service) Research(ctx context.Context, id string, opt Options) *Item {
	item, err := stash.GetOrFetch(ctx, s.cache, ItemKey(id),
		opt.policy(stash.Policy{TTL: ItemTTL}), s.backend.Research(id))
	if err != nil {
		s.log.Warn("research read failed, serving nil", "research_id", id, "error", err)
		return nil
	}
	return item
}

// ActiveQueue returns the user's pending and processing runs; empty on
// unrecoverable error.
func (s *Service) ActiveQueue(ctx context.Context, userID string, opt Options) []Item {
	items, err := stash.GetOrFetch(ctx, s.cache, QueueKey(userID),
		opt.policy(stash.Policy{TTL: QueueTTL}), s.backend.ActiveQueue(userID))
	if err != nil {
		s.log.Warn("active queue read failed, serving empty", "user_id", userID, "error", err)
		return []Item{}
	}
	if items == nil {
		items = []Item{}
	}
	return items
}

// ResultsMap returns the user's results-existence map; empty on
// unrecoverable error.
func (s *Service) ResultsMap(ctx context.Context, userID string, opt Options) ResultsMap {
	m, err := stash.GetOrFetch(ctx, s.cache, ResultsKey(userID),
		opt.policy(stash.Policy{TTL: ResultsTTL}), s.backend.ResultsMap(userID))
	if err != nil {
		s.log.Warn("results map read failed, serving empty", "user_id", userID, "error", err)
		return ResultsMap{}
	}
	if m == nil {
		m = ResultsMap{}
	}
	return m
}

// InvalidateHistory drops the user's cached history so the next read
// refetches. The rollback half of an optimistic history update.
func (s *Service) InvalidateHistory(ctx context.Context, userID string) bool {
	return s.cache.Invalidate(ctx, HistoryKey(userID))
}

// InvalidateResearch drops a single cached research item.
func (s *Service) InvalidateResearch(ctx context.Context, id string) bool {
	return s.cache.Invalidate(ctx, ItemKey(id))
}

// ClearUserCaches removes the user-scoped entries (history, queue, results
// map) and returns the number removed. Item entries are id-keyed and shared,
// so they are left alone.
func (s *Service) ClearUserCaches(ctx context.Context, userID string) int {
	removed := 0
	for _, key := range []string{HistoryKey(userID), QueueKey(userID), ResultsKey(userID)} {
		if s.cache.Invalidate(ctx, key) {
			removed++
		}
	}
	return removed
}

// ClearAllCaches wipes every research namespace and returns the number of
// entries removed. Backs the "clear all research caches" surface.
func (s *Service) ClearAllCaches(ctx context.Context) int {
	removed := 0
	for _, ns := range Namespaces() {
		removed += s.cache.ClearNamespace(ctx, ns)
	}
	return removed
}
