package research

import (
	"context"
	"encoding/json"

	"github.com/nestfall/stash"
	"github.com/nestfall/stash/realtime"
)

// Optimistic cache updates. Each helper patches exactly one namespace whose
// payload shape it knows, preserving the entry's TTL (a local patch is not a
// revalidation). All of them are defined no-ops when the target entry does
// not exist, except the queue seed case described below.

// PrependHistory splices a newly created item onto the front of the user's
// cached history list, ahead of server confirmation. Invalidate the history
// key if the authoritative write later fails.
func (s *Service) PrependHistory(ctx context.Context, userID string, item Item) bool {
	return stash.Mutate(ctx, s.cache, HistoryKey(userID), func(items []Item) ([]Item, bool) {
		return append([]Item{item}, items...), true
	})
}

// UpdateCachedHistoryStatus patches the status of one history item found by
// id. Returns false when the item is not in the cached list or already has
// the status.
func (s *Service) UpdateCachedHistoryStatus(ctx context.Context, userID, id string, status Status) bool {
	return stash.Mutate(ctx, s.cache, HistoryKey(userID), func(items []Item) ([]Item, bool) {
		changed := false
		for i := range items {
			if items[i].ID == id && items[i].Status != status {
				items[i].Status = status
				changed = true
			}
		}
		return items, changed
	})
}

// UpdateActiveQueueCache applies a pushed queue change:
//
//   - terminal status: the item is removed from the cached queue;
//   - non-terminal, already cached: its fields are merged in place;
//   - non-terminal, not cached: it is appended;
//   - no queue cache yet: the cache is seeded with this single item, unless
//     the item is already terminal — a completed run must never seed an
//     empty queue cache.
func (s *Service) UpdateActiveQueueCache(ctx context.Context, userID string, item Item) bool {
	key := QueueKey(userID)
	patched := stash.Mutate(ctx, s.cache, key, func(items []Item) ([]Item, bool) {
		if item.Status.Terminal() {
			out := make([]Item, 0, len(items))
			removed := false
			for _, it := range items {
				if it.ID == item.ID {
					removed = true
					continue
				}
				out = append(out, it)
			}
			return out, removed
		}
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = mergeItem(items[i], item)
				return items, true
			}
		}
		return append(items, item), true
	})
	if patched {
		return true
	}
	if item.Status.Terminal() {
		return false
	}
	// Mutate also reports false when the entry exists but nothing changed;
	// only a genuinely absent cache is seeded.
	if _, ok := s.cache.Store().Read(ctx, key); ok {
		return false
	}
	return stash.Put(ctx, s.cache, key, []Item{item}, QueueTTL)
}

// mergeItem overlays upd onto old, keeping old's fields where the pushed
// update omitted them (realtime payloads are often partial rows).
func mergeItem(old, upd Item) Item {
	if upd.Status == "" {
		upd.Status = old.Status
	}
	if upd.UserID == "" {
		upd.UserID = old.UserID
	}
	if upd.Query == "" {
		upd.Query = old.Query
	}
	if upd.CreatedAt.IsZero() {
		upd.CreatedAt = old.CreatedAt
	}
	if upd.CompletedAt == nil {
		upd.CompletedAt = old.CompletedAt
	}
	return upd
}

// UpdateResearchResultsCache merges {id: true} into the user's cached
// results-existence map.
func (s *Service) UpdateResearchResultsCache(ctx context.Context, userID, id string) bool {
	return stash.Mutate(ctx, s.cache, ResultsKey(userID), func(m ResultsMap) (ResultsMap, bool) {
		if m == nil {
			m = ResultsMap{}
		}
		if m[id] {
			return m, false
		}
		m[id] = true
		return m, true
	})
}

// Tables the realtime channel pushes for.
const (
	tableResearch = "research"
	tableResults  = "research_results"
)

// resultRow is the pushed shape for a research_results insert.
type resultRow struct {
	ResearchID string `json:"research_id"`
	UserID     string `json:"user_id"`
}

// HandleEvent routes a pushed change to the optimistic helpers. It is the
// handler wired into realtime.Listener: inserts and updates on the research
// table maintain the history and queue caches, results inserts maintain the
// results-existence map.
func (s *Service) HandleEvent(ctx context.Context, ev realtime.Event) {
	switch ev.Table {
	case tableResearch:
		var item Item
		if err := json.Unmarshal(ev.Record, &item); err != nil {
			s.log.Warn("realtime event dropped: bad research record", "error", err)
			return
		}
		if item.ID == "" || item.UserID == "" {
			return
		}
		switch ev.Type {
		case realtime.EventInsert:
			s.PrependHistory(ctx, item.UserID, item)
			s.UpdateActiveQueueCache(ctx, item.UserID, item)
		case realtime.EventUpdate:
			s.UpdateCachedHistoryStatus(ctx, item.UserID, item.ID, item.Status)
			s.UpdateActiveQueueCache(ctx, item.UserID, item)
		}
	case tableResults:
		var row resultRow
		if err := json.Unmarshal(ev.Record, &row); err != nil {
			s.log.Warn("realtime event dropped: bad results record", "error", err)
			return
		}
		if row.ResearchID == "" || row.UserID == "" {
			return
		}
		s.UpdateResearchResultsCache(ctx, row.UserID, row.ResearchID)
	}
}
