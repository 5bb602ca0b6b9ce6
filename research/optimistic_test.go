package research

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nestfall/stash"
	"github.com/nestfall/stash/realtime"
	"github.com/nestfall/stash/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	c, err := stash.New(store.New(store.NewMemory()))
	if err != nil {
		t.Fatalf("stash.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewService(c, nil, nil)
}

func readItems(t *testing.T, s *Service, key string) []Item {
	t.Helper()
	env, ok := s.cache.Store().Read(t.Context(), key)
	if !ok {
		t.Fatalf("no entry under %q", key)
	}
	var items []Item
	if err := json.Unmarshal(env.Payload, &items); err != nil {
		t.Fatalf("decode %q: %v", key, err)
	}
	return items
}

func seedItems(t *testing.T, s *Service, key string, items []Item) {
	t.Helper()
	if !stash.Put(t.Context(), s.cache, key, items, time.Hour) {
		t.Fatalf("seed %q failed", key)
	}
}

func TestPrependHistory(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	seedItems(t, s, HistoryKey("u1"), []Item{{ID: "old", UserID: "u1"}})

	if !s.PrependHistory(ctx, "u1", Item{ID: "new", UserID: "u1", Status: StatusPending}) {
		t.Fatal("PrependHistory returned false")
	}
	items := readItems(t, s, HistoryKey("u1"))
	if len(items) != 2 || items[0].ID != "new" || items[1].ID != "old" {
		t.Fatalf("history = %+v, want new item first", items)
	}
}

func TestPrependHistory_NoCacheIsNoOp(t *testing.T) {
	s := newTestService(t)
	if s.PrependHistory(t.Context(), "u1", Item{ID: "new", UserID: "u1"}) {
		t.Fatal("prepend must not materialize a history cache")
	}
	if _, ok := s.cache.Store().Read(t.Context(), HistoryKey("u1")); ok {
		t.Fatal("history entry appeared from nothing")
	}
}

func TestUpdateCachedHistoryStatus(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	seedItems(t, s, HistoryKey("u1"), []Item{
		{ID: "r1", Status: StatusPending},
		{ID: "r2", Status: StatusProcessing},
	})

	if !s.UpdateCachedHistoryStatus(ctx, "u1", "r1", StatusCompleted) {
		t.Fatal("patch returned false")
	}
	items := readItems(t, s, HistoryKey("u1"))
	if items[0].Status != StatusCompleted {
		t.Fatalf("r1 status = %s, want completed", items[0].Status)
	}
	if items[1].Status != StatusProcessing {
		t.Fatalf("r2 status = %s, must be untouched", items[1].Status)
	}

	if s.UpdateCachedHistoryStatus(ctx, "u1", "r1", StatusCompleted) {
		t.Fatal("patch to the same status must report false")
	}
	if s.UpdateCachedHistoryStatus(ctx, "u1", "nope", StatusFailed) {
		t.Fatal("patch of an unknown id must report false")
	}
}

func TestUpdateActiveQueueCache_TerminalRemoves(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	seedItems(t, s, QueueKey("u1"), []Item{
		{ID: "r1", Status: StatusProcessing},
		{ID: "r2", Status: StatusPending},
	})

	if !s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "r1", Status: StatusCompleted}) {
		t.Fatal("terminal update returned false")
	}
	items := readItems(t, s, QueueKey("u1"))
	if len(items) != 1 || items[0].ID != "r2" {
		t.Fatalf("queue = %+v, want only r2", items)
	}

	// Removing an item that is not in the queue changes nothing.
	if s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "gone", Status: StatusFailed}) {
		t.Fatal("terminal update of an absent item must report false")
	}
}

func TestUpdateActiveQueueCache_MergesPartialUpdate(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedItems(t, s, QueueKey("u1"), []Item{
		{ID: "r1", UserID: "u1", Query: "quantum batteries", Status: StatusPending, CreatedAt: created},
	})

	// Pushed rows are often partial: only id and status here.
	if !s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "r1", Status: StatusProcessing}) {
		t.Fatal("merge returned false")
	}
	items := readItems(t, s, QueueKey("u1"))
	got := items[0]
	if got.Status != StatusProcessing {
		t.Fatalf("status = %s, want processing", got.Status)
	}
	if got.Query != "quantum batteries" || got.UserID != "u1" || !got.CreatedAt.Equal(created) {
		t.Fatalf("merge dropped fields: %+v", got)
	}

	// A pushed row with no status at all must not blank the cached one.
	if !s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "r1", Query: "quantum batteries v2"}) {
		t.Fatal("statusless merge returned false")
	}
	items = readItems(t, s, QueueKey("u1"))
	if items[0].Status != StatusProcessing {
		t.Fatalf("status = %q after statusless merge, want processing", items[0].Status)
	}
	if items[0].Query != "quantum batteries v2" {
		t.Fatalf("query = %q, want the pushed update", items[0].Query)
	}
}

func TestUpdateActiveQueueCache_AppendsNewItem(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	seedItems(t, s, QueueKey("u1"), []Item{{ID: "r1", Status: StatusProcessing}})

	if !s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "r2", Status: StatusPending}) {
		t.Fatal("append returned false")
	}
	items := readItems(t, s, QueueKey("u1"))
	if len(items) != 2 || items[1].ID != "r2" {
		t.Fatalf("queue = %+v, want r2 appended", items)
	}
}

func TestUpdateActiveQueueCache_SeedsAbsentCache(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	if !s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "r1", Status: StatusPending}) {
		t.Fatal("seed returned false")
	}
	items := readItems(t, s, QueueKey("u1"))
	if len(items) != 1 || items[0].ID != "r1" {
		t.Fatalf("queue = %+v, want the seeded item", items)
	}
	env, _ := s.cache.Store().Read(ctx, QueueKey("u1"))
	if ttl := env.ExpiresAt.Sub(env.CachedAt); ttl != QueueTTL {
		t.Fatalf("seeded TTL = %v, want %v", ttl, QueueTTL)
	}
}

func TestUpdateActiveQueueCache_TerminalNeverSeeds(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	if s.UpdateActiveQueueCache(ctx, "u1", Item{ID: "r1", Status: StatusCompleted}) {
		t.Fatal("terminal item must not seed an absent queue cache")
	}
	if _, ok := s.cache.Store().Read(ctx, QueueKey("u1")); ok {
		t.Fatal("queue entry appeared from a terminal update")
	}
}

func TestUpdateResearchResultsCache(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	if !stash.Put(ctx, s.cache, ResultsKey("u1"), ResultsMap{"r1": true}, time.Hour) {
		t.Fatal("seed failed")
	}

	if !s.UpdateResearchResultsCache(ctx, "u1", "r2") {
		t.Fatal("merge returned false")
	}
	env, _ := s.cache.Store().Read(ctx, ResultsKey("u1"))
	var m ResultsMap
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !m["r1"] || !m["r2"] {
		t.Fatalf("results map = %v, want both ids", m)
	}

	if s.UpdateResearchResultsCache(ctx, "u1", "r2") {
		t.Fatal("merging a known id must report false")
	}
	if s.UpdateResearchResultsCache(ctx, "other", "r9") {
		t.Fatal("merge must not materialize a results cache")
	}
}

func TestHandleEvent_Routing(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	seedItems(t, s, HistoryKey("u1"), []Item{})
	seedItems(t, s, QueueKey("u1"), []Item{})
	if !stash.Put(ctx, s.cache, ResultsKey("u1"), ResultsMap{}, time.Hour) {
		t.Fatal("seed failed")
	}

	record := func(v any) json.RawMessage {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return raw
	}

	s.HandleEvent(ctx, realtime.Event{
		Type:   realtime.EventInsert,
		Table:  "research",
		Record: record(Item{ID: "r1", UserID: "u1", Query: "fusion", Status: StatusPending}),
	})
	if items := readItems(t, s, HistoryKey("u1")); len(items) != 1 || items[0].ID != "r1" {
		t.Fatalf("history after insert = %+v", items)
	}
	if items := readItems(t, s, QueueKey("u1")); len(items) != 1 || items[0].ID != "r1" {
		t.Fatalf("queue after insert = %+v", items)
	}

	s.HandleEvent(ctx, realtime.Event{
		Type:   realtime.EventUpdate,
		Table:  "research",
		Record: record(Item{ID: "r1", UserID: "u1", Status: StatusCompleted}),
	})
	if items := readItems(t, s, HistoryKey("u1")); items[0].Status != StatusCompleted {
		t.Fatalf("history after update = %+v", items)
	}
	if items := readItems(t, s, QueueKey("u1")); len(items) != 0 {
		t.Fatalf("queue after terminal update = %+v, want empty", items)
	}

	s.HandleEvent(ctx, realtime.Event{
		Type:   realtime.EventInsert,
		Table:  "research_results",
		Record: record(map[string]string{"research_id": "r1", "user_id": "u1"}),
	})
	env, _ := s.cache.Store().Read(ctx, ResultsKey("u1"))
	var m ResultsMap
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !m["r1"] {
		t.Fatalf("results map after insert = %v", m)
	}
}

func TestHandleEvent_BadRecordIgnored(t *testing.T) {
	s := newTestService(t)
	ctx := t.Context()

	seedItems(t, s, HistoryKey("u1"), []Item{})

	s.HandleEvent(ctx, realtime.Event{
		Type:   realtime.EventInsert,
		Table:  "research",
		Record: json.RawMessage(`"not an object"`),
	})
	s.HandleEvent(ctx, realtime.Event{
		Type:   realtime.EventInsert,
		Table:  "research",
		Record: json.RawMessage(`{"query":"missing ids"}`),
	})
	if items := readItems(t, s, HistoryKey("u1")); len(items) != 0 {
		t.Fatalf("history = %+v, want untouched", items)
	}
}
