package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// Store persists cache envelopes over a KV backend. All methods are safe for
// concurrent use to the extent the backend's per-key operations are atomic;
// the store adds no locking of its own and accepts last-write-wins on racing
// writers.
type Store struct {
	kv    KV
	front *Front
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFront places an in-process envelope cache ahead of the backend.
func WithFront(f *Front) Option {
	return func(s *Store) { s.front = f }
}

// WithLogger sets the logger used for fail-soft diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// withNow overrides the clock. Used by tests.
func withNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over the given backend.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:  kv,
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write persists payload under key with the given TTL, overwriting any
// previous envelope. It returns false when serialization or the backend
// fails; the error is logged, never propagated.
func (s *Store) Write(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) bool {
	now := s.now()
	return s.WriteEnvelope(ctx, key, Envelope{
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
}

// WriteEnvelope persists an envelope verbatim. The optimistic-update path
// uses this to patch a payload while keeping the original CachedAt and
// ExpiresAt (a local patch is not a revalidation and must not extend the
// TTL).
func (s *Store) WriteEnvelope(ctx context.Context, key string, env Envelope) bool {
	raw, err := env.encode()
	if err != nil {
		s.log.Warn("cache write dropped: encode failed", "key", key, "error", err)
		return false
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.log.Warn("cache write dropped: backend set failed", "key", key, "error", err)
		return false
	}
	if s.front != nil {
		s.front.set(key, raw)
	}
	return true
}

// Read returns the envelope stored under key. It does not interpret
// ExpiresAt — staleness is the caller's decision. Backend errors and corrupt
// entries degrade to a miss.
func (s *Store) Read(ctx context.Context, key string) (Envelope, bool) {
	if s.front != nil {
		if raw, ok := s.front.get(key); ok {
			env, err := decodeEnvelope(raw)
			if err == nil {
				return env, true
			}
			s.front.remove(key)
		}
	}

	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache read degraded to miss: backend get failed", "key", key, "error", err)
		return Envelope{}, false
	}
	if !ok {
		return Envelope{}, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		s.log.Warn("cache read degraded to miss: corrupt envelope", "key", key, "error", err)
		// Drop the corrupt entry so the next write starts clean.
		_ = s.kv.Remove(ctx, key)
		return Envelope{}, false
	}
	if s.front != nil {
		s.front.set(key, raw)
	}
	return env, true
}

// Remove deletes a single envelope. Removing an absent key succeeds.
func (s *Store) Remove(ctx context.Context, key string) bool {
	if s.front != nil {
		s.front.remove(key)
	}
	if err := s.kv.Remove(ctx, key); err != nil {
		s.log.Warn("cache remove failed", "key", key, "error", err)
		return false
	}
	return true
}

// ClearByPrefix removes every envelope whose key starts with prefix and
// returns the number removed. Per-entry deletes may interleave with
// concurrent readers; each surviving entry stays individually consistent.
func (s *Store) ClearByPrefix(ctx context.Context, prefix string) int {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		s.log.Warn("prefix clear aborted: key scan failed", "prefix", prefix, "error", err)
		return 0
	}
	if s.front != nil {
		// The front cannot scan by prefix; drop it wholesale.
		s.front.reset()
	}
	removed := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := s.kv.Remove(ctx, k); err != nil {
			s.log.Warn("prefix clear: remove failed", "key", k, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// ClearAll removes every envelope in the store and returns the number
// removed. Backs the "reset app data" and "log out" surfaces.
func (s *Store) ClearAll(ctx context.Context) int {
	return s.ClearByPrefix(ctx, "")
}

// Stats describes the store contents for diagnostic surfaces. Not a hot
// path: it scans and re-reads every key.
type Stats struct {
	TotalItems       int
	TotalSize        int64
	ItemsByNamespace map[string]int
}

// Stats aggregates entry counts and sizes, bucketing keys by the given
// namespace prefixes. Keys matching none of the prefixes are counted under
// "other".
func (s *Store) Stats(ctx context.Context, namespaces ...string) Stats {
	st := Stats{ItemsByNamespace: make(map[string]int)}
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		s.log.Warn("stats: key scan failed", "error", err)
		return st
	}
	for _, k := range keys {
		raw, ok, err := s.kv.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		st.TotalItems++
		st.TotalSize += int64(len(raw))
		ns := "other"
		for _, prefix := range namespaces {
			if strings.HasPrefix(k, prefix) {
				ns = prefix
				break
			}
		}
		st.ItemsByNamespace[ns]++
	}
	return st
}
