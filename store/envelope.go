package store

import (
	"encoding/json"
	"time"
)

// Envelope is the unit of storage: an opaque payload plus the timing
// metadata that read-through policy decisions are made from. Staleness is a
// read-time classification — an Envelope past its ExpiresAt stays in the
// store until it is overwritten or explicitly removed.
type Envelope struct {
	// Payload is the cached fetch result, kept as raw JSON so the store
	// never depends on the shape of any one entity.
	Payload json.RawMessage `json:"payload"`

	// CachedAt is the time the envelope was written.
	CachedAt time.Time `json:"cachedAt"`

	// ExpiresAt is CachedAt plus the TTL supplied at write time.
	ExpiresAt time.Time `json:"expiresAt"`

	// Revision increments on every optimistic patch. A background
	// revalidation records the revision it read and skips its write when the
	// stored revision has moved, so a refetch that raced a local patch does
	// not silently clobber it.
	Revision int64 `json:"revision,omitempty"`
}

// Fresh reports whether the envelope is still within its TTL at the given
// instant.
func (e Envelope) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// encode serializes the envelope for the underlying KV.
func (e Envelope) encode() ([]byte, error) {
	return json.Marshal(e)
}

// decodeEnvelope parses a stored envelope. A decode failure means the entry
// is corrupt and must be treated as a miss.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
