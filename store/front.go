package store

import (
	"bytes"

	"github.com/dgraph-io/ristretto/v2"
)

// Front is an optional in-process layer ahead of the KV backend, holding
// serialized envelopes so repeat reads of a hot key skip storage I/O. The
// front carries no TTL of its own — expiry lives inside the envelope and is
// evaluated by the reader, so a front hit and a backend hit classify
// identically.
//
// Ristretto cannot enumerate keys, so a prefix clear drops the whole front.
// That is coarse but safe: the next read of any key repopulates from the
// backend.
type Front struct {
	rc *ristretto.Cache[string, []byte]
}

// NewFront creates a front holding at most maxEntries envelopes (each entry
// has a cost of 1).
func NewFront(maxEntries int64) (*Front, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Front{rc: rc}, nil
}

func (f *Front) get(key string) ([]byte, bool) {
	v, ok := f.rc.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

func (f *Front) set(key string, raw []byte) {
	f.rc.Set(key, bytes.Clone(raw), 1)
	f.rc.Wait()
}

func (f *Front) remove(key string) {
	f.rc.Del(key)
}

func (f *Front) reset() {
	f.rc.Clear()
}
