package stash

import "time"

// DefaultTTL applies when neither the call nor the policy resolver supplies
// a TTL.
const DefaultTTL = 5 * time.Minute

// Default background-revalidation budget: enough for a screenful of stale
// keys, low enough that a stale-heavy list cannot stampede the backend.
const (
	DefaultRevalidationRPS   = 5.0
	DefaultRevalidationBurst = 10
)

// DefaultOptions returns the recommended set of options for production use.
func DefaultOptions() []Option {
	return []Option{
		WithRevalidationLimit(DefaultRevalidationRPS, DefaultRevalidationBurst),
	}
}
