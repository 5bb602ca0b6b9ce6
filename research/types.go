// Package research is the entity layer between screens and the cache core:
// per-entity cache keys and TTLs, fetch wrappers with safe defaults, the
// remote fallback chains, and the optimistic-update helpers the realtime
// push channel drives.
package research

import "time"

// Status is the lifecycle state of a research run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status ends a run. Terminal items never
// belong in the active queue view.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Item is one research run as the backend reports it.
type Item struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Query       string     `json:"query"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ResultsMap records which research runs have results available, keyed by
// research id. Screens use it to decide whether a "view results" affordance
// renders without fetching each result.
type ResultsMap map[string]bool
