package research

import (
	"time"

	"github.com/nestfall/stash/policy"
)

// Namespace prefixes. Each entity owns one so bulk invalidation can target a
// single namespace without touching the others.
const (
	HistoryPrefix = "user_history_"
	ItemPrefix    = "research_item_"
	QueuePrefix   = "active_queue_"
	ResultsPrefix = "research_results_"
)

// Per-entity TTLs, tuned to each entity's staleness tolerance. The active
// queue changes fastest and tolerates the least.
const (
	HistoryTTL = 5 * time.Minute
	ItemTTL    = 10 * time.Minute
	QueueTTL   = 2 * time.Minute
	ResultsTTL = 10 * time.Minute
)

// HistoryKey is the cache key for a user's research history list.
func HistoryKey(userID string) string { return HistoryPrefix + userID }

// ItemKey is the cache key for a single research item.
func ItemKey(id string) string { return ItemPrefix + id }

// QueueKey is the cache key for a user's active (pending/processing) queue.
func QueueKey(userID string) string { return QueuePrefix + userID }

// ResultsKey is the cache key for a user's results-existence map.
func ResultsKey(userID string) string { return ResultsPrefix + userID }

// Namespaces lists every research namespace prefix, in the order diagnostic
// surfaces display them.
func Namespaces() []string {
	return []string{HistoryPrefix, ItemPrefix, QueuePrefix, ResultsPrefix}
}

// Policies returns the namespace policy groups for the research entities,
// for wiring into the cache client via stash.WithPolicyResolver.
func Policies() *policy.Resolver {
	return policy.NewResolver(
		policy.Group("history").Prefix(HistoryPrefix).Policy(policy.Policy{TTL: HistoryTTL, Background: true}),
		policy.Group("item").Prefix(ItemPrefix).Policy(policy.Policy{TTL: ItemTTL, Background: true}),
		policy.Group("queue").Prefix(QueuePrefix).Policy(policy.Policy{TTL: QueueTTL}),
		policy.Group("results").Prefix(ResultsPrefix).Policy(policy.Policy{TTL: ResultsTTL, Background: true}),
	)
}
