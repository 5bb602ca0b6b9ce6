// Package policy maps cache keys to per-namespace cache policies. Groups are
// built from exact, prefix, and regex rules over the key space, so operators
// can retune a namespace's TTL or revalidation behavior without touching the
// entity helpers that construct the keys.
package policy

import (
	"regexp"
	"time"
)

// Policy holds the cache configuration that applies to a matched namespace
// group.
type Policy struct {
	// TTL is the staleness horizon for entries in this namespace.
	TTL time.Duration

	// Background marks the namespace as tolerating stale reads: stale hits
	// should be served immediately and revalidated without blocking.
	Background bool
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

// rule is a single matching rule inside a group.
type rule struct {
	kind    matchKind
	pattern string         // used for exact and prefix matches
	re      *regexp.Regexp // used for regex matches
}

// GroupBuilder constructs a namespace group with one or more matching rules
// and a policy.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy *Policy
}

// Group starts building a new namespace group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact adds an exact-match rule for a single cache key.
func (g *GroupBuilder) Exact(key string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: key})
	return g
}

// Prefix adds a prefix-match rule, the natural fit for namespace prefixes
// like "user_history_".
func (g *GroupBuilder) Prefix(prefix string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: prefix})
	return g
}

// Regex adds a regex-match rule over the key.
// The pattern is compiled immediately; an invalid regex will panic.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// Policy attaches a Policy to the group and returns the finished builder.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}
