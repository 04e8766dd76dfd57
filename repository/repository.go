// Package repository defines the authoritative-store contract the
// coordinator consumes, plus an in-memory fake implementation used as the
// builder's default and by the test suites across this module.
package repository

import "context"

// Repository is the external, authoritative data source the tiered cache
// fronts. Find may raise any error for any reason (timeouts, connection
// loss, corruption); the coordinator treats every such error identically to
// "absent, unavailable" and falls through to the disk tier. Save is not
// called by the coordinator's Get/Put path — it exists for callers who wire
// up their own write-through outside the cache.
type Repository[K comparable, V any] interface {
	// Find looks up key in the authoritative store. ok is false when the
	// key is genuinely absent; err is non-nil when the lookup itself
	// failed for any reason, which the coordinator treats the same as
	// ok == false.
	Find(ctx context.Context, key K) (value V, ok bool, err error)

	// Save persists value under key in the authoritative store. Not
	// invoked by Coordinator.Put.
	Save(ctx context.Context, key K, value V) error

	// Close releases any backing resources (connections, handles). Must
	// be idempotent.
	Close() error
}
