// Package tiercachetest holds shared test doubles used across this
// module's package test suites: a Repository that can be told to fail or
// go unavailable on command, and a helper for standing up a throwaway disk
// tier, so tests can simulate the fallthrough-to-disk path without
// reaching into production code's internals.
package tiercachetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SivagurunathanV/tier-cache/disktier"
	"github.com/SivagurunathanV/tier-cache/tiererrors"
)

// ErrSimulatedOutage is the error FlakyRepo.Find/Save return while Failing
// is set.
var ErrSimulatedOutage = errors.New("tiercachetest: simulated repository outage")

// FlakyRepo is a Repository double whose Find can be made to fail, delay,
// or simply report a miss, independently of the underlying data map. Tests
// use it to exercise the coordinator's fallthrough-to-disk behavior under
// a repository outage.
type FlakyRepo[K comparable, V any] struct {
	mu      sync.Mutex
	data    map[K]V
	failing bool
	delay   time.Duration
	finds   int
}

// NewFlakyRepo returns an available, empty FlakyRepo.
func NewFlakyRepo[K comparable, V any]() *FlakyRepo[K, V] {
	return &FlakyRepo[K, V]{data: make(map[K]V)}
}

// Seed installs a value directly, bypassing Save.
func (r *FlakyRepo[K, V]) Seed(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
}

// SetFailing toggles whether Find/Save return ErrSimulatedOutage.
func (r *FlakyRepo[K, V]) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

// SetDelay makes Find sleep before answering (Save does not sleep), to
// exercise context-cancellation and concurrent-lookup paths.
func (r *FlakyRepo[K, V]) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// FindCount reports how many times Find has been called, for assertions
// that singleflight collapsed concurrent lookups.
func (r *FlakyRepo[K, V]) FindCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finds
}

func (r *FlakyRepo[K, V]) Find(ctx context.Context, key K) (V, bool, error) {
	var zero V
	r.mu.Lock()
	r.finds++
	failing := r.failing
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
	if failing {
		return zero, false, tiererrors.NewRepositoryError(ErrSimulatedOutage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	return v, ok, nil
}

func (r *FlakyRepo[K, V]) Save(_ context.Context, key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return tiererrors.NewRepositoryError(ErrSimulatedOutage)
	}
	r.data[key] = value
	return nil
}

func (r *FlakyRepo[K, V]) Close() error { return nil }

// NewDiskTier stands up a disktier.Tier rooted in a fresh t.TempDir,
// registering cleanup via t.Cleanup so callers never need to close it
// explicitly.
func NewDiskTier[K comparable, V any](t *testing.T, cfg disktier.Config) *disktier.Tier[K, V] {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = t.TempDir()
	}
	tier, err := disktier.New[K, V](cfg)
	if err != nil {
		t.Fatalf("tiercachetest: failed to build disk tier: %v", err)
	}
	t.Cleanup(func() { _ = tier.Close() })
	return tier
}
