// Package tiercache is the tiered read-through cache described by the
// specification: a bounded in-memory tier fronting an authoritative
// repository, backstopped by a persistent local disk tier that
// transparently receives whatever the hot tier evicts.
//
// Coordinator is the public entry point. Construct one with NewBuilder,
// chain configuration, and call Build.
package tiercache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SivagurunathanV/tier-cache/disktier"
	"github.com/SivagurunathanV/tier-cache/hottier"
	"github.com/SivagurunathanV/tier-cache/repository"
	"github.com/SivagurunathanV/tier-cache/tiererrors"
)

const (
	defaultStorePath       = "./tier_cache_db"
	defaultMaxCacheSize    = 1000
	defaultRetentionDays   = 7
	defaultHotTierWriteAge = 15 * time.Minute
)

// Builder configures and constructs a Coordinator. The zero value is not
// usable; start from NewBuilder.
//
// Configuration is a fluent setter chain ending in a single Build call,
// rather than a generic functional-options argument, so callers can set
// only what they need while everything else keeps the defaults NewBuilder
// installs.
type Builder[K comparable, V any] struct {
	storePath       string
	maxCacheSize    int
	retentionDays   int
	cleanupInterval time.Duration
	hotTierTTL      time.Duration
	repo            repository.Repository[K, V]
	ownsRepository  bool
	logger          *slog.Logger
}

// NewBuilder returns a Builder seeded with documented defaults: store path
// "./tier_cache_db", max cache size 1000, retention window 7 days, and an
// in-memory fake Repository.
func NewBuilder[K comparable, V any]() *Builder[K, V] {
	return &Builder[K, V]{
		storePath:      defaultStorePath,
		maxCacheSize:   defaultMaxCacheSize,
		retentionDays:  defaultRetentionDays,
		hotTierTTL:     defaultHotTierWriteAge,
		ownsRepository: true,
	}
}

// StorePath sets the DiskTier's backing directory.
func (b *Builder[K, V]) StorePath(path string) *Builder[K, V] {
	b.storePath = path
	return b
}

// MaxCacheSize sets the HotTier's upper bound S.
func (b *Builder[K, V]) MaxCacheSize(n int) *Builder[K, V] {
	b.maxCacheSize = n
	return b
}

// RetentionDays is accepted for API stability; it does not drive
// per-entry expiry (cleanup is a full wipe, not an age-based purge). It is
// passed on to the disk tier as its RetentionWindow, which does not act on
// it either; Builder has no accessor for reading it back.
func (b *Builder[K, V]) RetentionDays(days int) *Builder[K, V] {
	b.retentionDays = days
	return b
}

// CleanupInterval sets the DiskTier's periodic wipe-and-rebuild period.
// Zero (the default) disables it.
func (b *Builder[K, V]) CleanupInterval(d time.Duration) *Builder[K, V] {
	b.cleanupInterval = d
	return b
}

// HotTierTTL overrides the HotTier's write-age expiry (spec default 15
// minutes).
func (b *Builder[K, V]) HotTierTTL(d time.Duration) *Builder[K, V] {
	b.hotTierTTL = d
	return b
}

// WithRepository supplies a caller-owned Repository. The coordinator holds
// a reference but does not close it on Coordinator.Close — ownership stays
// with the caller that constructed it.
func (b *Builder[K, V]) WithRepository(repo repository.Repository[K, V]) *Builder[K, V] {
	b.repo = repo
	b.ownsRepository = false
	return b
}

// WithLogger overrides the default slog.Default() logger.
func (b *Builder[K, V]) WithLogger(logger *slog.Logger) *Builder[K, V] {
	b.logger = logger
	return b
}

// Build constructs the disk tier, the repository (or its default fake),
// and the hot tier (installing the eviction listener that hands departing
// entries to the disk tier), in that order. It returns an InitError if the
// disk tier fails to open.
func (b *Builder[K, V]) Build() (*Coordinator[K, V], error) {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	disk, err := disktier.New[K, V](disktier.Config{
		Path:            b.storePath,
		RetentionWindow: time.Duration(b.retentionDays) * 24 * time.Hour,
		CleanupInterval: b.cleanupInterval,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	repo := b.repo
	ownsRepository := b.ownsRepository
	if repo == nil {
		repo = repository.NewMemRepo[K, V]()
		ownsRepository = true
	}

	c := &Coordinator[K, V]{
		disk:           disk,
		repo:           repo,
		ownsRepository: ownsRepository,
		logger:         logger,
	}

	hot, err := hottier.New[K, V](hottier.Config{
		MaxSize: b.maxCacheSize,
		TTL:     b.hotTierTTL,
	}, c.onEviction)
	if err != nil {
		_ = disk.Close()
		return nil, err
	}
	c.hot = hot

	return c, nil
}

// Coordinator resolves Get across the three tiers with the fallback order
// Hot -> Repository -> Disk, swallowing Repository and Disk errors on the
// read path so a repository outage degrades to disk-backed service instead
// of failing the caller.
type Coordinator[K comparable, V any] struct {
	hot            *hottier.Tier[K, V]
	disk           *disktier.Tier[K, V]
	repo           repository.Repository[K, V]
	ownsRepository bool
	logger         *slog.Logger

	// sf collapses concurrent Get calls for the same key while a
	// repository/disk round trip is in flight, so an outage doesn't
	// multiply its latency by every waiting caller.
	sf singleflight.Group

	stats statCounters

	closeOnce sync.Once
	closed    atomic.Bool
}

// statCounters holds the atomic hit/miss/error/eviction tallies backing
// Stats(), at per-tier granularity since a hit can come from any of the
// three tiers.
type statCounters struct {
	hotHits             atomic.Uint64
	hotMisses           atomic.Uint64
	repositoryHits      atomic.Uint64
	repositoryErrors    atomic.Uint64
	diskHits            atomic.Uint64
	diskMisses          atomic.Uint64
	diskErrors          atomic.Uint64
	evictions           atomic.Uint64
	evictionSpillErrors atomic.Uint64
}

// Stats is a point-in-time snapshot of Coordinator's counters. This is
// only the raw tallies; aggregation and export belong to whatever metrics
// collector a caller wires up around it.
type Stats struct {
	HotHits             uint64
	HotMisses           uint64
	RepositoryHits      uint64
	RepositoryErrors    uint64
	DiskHits            uint64
	DiskMisses          uint64
	DiskErrors          uint64
	Evictions           uint64
	EvictionSpillErrors uint64
}

// Stats returns a snapshot of the coordinator's counters.
func (c *Coordinator[K, V]) Stats() Stats {
	return Stats{
		HotHits:             c.stats.hotHits.Load(),
		HotMisses:           c.stats.hotMisses.Load(),
		RepositoryHits:      c.stats.repositoryHits.Load(),
		RepositoryErrors:    c.stats.repositoryErrors.Load(),
		DiskHits:            c.stats.diskHits.Load(),
		DiskMisses:          c.stats.diskMisses.Load(),
		DiskErrors:          c.stats.diskErrors.Load(),
		Evictions:           c.stats.evictions.Load(),
		EvictionSpillErrors: c.stats.evictionSpillErrors.Load(),
	}
}

// onEviction is the coordinator's eviction listener: it unconditionally
// offers every departing (key, value) pair to the disk tier, regardless of
// eviction cause, and drops any error the disk tier raises rather than
// letting it escape the hot tier's maintenance goroutine.
func (c *Coordinator[K, V]) onEviction(key K, value V, cause hottier.Cause) {
	c.stats.evictions.Add(1)
	if err := c.disk.Save(context.Background(), key, value); err != nil {
		c.stats.evictionSpillErrors.Add(1)
		c.logger.Warn("tiercache: failed to spill evicted entry to disk tier", "err", err, "cause", cause)
	}
}

// Get resolves key across the three tiers. See the Coordinator type's doc
// for the fallback sequence.
func (c *Coordinator[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	if c.closed.Load() {
		return zero, false, tiererrors.NewClosedError("coordinator")
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return zero, false, tiererrors.NewCancelledError(ctx.Err())
		default:
		}
	}

	if v, ok := c.hot.Get(key); ok {
		c.stats.hotHits.Add(1)
		return v, true, nil
	}
	c.stats.hotMisses.Add(1)

	sfKey := fmt.Sprintf("%v", key)
	result, err, _ := c.sf.Do(sfKey, func() (interface{}, error) {
		return c.resolveMiss(ctx, key)
	})
	if err == nil && result.(foundValue[K, V]).key != key {
		// A distinct key with the same %v form owned this single-flight
		// slot, so its result is not this key's; resolve this key itself.
		result, err = c.resolveMiss(ctx, key)
	}
	if err != nil {
		// resolveMiss only ever returns a non-nil error on cancellation;
		// every tier error is swallowed internally.
		return zero, false, err
	}
	found := result.(foundValue[K, V])
	return found.value, found.ok, nil
}

type foundValue[K comparable, V any] struct {
	key   K
	value V
	ok    bool
}

// resolveMiss runs the fallback sequence after a hot-tier miss: Repository,
// then DiskTier, promoting whichever tier answers first back into the hot
// tier before returning.
func (c *Coordinator[K, V]) resolveMiss(ctx context.Context, key K) (interface{}, error) {
	var zero V
	if ctx != nil {
		select {
		case <-ctx.Done():
			return foundValue[K, V]{}, tiererrors.NewCancelledError(ctx.Err())
		default:
		}
	}

	// A second Get(key) that arrived while this one was in flight may have
	// already promoted the value into the hot tier; check again now that
	// we hold the single-flight slot exclusively for this key.
	if v, ok := c.hot.Get(key); ok {
		return foundValue[K, V]{key, v, true}, nil
	}

	if v, ok, err := c.repo.Find(ctx, key); err != nil {
		if ctx != nil && ctx.Err() != nil {
			return foundValue[K, V]{}, tiererrors.NewCancelledError(ctx.Err())
		}
		c.stats.repositoryErrors.Add(1)
		c.logger.Debug("tiercache: repository lookup failed, falling through to disk tier", "err", err)
	} else if ok {
		c.stats.repositoryHits.Add(1)
		c.hot.Put(key, v)
		return foundValue[K, V]{key, v, true}, nil
	}

	v, ok, err := c.disk.Load(ctx, key)
	if err != nil {
		if ctx != nil && ctx.Err() != nil {
			return foundValue[K, V]{}, tiererrors.NewCancelledError(ctx.Err())
		}
		c.stats.diskErrors.Add(1)
		c.logger.Debug("tiercache: disk tier lookup failed", "err", err)
		return foundValue[K, V]{key, zero, false}, nil
	}
	if ok {
		c.stats.diskHits.Add(1)
		c.hot.Put(key, v)
		return foundValue[K, V]{key, v, true}, nil
	}
	c.stats.diskMisses.Add(1)
	return foundValue[K, V]{key, zero, false}, nil
}

// Put inserts key/value into the hot tier only. It never writes through to
// the Repository or DiskTier; the DiskTier receives the pair only if/when
// the hot tier evicts it.
func (c *Coordinator[K, V]) Put(ctx context.Context, key K, value V) error {
	if c.closed.Load() {
		return tiererrors.NewClosedError("coordinator")
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return tiererrors.NewCancelledError(ctx.Err())
		default:
		}
	}
	c.hot.Put(key, value)
	return nil
}

// Close releases HotTier, Repository (if owned) and DiskTier, in that
// order. Idempotent.
func (c *Coordinator[K, V]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.hot.Close()
		if c.ownsRepository {
			if repErr := c.repo.Close(); repErr != nil {
				err = repErr
			}
		}
		if diskErr := c.disk.Close(); diskErr != nil && err == nil {
			err = diskErr
		}
	})
	return err
}
