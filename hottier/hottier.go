// Package hottier implements the bounded, in-memory tier: a size- and
// write-age-bounded map with an eviction listener that is invoked for
// every departure, regardless of cause.
//
// The capacity/eviction policy itself is delegated to
// github.com/maypok86/otter, a W-TinyLFU admission and eviction cache.
// Hand-rolling the policy on top of container/list would both duplicate a
// well-tested library and fall short of true frequency-aware admission.
package hottier

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/SivagurunathanV/tier-cache/tiererrors"
)

// Cause identifies why an entry left the tier. It mirrors otter's
// DeletionCause but is re-exported under this package so callers of Tier
// never need to import otter directly.
type Cause uint8

const (
	// CauseExplicit is an explicit Invalidate/Clear call.
	CauseExplicit Cause = iota
	// CauseReplaced means the key was overwritten by a new Put.
	CauseReplaced
	// CauseSize means the entry was evicted to keep the tier within its
	// configured maximum size.
	CauseSize
	// CauseExpired means the entry's write-age exceeded its configured TTL.
	CauseExpired
)

func fromOtterCause(c otter.DeletionCause) Cause {
	switch c {
	case otter.Explicit:
		return CauseExplicit
	case otter.Replaced:
		return CauseReplaced
	case otter.Size:
		return CauseSize
	case otter.Expired:
		return CauseExpired
	default:
		return CauseExplicit
	}
}

// Listener is invoked for every entry that leaves the tier, regardless of
// cause. A panic or error from the listener must never propagate out of
// the tier; Tier recovers from listener panics internally.
type Listener[K comparable, V any] func(key K, value V, cause Cause)

// Config configures a Tier's capacity and write-age expiry.
type Config struct {
	// MaxSize is the steady-state upper bound on entry count. The
	// W-TinyLFU policy in otter may transiently exceed MaxSize by a small
	// implementation-defined margin before its own maintenance pass
	// catches up.
	MaxSize int
	// TTL is the write-age expiry (default 15 minutes, set by the
	// coordinator's builder). Zero means entries never expire by age.
	TTL time.Duration
}

// Tier is the bounded in-memory associative container.
type Tier[K comparable, V any] struct {
	cache  otter.Cache[K, V]
	closed bool
}

// New constructs a Tier with the given configuration. listener is invoked
// synchronously by otter's own maintenance goroutine for every eviction or
// expiry; it must not block for long or it will delay that goroutine's
// other housekeeping.
func New[K comparable, V any](cfg Config, listener Listener[K, V]) (*Tier[K, V], error) {
	size := cfg.MaxSize
	if size <= 0 {
		size = 1000
	}

	builder, err := otter.NewBuilder[K, V](size)
	if err != nil {
		return nil, tiererrors.NewInitError("hottier", err)
	}
	if cfg.TTL > 0 {
		builder = builder.WithTTL(cfg.TTL)
	}
	builder = builder.DeletionListener(func(key K, value V, cause otter.DeletionCause) {
		if listener == nil {
			return
		}
		safeInvoke(listener, key, value, fromOtterCause(cause))
	})

	cache, err := builder.Build()
	if err != nil {
		return nil, tiererrors.NewInitError("hottier", err)
	}
	return &Tier[K, V]{cache: cache}, nil
}

// safeInvoke guarantees a panicking listener cannot bring down otter's
// maintenance goroutine.
func safeInvoke[K comparable, V any](listener Listener[K, V], key K, value V, cause Cause) {
	defer func() {
		_ = recover()
	}()
	listener(key, value, cause)
}

// Get returns the value stored under key, if present and unexpired.
func (t *Tier[K, V]) Get(key K) (V, bool) {
	return t.cache.Get(key)
}

// Put inserts or overwrites key. It never blocks on I/O — any eviction
// this triggers runs the listener on otter's own maintenance goroutine,
// asynchronously to this call.
func (t *Tier[K, V]) Put(key K, value V) {
	t.cache.Set(key, value)
}

// Invalidate removes key explicitly, if present, delivering CauseExplicit
// to the listener.
func (t *Tier[K, V]) Invalidate(key K) {
	t.cache.Delete(key)
}

// Len returns the current entry count. Useful for size-bound assertions in
// tests; not part of the coordinator's hot path.
func (t *Tier[K, V]) Len() int {
	return t.cache.Size()
}

// Close releases the tier's background maintenance goroutine. Idempotent.
func (t *Tier[K, V]) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.cache.Close()
}
