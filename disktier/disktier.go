// Package disktier implements the persistent local key-value store: a
// single-writer store offering point and batch operations over a
// compressed, non-sync-write embedded engine, plus periodic
// wipe-and-rebuild cleanup.
//
// The engine is github.com/cockroachdb/pebble. Directory lifecycle and the
// wipe-and-rebuild cleanup cycle follow the same close-engine,
// os.RemoveAll, recreate, reopen dance a pruning job uses when it decides
// old on-disk data is no longer needed.
package disktier

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/SivagurunathanV/tier-cache/objectcodec"
	"github.com/SivagurunathanV/tier-cache/tiererrors"
)

// Config configures a Tier's backing store and maintenance schedule.
type Config struct {
	// Path is the filesystem directory holding the engine's files. Created
	// (including parents) if missing.
	Path string

	// RetentionWindow is accepted for API compatibility with callers that
	// migrated from a per-entry-TTL design, but is not honored: cleanup,
	// when enabled, wipes everything regardless of entry age.
	RetentionWindow time.Duration

	// CleanupInterval is the period of the full-wipe cleanup worker. Zero
	// disables periodic cleanup; CleanupNow can still be called manually.
	CleanupInterval time.Duration

	// MemTableSize overrides pebble's write-buffer size. Zero uses the
	// nominal default (~1 MiB).
	MemTableSize uint64

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MemTableSize == 0 {
		c.MemTableSize = 1 << 20 // ~1 MiB
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Tier is the persistent, process-local key-value store.
//
// All operations (Save, SaveBatch, Load, Cleanup) serialize through
// dbLock — a single process-wide mutex. A RWMutex would be a safe
// relaxation given pebble's own internal concurrency control, but the
// plain Mutex is the simpler, more conservative default.
type Tier[K comparable, V any] struct {
	cfg   Config
	codec *objectcodec.Pool

	dbLock sync.Mutex
	db     *pebble.DB

	cleanupStop chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
	closed      bool
	closedMu    sync.RWMutex
}

// New opens (or creates) the disk tier at cfg.Path and starts the cleanup
// worker if cfg.CleanupInterval > 0.
func New[K comparable, V any](cfg Config) (*Tier[K, V], error) {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, tiererrors.NewInitError("disktier", err)
	}

	db, err := openEngine(cfg)
	if err != nil {
		return nil, tiererrors.NewInitError("disktier", err)
	}

	t := &Tier[K, V]{
		cfg:   cfg,
		codec: objectcodec.NewPool(),
		db:    db,
	}

	if cfg.CleanupInterval > 0 {
		t.cleanupStop = make(chan struct{})
		t.cleanupDone = make(chan struct{})
		go t.runCleanupWorker()
	}

	return t, nil
}

func openEngine(cfg Config) (*pebble.DB, error) {
	opts := &pebble.Options{
		// create-if-missing.
		ErrorIfNotExists: false,
		MemTableSize:     cfg.MemTableSize,
		Levels: []pebble.LevelOptions{
			{Compression: pebble.SnappyCompression},
		},
	}
	return pebble.Open(cfg.Path, opts)
}

func (t *Tier[K, V]) checkOpen(op string) error {
	t.closedMu.RLock()
	defer t.closedMu.RUnlock()
	if t.closed {
		return tiererrors.NewClosedError("disktier")
	}
	return nil
}

// Save encodes key and value and writes them under the write lock,
// returning once the engine has acknowledged the write (not necessarily
// fsynced — writes use pebble.NoSync throughout).
func (t *Tier[K, V]) Save(ctx context.Context, key K, value V) error {
	if err := t.checkOpen("save"); err != nil {
		return err
	}
	if err := ctxDone(ctx); err != nil {
		return err
	}

	kb, err := t.codec.Encode(key)
	if err != nil {
		return err
	}
	vb, err := t.codec.Encode(value)
	if err != nil {
		return err
	}

	t.dbLock.Lock()
	defer t.dbLock.Unlock()

	if err := t.db.Set(kb, vb, pebble.NoSync); err != nil {
		return tiererrors.NewDiskError("save", err)
	}
	return nil
}

// SaveBatch encodes every entry and commits them as a single atomic write
// batch: either all entries persist, or (on error) none do.
func (t *Tier[K, V]) SaveBatch(ctx context.Context, entries map[K]V) error {
	if err := t.checkOpen("saveBatch"); err != nil {
		return err
	}
	if err := ctxDone(ctx); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	type kv struct{ k, v []byte }
	encoded := make([]kv, 0, len(entries))
	for k, v := range entries {
		kb, err := t.codec.Encode(k)
		if err != nil {
			return err
		}
		vb, err := t.codec.Encode(v)
		if err != nil {
			return err
		}
		encoded = append(encoded, kv{kb, vb})
	}

	t.dbLock.Lock()
	defer t.dbLock.Unlock()

	batch := t.db.NewBatch()
	defer batch.Close()
	for _, e := range encoded {
		if err := batch.Set(e.k, e.v, nil); err != nil {
			return tiererrors.NewDiskError("saveBatch", err)
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return tiererrors.NewDiskError("saveBatch", err)
	}
	return nil
}

// Load returns the value stored under key, or ok == false if absent.
func (t *Tier[K, V]) Load(ctx context.Context, key K) (value V, ok bool, err error) {
	if err = t.checkOpen("load"); err != nil {
		return value, false, err
	}
	if err = ctxDone(ctx); err != nil {
		return value, false, err
	}

	kb, err := t.codec.Encode(key)
	if err != nil {
		return value, false, err
	}

	t.dbLock.Lock()
	raw, closer, getErr := t.db.Get(kb)
	if getErr != nil {
		t.dbLock.Unlock()
		if getErr == pebble.ErrNotFound {
			return value, false, nil
		}
		return value, false, tiererrors.NewDiskError("load", getErr)
	}
	decodedBytes := append([]byte(nil), raw...)
	closer.Close()
	t.dbLock.Unlock()

	decoded, err := t.codec.Decode(decodedBytes)
	if err != nil {
		return value, false, err
	}
	v, ok := decoded.(V)
	if !ok {
		return value, false, tiererrors.NewDeserializationError(errors.New("disk tier: decoded value has unexpected type"))
	}
	return v, true, nil
}

// LoadBatch multi-gets keys, omitting absent keys from the result map —
// the returned map never contains a zero-value placeholder for a miss.
func (t *Tier[K, V]) LoadBatch(ctx context.Context, keys []K) (map[K]V, error) {
	if err := t.checkOpen("loadBatch"); err != nil {
		return nil, err
	}
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}

	out := make(map[K]V, len(keys))
	for _, key := range keys {
		v, ok, err := t.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = v
		}
	}
	return out, nil
}

// CleanupNow performs the wipe-and-rebuild cycle synchronously: closes the
// engine, destroys the on-disk directory, recreates it, and reopens the
// engine. After it returns, the tier is logically empty and immediately
// usable — no caller can observe a half-destroyed state because the whole
// cycle runs under dbLock.
func (t *Tier[K, V]) CleanupNow() error {
	if err := t.checkOpen("cleanup"); err != nil {
		return err
	}

	t.dbLock.Lock()
	defer t.dbLock.Unlock()

	if err := t.db.Close(); err != nil {
		return tiererrors.NewDiskError("cleanup", err)
	}
	if err := os.RemoveAll(t.cfg.Path); err != nil {
		return tiererrors.NewDiskError("cleanup", err)
	}
	if err := os.MkdirAll(t.cfg.Path, 0o755); err != nil {
		return tiererrors.NewDiskError("cleanup", err)
	}

	db, err := openEngine(t.cfg)
	if err != nil {
		return tiererrors.NewDiskError("cleanup", err)
	}
	t.db = db
	return nil
}

// Close stops the cleanup worker (giving it a 5-second grace period) and
// closes the engine. Idempotent.
func (t *Tier[K, V]) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.closedMu.Lock()
		t.closed = true
		t.closedMu.Unlock()

		if t.cleanupStop != nil {
			close(t.cleanupStop)
			select {
			case <-t.cleanupDone:
			case <-time.After(5 * time.Second):
				t.cfg.Logger.Warn("disktier: cleanup worker did not stop within grace period")
			}
		}

		t.dbLock.Lock()
		defer t.dbLock.Unlock()
		if err := t.db.Close(); err != nil {
			closeErr = tiererrors.NewDiskError("close", err)
		}
	})
	return closeErr
}

func ctxDone(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return tiererrors.NewCancelledError(ctx.Err())
	default:
		return nil
	}
}
