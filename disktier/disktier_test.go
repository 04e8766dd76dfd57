package disktier

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTier(t *testing.T, cfg Config) *Tier[string, string] {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "db")
	}
	tier, err := New[string, string](cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tier.Close() })
	return tier
}

func TestSaveThenLoad(t *testing.T) {
	tier := newTestTier(t, Config{})
	ctx := context.Background()

	require.NoError(t, tier.Save(ctx, "k", "v"))

	val, ok, err := tier.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", val)
}

func TestLoadMissingKeyIsAbsentNotError(t *testing.T) {
	tier := newTestTier(t, Config{})

	_, ok, err := tier.Load(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveBatchAndLoadBatch(t *testing.T) {
	tier := newTestTier(t, Config{})
	ctx := context.Background()

	entries := map[string]string{"a": "1", "b": "2", "c": "3"}
	require.NoError(t, tier.SaveBatch(ctx, entries))

	got, err := tier.LoadBatch(ctx, []string{"a", "b", "c", "missing"})
	require.NoError(t, err)
	require.Equal(t, entries, got)
	require.NotContains(t, got, "missing")
}

func TestEmptyBatchesSucceed(t *testing.T) {
	tier := newTestTier(t, Config{})
	ctx := context.Background()

	require.NoError(t, tier.SaveBatch(ctx, map[string]string{}))

	got, err := tier.LoadBatch(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCleanupWipesEverything(t *testing.T) {
	tier := newTestTier(t, Config{})
	ctx := context.Background()

	require.NoError(t, tier.Save(ctx, "k", "v"))
	_, ok, err := tier.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tier.CleanupNow())

	_, ok, err = tier.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScheduledCleanupWipesAfterInterval(t *testing.T) {
	tier := newTestTier(t, Config{CleanupInterval: 50 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, tier.Save(ctx, "k", "v"))
	time.Sleep(200 * time.Millisecond)

	_, ok, err := tier.Load(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	tier := newTestTier(t, Config{})
	require.NoError(t, tier.Close())
	require.NoError(t, tier.Close())
}

func TestOperationsAfterCloseRaiseClosedError(t *testing.T) {
	tier := newTestTier(t, Config{})
	require.NoError(t, tier.Close())

	err := tier.Save(context.Background(), "k", "v")
	require.Error(t, err)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	tier, err := New[string, string](Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, tier.Save(context.Background(), "k", "v"))
	require.NoError(t, tier.Close())

	reopened, err := New[string, string](Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	val, ok, err := reopened.Load(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", val)
}
