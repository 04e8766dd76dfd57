package hottier

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	tier, err := New[string, string](Config{MaxSize: 16}, nil)
	require.NoError(t, err)
	defer tier.Close()

	tier.Put("a", "b")
	val, ok := tier.Get("a")
	require.True(t, ok)
	require.Equal(t, "b", val)
}

func TestMissingKeyIsAbsent(t *testing.T) {
	tier, err := New[string, string](Config{MaxSize: 16}, nil)
	require.NoError(t, err)
	defer tier.Close()

	_, ok := tier.Get("nope")
	require.False(t, ok)
}

func TestEvictionListenerFiresOnExplicitInvalidate(t *testing.T) {
	var mu sync.Mutex
	var gotCause Cause
	var gotKey string
	fired := make(chan struct{}, 1)

	listener := func(key string, value string, cause Cause) {
		mu.Lock()
		gotKey, gotCause = key, cause
		mu.Unlock()
		fired <- struct{}{}
	}

	tier, err := New(Config{MaxSize: 16}, listener)
	require.NoError(t, err)
	defer tier.Close()

	tier.Put("k", "v")
	tier.Invalidate("k")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("eviction listener never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "k", gotKey)
	require.Equal(t, CauseExplicit, gotCause)
}

func TestListenerPanicDoesNotEscape(t *testing.T) {
	listener := func(key string, value string, cause Cause) {
		panic("boom")
	}

	tier, err := New(Config{MaxSize: 16}, listener)
	require.NoError(t, err)
	defer tier.Close()

	require.NotPanics(t, func() {
		tier.Put("k", "v")
		tier.Invalidate("k")
		time.Sleep(50 * time.Millisecond)
	})
}

func TestCapacitySteadyStateStaysWithinSlackOfMaxSize(t *testing.T) {
	const maxSize = 16

	tier, err := New[string, string](Config{MaxSize: maxSize}, nil)
	require.NoError(t, err)
	defer tier.Close()

	for i := 0; i < 50*maxSize; i++ {
		tier.Put(fmt.Sprintf("k%d", i), "v")
	}

	require.Eventually(t, func() bool {
		return tier.Len() <= maxSize*2
	}, time.Second, 10*time.Millisecond, "hot tier size %d exceeds maxSize+slack", tier.Len())
}

func TestSizeEvictionFiresCauseSize(t *testing.T) {
	const maxSize = 8

	var sizeEvictions atomic.Int64
	listener := func(key string, value string, cause Cause) {
		if cause == CauseSize {
			sizeEvictions.Add(1)
		}
	}

	tier, err := New(Config{MaxSize: maxSize}, listener)
	require.NoError(t, err)
	defer tier.Close()

	for i := 0; i < 50*maxSize; i++ {
		tier.Put(fmt.Sprintf("k%d", i), "v")
	}

	require.Eventually(t, func() bool {
		return sizeEvictions.Load() > 0
	}, time.Second, 10*time.Millisecond, "no CauseSize eviction observed under capacity pressure")
}

func TestReplacedPutFiresCauseReplaced(t *testing.T) {
	var mu sync.Mutex
	var gotCause Cause
	fired := make(chan struct{}, 1)

	listener := func(key string, value string, cause Cause) {
		if key != "k" {
			return
		}
		mu.Lock()
		gotCause = cause
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	}

	tier, err := New(Config{MaxSize: 16}, listener)
	require.NoError(t, err)
	defer tier.Close()

	tier.Put("k", "v1")
	tier.Put("k", "v2")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("eviction listener never fired for replaced key")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, CauseReplaced, gotCause)
}

func TestExpiry(t *testing.T) {
	tier, err := New[string, string](Config{MaxSize: 16, TTL: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer tier.Close()

	tier.Put("k", "v")
	time.Sleep(100 * time.Millisecond)

	_, ok := tier.Get("k")
	require.False(t, ok)
}
