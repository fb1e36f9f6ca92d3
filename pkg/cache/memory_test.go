package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/pkg/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestCache(clock *fakeClock, opts ...Option) *Cache[string] {
	base := []Option{
		WithClock(clock.Now),
		WithExecutor(retry.NewExecutor(retry.WithSleeper(noSleep))),
	}
	return New[string]("factsheet", append(base, opts...)...)
}

func TestGetOrComputeHitSkipsCompute(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithDefaultTTL(time.Hour))
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return fmt.Sprintf("v%d", calls), nil
	}

	v, err := c.GetOrCompute(ctx, "k", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.Advance(10 * time.Minute)
	v, err = c.GetOrCompute(ctx, "k", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, 1, calls)

	e, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, int64(1), e.AccessCount)
	assert.Equal(t, clock.Now(), e.LastAccessedAt)
	assert.Equal(t, time.Hour, e.TTL)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 0.5, st.HitRate, 1e-9)
}

func TestGetOrComputeRecomputesAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return fmt.Sprintf("v%d", calls), nil
	}

	_, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	first, _ := c.Peek("k")

	clock.Advance(time.Minute)
	v, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	second, _ := c.Peek("k")
	assert.True(t, second.InsertedAt.After(first.InsertedAt))
	assert.Greater(t, second.Version, first.Version)
	assert.Zero(t, second.AccessCount)
}

func TestGetOrComputeFailureIsNotCached(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	boom := errors.New("boom")

	calls := 0
	_, err := c.GetOrCompute(context.Background(), "k", 0, func(context.Context) (string, error) {
		calls++
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Zero(t, c.Len())
}

func TestStaleEntryOfferedForRecovery(t *testing.T) {
	clock := newFakeClock()
	exec := retry.NewExecutor(retry.WithSleeper(noSleep), retry.WithRecoverer(retry.Stale{}))
	c := New[string]("fund", WithClock(clock.Now), WithExecutor(exec))
	ctx := context.Background()

	c.Set("k", "old", time.Minute)
	clock.Advance(2 * time.Minute)

	v, err := c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) (string, error) {
		return "", errors.New("upstream down")
	})
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	// recovered values are returned but not written back
	_, ok := c.Peek("k")
	assert.False(t, ok)
}

func TestEvictionRemovesOldestAccessed(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithMaxEntries(10))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", time.Hour)
		clock.Advance(time.Second)
	}

	// touch k0 and k1 so k2 and k3 become the least recently accessed
	for _, k := range []string{"k0", "k1"} {
		_, err := c.GetOrCompute(ctx, k, time.Hour, func(context.Context) (string, error) {
			t.Fatal("unexpected compute")
			return "", nil
		})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	pre := map[string]time.Time{}
	for i := 0; i < 10; i++ {
		e, ok := c.Peek(fmt.Sprintf("k%d", i))
		require.True(t, ok)
		pre[fmt.Sprintf("k%d", i)] = e.LastAccessedAt
	}

	c.Set("new", "v", time.Hour)

	assert.Equal(t, 9, c.Len())
	for _, k := range []string{"k2", "k3"} {
		_, ok := c.Peek(k)
		assert.False(t, ok, k)
	}
	for _, k := range []string{"k0", "k1", "k4", "k9", "new"} {
		_, ok := c.Peek(k)
		assert.True(t, ok, k)
	}
	assert.True(t, pre["k2"].Before(pre["k4"]))
	assert.Equal(t, int64(2), c.Stats().Evictions)
}

func TestEvictionRemovesAtLeastOne(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithMaxEntries(2))
	c.Set("a", "v", time.Hour)
	clock.Advance(time.Second)
	c.Set("b", "v", time.Hour)
	clock.Advance(time.Second)
	c.Set("c", "v", time.Hour)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Peek("a")
	assert.False(t, ok)
}

func TestReplacingKeyDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithMaxEntries(2))
	c.Set("a", "v", time.Hour)
	c.Set("b", "v", time.Hour)
	c.Set("b", "v2", time.Hour)
	assert.Equal(t, 2, c.Len())
	assert.Zero(t, c.Stats().Evictions)
}

func TestStatsSnapshot(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, WithMaxEntries(500))
	start := clock.Now()
	c.Set("a", "v", time.Hour)
	clock.Advance(time.Minute)
	c.Set("b", "v", time.Hour)

	st := c.Stats()
	assert.Equal(t, "factsheet", st.Name)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 500, st.Capacity)
	assert.Equal(t, int64(2*EntrySizeEstimate), st.MemoryBytes)
	require.NotNil(t, st.Oldest)
	require.NotNil(t, st.Newest)
	assert.Equal(t, start, *st.Oldest)
	assert.Equal(t, start.Add(time.Minute), *st.Newest)
	assert.Zero(t, st.HitRate)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *memStore) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memStore) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttl[key] = ttl
	return nil
}

func TestSecondTierSeedsFirstTier(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore()
	ctx := context.Background()

	writer := newTestCache(clock, WithStore(store, "resolution"))
	_, err := writer.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		return "shared", nil
	})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, store.ttl[GenerateKey("resolution", HashKey("k"))])

	reader := newTestCache(clock, WithStore(store, "resolution"))
	v, err := reader.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		t.Fatal("unexpected compute")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "shared", v)
	_, ok := reader.Peek("k")
	assert.True(t, ok)
}

func TestSecondTierKeepsOriginalAge(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore()
	ctx := context.Background()
	computedAt := clock.Now()

	writer := newTestCache(clock, WithStore(store, "resolution"))
	_, err := writer.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		return "shared", nil
	})
	require.NoError(t, err)

	clock.Advance(40 * time.Minute)
	reader := newTestCache(clock, WithStore(store, "resolution"))
	v, err := reader.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		t.Fatal("unexpected compute")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "shared", v)

	e, ok := reader.Peek("k")
	require.True(t, ok)
	assert.Equal(t, computedAt, e.InsertedAt)
	assert.Equal(t, time.Hour, e.TTL)

	clock.Advance(21 * time.Minute)
	_, ok = reader.GetIfFresh("k")
	assert.False(t, ok)
}

func TestSecondTierIgnoresExpiredEnvelope(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore()
	ctx := context.Background()

	writer := newTestCache(clock, WithStore(store, "resolution"))
	_, err := writer.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		return "old", nil
	})
	require.NoError(t, err)

	// the store has not expired the key yet but the envelope is past its TTL
	clock.Advance(2 * time.Hour)
	reader := newTestCache(clock, WithStore(store, "resolution"))
	v, err := reader.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		return "new", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestSecondTierSkipsUndecodableValue(t *testing.T) {
	clock := newFakeClock()
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.SetBytes(ctx, GenerateKey("resolution", HashKey("k")), []byte(`"bare"`), time.Hour))

	c := newTestCache(clock, WithStore(store, "resolution"))
	v, err := c.GetOrCompute(ctx, "k", time.Hour, func(context.Context) (string, error) {
		return "computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]("portfolio", WithMaxEntries(50))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.GetOrCompute(ctx, fmt.Sprintf("k%d", i%80), time.Hour, func(context.Context) (int, error) {
				return i, nil
			})
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
