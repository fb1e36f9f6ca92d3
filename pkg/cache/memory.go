package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
)

// Cache is a TTL cache for one analysis kind. Computations run through a
// retry executor outside the lock; concurrent misses for the same key may
// each compute and the last writer wins.
type Cache[T any] struct {
	name       string
	maxEntries int
	defaultTTL time.Duration
	executor   *retry.Executor
	now        func() time.Time
	observer   Observer
	log        *logger.Logger
	l2         *tier[T]

	mu        sync.Mutex
	entries   map[string]*Entry[T]
	version   int64
	hits      int64
	misses    int64
	evictions int64
	samples   []time.Duration
	sampleIdx int
	sampleCnt int
}

// New creates an analysis cache named after the kind it holds.
func New[T any](name string, opts ...Option) *Cache[T] {
	cfg := &Config{
		MaxEntries: 1000,
		DefaultTTL: time.Hour,
		Observer:   nopObserver{},
		Logger:     logger.Nop(),
		Clock:      time.Now,
		Samples:    100,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Executor == nil {
		cfg.Executor = retry.NewExecutor()
	}
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}

	c := &Cache[T]{
		name:       name,
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		executor:   cfg.Executor,
		now:        cfg.Clock,
		observer:   cfg.Observer,
		log:        cfg.Logger,
		entries:    make(map[string]*Entry[T]),
		samples:    make([]time.Duration, cfg.Samples),
	}
	if cfg.Store != nil {
		c.l2 = &tier[T]{store: cfg.Store, prefix: cfg.StorePrefix, log: cfg.Logger}
	}
	return c
}

// Name returns the analysis kind.
func (c *Cache[T]) Name() string {
	return c.name
}

// DefaultTTL returns the TTL applied when callers pass zero.
func (c *Cache[T]) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// GetOrCompute returns the fresh value for key or computes, stores and
// returns a new one. Failures are returned and never cached.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	return c.GetOrComputeWithContext(ctx, key, ttl, nil, compute)
}

// GetOrComputeWithContext is GetOrCompute with extra recovery context passed
// to the executor's recoverer. An expired entry is offered under retry.StaleKey.
func (c *Cache[T]) GetOrComputeWithContext(ctx context.Context, key string, ttl time.Duration, recoveryCtx map[string]any, compute func(ctx context.Context) (T, error)) (T, error) {
	start := c.now()
	defer func() { c.sample(c.now().Sub(start)) }()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if v, ok, stale, hasStale := c.lookup(key); ok {
		return v, nil
	} else if hasStale {
		if recoveryCtx == nil {
			recoveryCtx = make(map[string]any, 2)
		} else {
			cp := make(map[string]any, len(recoveryCtx)+2)
			for k, val := range recoveryCtx {
				cp[k] = val
			}
			recoveryCtx = cp
		}
		recoveryCtx[retry.StaleKey] = stale
	}

	if c.l2 != nil {
		if env, ok := c.l2.load(ctx, key); ok && env.InsertedAt.Add(env.TTL).After(c.now()) {
			c.set(key, env.Value, env.InsertedAt, env.TTL)
			return env.Value, nil
		}
	}

	if recoveryCtx == nil {
		recoveryCtx = map[string]any{}
	}
	if _, ok := recoveryCtx["key"]; !ok {
		recoveryCtx["key"] = key
	}

	res, err := retry.Run(ctx, c.executor, retry.Operation{Kind: c.name, Key: key, Context: recoveryCtx}, compute)
	if err != nil {
		var zero T
		return zero, err
	}
	if res.Recovered {
		return res.Value, nil
	}

	insertedAt := c.set(key, res.Value, c.now(), ttl)
	if c.l2 != nil {
		c.l2.save(ctx, key, res.Value, insertedAt, ttl)
	}
	return res.Value, nil
}

// lookup returns the fresh value for key and records the access. A stale
// entry is removed and handed back so callers can offer it for recovery.
func (c *Cache[T]) lookup(key string) (v T, ok bool, stale T, hasStale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, exists := c.entries[key]
	if exists && e.Fresh(now) {
		e.AccessCount++
		e.LastAccessedAt = now
		c.hits++
		c.observer.CacheHit(c.name)
		return e.Data, true, stale, false
	}

	if exists {
		delete(c.entries, key)
		stale, hasStale = e.Data, true
	}
	c.misses++
	c.observer.CacheMiss(c.name)
	return v, false, stale, hasStale
}

// GetIfFresh returns the fresh value for key and records the hit. A miss
// is not counted, so callers can check before GetOrCompute.
func (c *Cache[T]) GetIfFresh(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.Fresh(c.now()) {
		var zero T
		return zero, false
	}
	e.AccessCount++
	e.LastAccessedAt = c.now()
	c.hits++
	c.observer.CacheHit(c.name)
	return e.Data, true
}

// Set inserts or replaces key. Inserting a new key into a full cache first
// evicts the least recently accessed 20% of entries.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	c.set(key, value, c.now(), ttl)
}

func (c *Cache[T]) set(key string, value T, insertedAt time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.version++
	c.entries[key] = &Entry[T]{
		Data:           value,
		InsertedAt:     insertedAt,
		TTL:            ttl,
		LastAccessedAt: c.now(),
		Version:        c.version,
	}
	return insertedAt
}

// Peek returns a copy of the entry for key without touching its counters.
func (c *Cache[T]) Peek(key string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry[T]{}, false
	}
	return *e, true
}

// Len returns the number of entries, fresh or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !e.Fresh(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache[T]) evictLocked() []string {
	n := (len(c.entries)*20 + 99) / 100
	if n < 1 {
		n = 1
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := c.entries[keys[i]], c.entries[keys[j]]
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		if !a.InsertedAt.Equal(b.InsertedAt) {
			return a.InsertedAt.Before(b.InsertedAt)
		}
		return keys[i] < keys[j]
	})

	evicted := keys[:n]
	for _, k := range evicted {
		delete(c.entries, k)
	}
	c.evictions += int64(n)
	c.observer.CacheEviction(c.name, n)
	c.log.Debug("cache eviction sweep",
		logger.String("cache", c.name),
		logger.Int("evicted", n),
		logger.Int("remaining", len(c.entries)),
	)
	return evicted
}

func (c *Cache[T]) sample(d time.Duration) {
	c.mu.Lock()
	c.samples[c.sampleIdx] = d
	c.sampleIdx = (c.sampleIdx + 1) % len(c.samples)
	if c.sampleCnt < len(c.samples) {
		c.sampleCnt++
	}
	c.mu.Unlock()
}
