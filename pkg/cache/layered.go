package cache

import (
	"context"
	"encoding/json"
	"time"

	"FinResolve/pkg/logger"
)

// tier is the optional L2 behind an analysis cache. L1 stays authoritative
// for bookkeeping; L2 only seeds L1 after a local miss and is written
// through after a successful computation. L2 errors degrade to a miss.
type tier[T any] struct {
	store  Store
	prefix string
	log    *logger.Logger
}

func (t *tier[T]) key(key string) string {
	if t.prefix == "" {
		return HashKey(key)
	}
	return GenerateKey(t.prefix, HashKey(key))
}

// envelope is the L2 wire form. It carries the insertion time so a value
// seeded into L1 keeps the age it had when first computed.
type envelope[T any] struct {
	Value      T             `json:"value"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
}

func (t *tier[T]) load(ctx context.Context, key string) (envelope[T], bool) {
	var env envelope[T]
	b, ok, err := t.store.GetBytes(ctx, t.key(key))
	if err != nil {
		t.log.Warn("l2 cache read failed", logger.String("key", key), logger.Error(err))
		return env, false
	}
	if !ok {
		return env, false
	}
	if err := json.Unmarshal(b, &env); err != nil || env.InsertedAt.IsZero() {
		t.log.Warn("l2 cache decode failed", logger.String("key", key), logger.Error(err))
		return env, false
	}
	return env, true
}

func (t *tier[T]) save(ctx context.Context, key string, v T, insertedAt time.Time, ttl time.Duration) {
	b, err := json.Marshal(envelope[T]{Value: v, InsertedAt: insertedAt, TTL: ttl})
	if err != nil {
		t.log.Warn("l2 cache encode failed", logger.String("key", key), logger.Error(err))
		return
	}
	if err := t.store.SetBytes(ctx, t.key(key), b, ttl); err != nil {
		t.log.Warn("l2 cache write failed", logger.String("key", key), logger.Error(err))
	}
}
