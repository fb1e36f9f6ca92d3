package cache

import (
	"context"
	"time"
)

// Store is a byte-level second tier shared between processes.
type Store interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Observer receives cache events, typically a metrics recorder.
type Observer interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEviction(cache string, n int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)           {}
func (nopObserver) CacheMiss(string)          {}
func (nopObserver) CacheEviction(string, int) {}

// Entry is one cached value with its bookkeeping.
type Entry[T any] struct {
	Data           T             `json:"data"`
	InsertedAt     time.Time     `json:"inserted_at"`
	TTL            time.Duration `json:"ttl"`
	AccessCount    int64         `json:"access_count"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	Version        int64         `json:"version"`
}

// Fresh reports whether the entry is still within its TTL at now.
func (e *Entry[T]) Fresh(now time.Time) bool {
	return now.Sub(e.InsertedAt) < e.TTL
}
