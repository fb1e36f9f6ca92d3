package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/domain/repository"
	"FinResolve/pkg/cache"
	"FinResolve/pkg/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type lookupFunc func(ctx context.Context, q models.InstrumentQuery) (*models.SourceObservation, error)

type fakeAdapter struct {
	src models.Source
	fn  lookupFunc

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Source() models.Source { return f.src }

func (f *fakeAdapter) Lookup(ctx context.Context, q models.InstrumentQuery) (*models.SourceObservation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, q)
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixed(src models.Source, conf float64, rec models.InstrumentRecord) *fakeAdapter {
	return &fakeAdapter{src: src, fn: func(context.Context, models.InstrumentQuery) (*models.SourceObservation, error) {
		return &models.SourceObservation{Source: src, Fields: rec.Clone(), Confidence: conf}, nil
	}}
}

func noMatch(src models.Source) *fakeAdapter {
	return &fakeAdapter{src: src, fn: func(context.Context, models.InstrumentQuery) (*models.SourceObservation, error) {
		return nil, models.ErrNoMatch
	}}
}

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestResolver(adapters []repository.SourceAdapter, opts ...ResolverOption) *InstrumentResolver {
	obs := cache.New[*models.SourceObservation]("factsheet",
		cache.WithMaxEntries(500),
		cache.WithDefaultTTL(24*time.Hour),
		cache.WithClock(fixedClock),
		cache.WithExecutor(retry.NewExecutor(retry.WithSleeper(noSleep))),
	)
	base := []ResolverOption{WithClock(fixedClock), WithSleeper(noSleep)}
	return NewInstrumentResolver(adapters, obs, append(base, opts...)...)
}
