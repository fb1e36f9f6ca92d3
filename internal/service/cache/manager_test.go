package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/retry"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestManager(c *clock, opts ...ManagerOption) *Manager {
	base := []ManagerOption{
		WithClock(c.now),
		WithRetry(retry.WithSleeper(noSleep)),
	}
	return NewManager(append(base, opts...)...)
}

func TestManagerDefaultLimits(t *testing.T) {
	m := newTestManager(&clock{t: time.Now()}, WithLimits(KindPortfolio, Limits{TTL: time.Hour}))

	stats := m.Stats()
	require.Len(t, stats, 4)
	for i, kind := range Kinds {
		assert.Equal(t, kind, stats[i].Name)
	}
	assert.Equal(t, 500, stats[0].Capacity)
	assert.Equal(t, 1000, stats[1].Capacity)
	assert.Equal(t, 100, stats[2].Capacity)
	assert.Equal(t, 24*time.Hour, m.Factsheet.DefaultTTL())
	assert.Equal(t, 12*time.Hour, m.Fund.DefaultTTL())
	assert.Equal(t, time.Hour, m.Portfolio.DefaultTTL())
}

func TestManagerServesStaleFundOnFailure(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var retried []string
	m := newTestManager(c, WithRetryHook(func(kind string) { retried = append(retried, kind) }))
	ctx := context.Background()

	first, err := m.Fund.GetOrCompute(ctx, "IE00B4L5Y983", 0, func(context.Context) (models.FundBreakdown, error) {
		return models.FundBreakdown{Name: "World", Strategy: "oracle"}, nil
	})
	require.NoError(t, err)

	c.t = c.t.Add(13 * time.Hour)
	got, err := m.Fund.GetOrCompute(ctx, "IE00B4L5Y983", 0, func(context.Context) (models.FundBreakdown, error) {
		return models.FundBreakdown{}, errors.New("oracle down")
	})
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Empty(t, retried)
	assert.Zero(t, m.Fund.Len())
}

func TestManagerRegisteredRecovererWithoutStaleEntry(t *testing.T) {
	c := &clock{t: time.Now()}
	derived := retry.RecovererFunc(func(_ context.Context, _ error, _ int, kind string, _ map[string]any) retry.Recovery {
		return retry.Recovery{Success: true, Data: models.FundBreakdown{Strategy: "derived:" + kind}}
	})
	m := newTestManager(c, WithRecoverer(KindFund, derived))

	got, err := m.Fund.GetOrCompute(context.Background(), "x", 0, func(context.Context) (models.FundBreakdown, error) {
		return models.FundBreakdown{}, errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, "derived:fund", got.Strategy)
}

func TestManagerRetriesFactsheetButNotResolution(t *testing.T) {
	c := &clock{t: time.Now()}
	var retried []string
	m := newTestManager(c, WithRetryHook(func(kind string) { retried = append(retried, kind) }))
	ctx := context.Background()
	boom := errors.New("unavailable")

	calls := 0
	_, err := m.Factsheet.GetOrCompute(ctx, "k", 0, func(context.Context) (*models.SourceObservation, error) {
		calls++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = m.Resolution.GetOrCompute(ctx, "k", 0, func(context.Context) (models.ResolvedInstrument, error) {
		calls++
		return models.ResolvedInstrument{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{KindFactsheet, KindFactsheet}, retried)
}

func TestManagerReport(t *testing.T) {
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(c)
	ctx := context.Background()

	compute := func(context.Context) (models.ResolvedInstrument, error) {
		return models.ResolvedInstrument{Confidence: 0.9}, nil
	}
	_, err := m.Resolution.GetOrCompute(ctx, "a", 0, compute)
	require.NoError(t, err)
	_, err = m.Resolution.GetOrCompute(ctx, "a", 0, compute)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Totals.Entries)
	assert.Equal(t, int64(1), snap.Totals.Hits)
	assert.Equal(t, int64(1), snap.Totals.Misses)
	assert.InDelta(t, 0.5, snap.Totals.HitRate, 1e-9)
	assert.Equal(t, int64(1024), snap.Totals.MemoryBytes)

	report := m.Report()
	assert.True(t, strings.HasPrefix(report, "# Analysis cache report"))
	assert.Contains(t, report, "Generated: 2025-06-01T12:00:00Z")
	assert.Contains(t, report, "| resolution | 1 | 5000 | 50.0% | 1 | 1 | 0 |")
	assert.Contains(t, report, "| factsheet | 0 | 500 | 0.0% |")
	assert.Contains(t, report, "**Total:** 1 entries, hit rate 50.0%, 0 evictions, ~1.0 KiB")
}

func TestManagerPurge(t *testing.T) {
	c := &clock{t: time.Now()}
	m := newTestManager(c)
	m.Portfolio.Set("p1", models.PortfolioAnalysis{PortfolioID: "p1"}, time.Minute)
	m.Fund.Set("f1", models.FundBreakdown{Name: "f"}, time.Hour)

	c.t = c.t.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Purge())
	assert.Equal(t, 0, m.Portfolio.Len())
	assert.Equal(t, 1, m.Fund.Len())
}
