package cache

import (
	"context"
	"time"

	"FinResolve/internal/domain/models"
	pcache "FinResolve/pkg/cache"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
)

// Manager owns one analysis cache per kind.
type Manager struct {
	Factsheet  *pcache.Cache[*models.SourceObservation]
	Fund       *pcache.Cache[models.FundBreakdown]
	Portfolio  *pcache.Cache[models.PortfolioAnalysis]
	Resolution *pcache.Cache[models.ResolvedInstrument]

	now func() time.Time
	log *logger.Logger
}

// NewManager builds the caches. Every kind serves a stale entry when a
// recomputation fails; kinds with a registered recoverer try it first.
// The resolution cache runs its computation once since the resolver has its
// own attempt loop.
func NewManager(opts ...ManagerOption) *Manager {
	cfg := &ManagerConfig{
		Limits:     defaultLimits(),
		Recoverers: map[string]retry.Recoverer{},
		Logger:     logger.Nop(),
		Clock:      time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Manager{
		Factsheet:  pcache.New[*models.SourceObservation](KindFactsheet, cfg.cacheOptions(KindFactsheet, false)...),
		Fund:       pcache.New[models.FundBreakdown](KindFund, cfg.cacheOptions(KindFund, true)...),
		Portfolio:  pcache.New[models.PortfolioAnalysis](KindPortfolio, cfg.cacheOptions(KindPortfolio, true)...),
		Resolution: pcache.New[models.ResolvedInstrument](KindResolution, cfg.cacheOptions(KindResolution, true)...),
		now:        cfg.Clock,
		log:        cfg.Logger,
	}
}

func (c *ManagerConfig) cacheOptions(kind string, tiered bool) []pcache.Option {
	l := c.Limits[kind]

	ropts := []retry.Option{
		retry.WithRecoverer(retry.Chain{retry.Stale{}, c.Recoverers[kind]}),
	}
	if kind == KindResolution {
		ropts = append(ropts, retry.WithMaxAttempts(1))
	} else {
		ropts = append(ropts, c.Retry...)
	}
	if c.OnRetry != nil {
		hook := c.OnRetry
		ropts = append(ropts, retry.WithOnRetry(func(op retry.Operation, _ int, _ error) {
			hook(op.Kind)
		}))
	}

	opts := []pcache.Option{
		pcache.WithMaxEntries(l.MaxEntries),
		pcache.WithDefaultTTL(l.TTL),
		pcache.WithExecutor(retry.NewExecutor(ropts...)),
		pcache.WithObserver(c.Observer),
		pcache.WithLogger(c.Logger.With(logger.String("cache", kind))),
		pcache.WithClock(c.Clock),
	}
	if tiered && c.Store != nil {
		opts = append(opts, pcache.WithStore(c.Store, kind))
	}
	return opts
}

// Stats returns a snapshot of every cache in report order.
func (m *Manager) Stats() []pcache.Stats {
	return []pcache.Stats{
		m.Factsheet.Stats(),
		m.Fund.Stats(),
		m.Portfolio.Stats(),
		m.Resolution.Stats(),
	}
}

// Purge drops expired entries from every cache and returns the count.
func (m *Manager) Purge() int {
	n := m.Factsheet.Purge() + m.Fund.Purge() + m.Portfolio.Purge() + m.Resolution.Purge()
	if n > 0 {
		m.log.Debug("purged expired cache entries", logger.Int("removed", n))
	}
	return n
}

// RunJanitor purges expired entries every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Purge()
		}
	}
}
