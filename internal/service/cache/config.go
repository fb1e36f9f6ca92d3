package cache

import (
	"time"

	pcache "FinResolve/pkg/cache"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
)

// Cache kinds.
const (
	KindFactsheet  = "factsheet"
	KindFund       = "fund"
	KindPortfolio  = "portfolio"
	KindResolution = "resolution"
)

// Kinds lists cache kinds in report order.
var Kinds = []string{KindFactsheet, KindFund, KindPortfolio, KindResolution}

// Limits bounds one cache kind.
type Limits struct {
	MaxEntries int
	TTL        time.Duration
}

// ManagerOption configures Manager.
type ManagerOption func(*ManagerConfig)

// ManagerConfig holds per-kind limits and the shared plumbing.
type ManagerConfig struct {
	Limits     map[string]Limits
	Retry      []retry.Option
	Recoverers map[string]retry.Recoverer
	Store      pcache.Store
	Observer   pcache.Observer
	OnRetry    func(kind string)
	Logger     *logger.Logger
	Clock      func() time.Time
}

func defaultLimits() map[string]Limits {
	return map[string]Limits{
		KindFactsheet:  {MaxEntries: 500, TTL: 24 * time.Hour},
		KindFund:       {MaxEntries: 1000, TTL: 12 * time.Hour},
		KindPortfolio:  {MaxEntries: 100, TTL: 6 * time.Hour},
		KindResolution: {MaxEntries: 5000, TTL: 24 * time.Hour},
	}
}

// WithLimits overrides the limits of one kind. Zero fields keep the default.
func WithLimits(kind string, l Limits) ManagerOption {
	return func(c *ManagerConfig) {
		cur := c.Limits[kind]
		if l.MaxEntries > 0 {
			cur.MaxEntries = l.MaxEntries
		}
		if l.TTL > 0 {
			cur.TTL = l.TTL
		}
		c.Limits[kind] = cur
	}
}

// WithRetry sets the executor options shared by the factsheet, fund and
// portfolio caches.
func WithRetry(opts ...retry.Option) ManagerOption {
	return func(c *ManagerConfig) {
		c.Retry = append(c.Retry, opts...)
	}
}

// WithRecoverer adds a recovery strategy for kind, tried after serve-stale.
func WithRecoverer(kind string, r retry.Recoverer) ManagerOption {
	return func(c *ManagerConfig) {
		if r != nil {
			c.Recoverers[kind] = r
		}
	}
}

// WithStore puts a shared second tier behind the fund, portfolio and
// resolution caches.
func WithStore(s pcache.Store) ManagerOption {
	return func(c *ManagerConfig) {
		c.Store = s
	}
}

// WithObserver sets the cache event observer.
func WithObserver(o pcache.Observer) ManagerOption {
	return func(c *ManagerConfig) {
		c.Observer = o
	}
}

// WithRetryHook registers fn to be called with the cache kind before each retry.
func WithRetryHook(fn func(kind string)) ManagerOption {
	return func(c *ManagerConfig) {
		c.OnRetry = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ManagerOption {
	return func(c *ManagerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(c *ManagerConfig) {
		if now != nil {
			c.Clock = now
		}
	}
}
