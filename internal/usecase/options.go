package usecase

import (
	"time"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/domain/repository"
	"FinResolve/internal/service/perf"
	"FinResolve/pkg/cache"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
)

// ResolverOption configures InstrumentResolver.
type ResolverOption func(*ResolverConfig)

// ResolverConfig holds resolver configuration.
type ResolverConfig struct {
	Defaults   models.ResolveOptions
	Results    *cache.Cache[models.ResolvedInstrument]
	ResultTTL  time.Duration
	BatchSize  int
	BatchDelay time.Duration
	Sleeper    retry.Sleeper
	Clock      func() time.Time
	Tracker    *perf.Tracker
	Metrics    repository.Metrics
	Sinks      []repository.ResolutionSink
	Logger     *logger.Logger
}

// WithDefaults sets the options used when callers pass a zero value.
func WithDefaults(o models.ResolveOptions) ResolverOption {
	return func(c *ResolverConfig) {
		c.Defaults = o
	}
}

// WithResultCache sets the cache holding resolved instruments.
func WithResultCache(rc *cache.Cache[models.ResolvedInstrument], ttl time.Duration) ResolverOption {
	return func(c *ResolverConfig) {
		c.Results = rc
		if ttl > 0 {
			c.ResultTTL = ttl
		}
	}
}

// WithResultTTL sets the TTL of resolved instruments.
func WithResultTTL(ttl time.Duration) ResolverOption {
	return func(c *ResolverConfig) {
		if ttl > 0 {
			c.ResultTTL = ttl
		}
	}
}

// WithBatching sets the bulk batch size and the pause between batches.
func WithBatching(size int, delay time.Duration) ResolverOption {
	return func(c *ResolverConfig) {
		c.BatchSize = size
		c.BatchDelay = delay
	}
}

// WithSleeper replaces the inter-batch wait.
func WithSleeper(s retry.Sleeper) ResolverOption {
	return func(c *ResolverConfig) {
		if s != nil {
			c.Sleeper = s
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ResolverOption {
	return func(c *ResolverConfig) {
		if now != nil {
			c.Clock = now
		}
	}
}

// WithTracker sets the performance tracker.
func WithTracker(t *perf.Tracker) ResolverOption {
	return func(c *ResolverConfig) {
		c.Tracker = t
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m repository.Metrics) ResolverOption {
	return func(c *ResolverConfig) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// WithSinks registers receivers of finished bulk runs.
func WithSinks(sinks ...repository.ResolutionSink) ResolverOption {
	return func(c *ResolverConfig) {
		c.Sinks = append(c.Sinks, sinks...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ResolverOption {
	return func(c *ResolverConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordResolution(string, string) {}
func (nopMetrics) RecordSourceError(string)        {}
func (nopMetrics) RecordRetry(string)              {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}
