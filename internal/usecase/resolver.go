package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/domain/repository"
	"FinResolve/internal/service/perf"
	"FinResolve/pkg/cache"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
)

const (
	minQualityOverall   = 0.5
	thresholdStep       = 0.1
	partialFactor       = 0.7
	partialISINBonus    = 0.1
	webSearchFromTry    = 2
	textOracleFromTry   = 3
	defaultBatchSize    = 5
	defaultBatchDelay   = 100 * time.Millisecond
	defaultResultTTL    = 24 * time.Hour
	defaultResultMaxLen = 5000
)

// InstrumentResolver resolves free-text instrument references against the
// configured sources, caching observations and results.
type InstrumentResolver struct {
	adapters     map[models.Source]repository.SourceAdapter
	observations *cache.Cache[*models.SourceObservation]
	results      *cache.Cache[models.ResolvedInstrument]
	resultTTL    time.Duration
	defaults     models.ResolveOptions
	batchSize    int
	batchDelay   time.Duration
	sleep        retry.Sleeper
	now          func() time.Time
	tracker      *perf.Tracker
	metrics      repository.Metrics
	sinks        []repository.ResolutionSink
	log          *logger.Logger
}

// NewInstrumentResolver builds a resolver over the given adapters.
// observations caches per-source lookups (the factsheet cache).
func NewInstrumentResolver(adapters []repository.SourceAdapter, observations *cache.Cache[*models.SourceObservation], opts ...ResolverOption) *InstrumentResolver {
	cfg := &ResolverConfig{
		Defaults:   models.DefaultResolveOptions(),
		ResultTTL:  defaultResultTTL,
		BatchSize:  defaultBatchSize,
		BatchDelay: defaultBatchDelay,
		Sleeper:    retry.ContextSleep,
		Clock:      time.Now,
		Logger:     logger.Nop(),
		Metrics:    nopMetrics{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Tracker == nil {
		cfg.Tracker = perf.NewTrackerWithClock(cfg.Clock)
	}
	if cfg.Results == nil {
		cfg.Results = cache.New[models.ResolvedInstrument]("resolution",
			cache.WithMaxEntries(defaultResultMaxLen),
			cache.WithDefaultTTL(cfg.ResultTTL),
			cache.WithClock(cfg.Clock),
			cache.WithExecutor(retry.NewExecutor(retry.WithMaxAttempts(1))),
		)
	}
	if observations == nil {
		observations = cache.New[*models.SourceObservation]("factsheet",
			cache.WithMaxEntries(500),
			cache.WithDefaultTTL(24*time.Hour),
			cache.WithClock(cfg.Clock),
		)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}

	byKind := make(map[models.Source]repository.SourceAdapter, len(adapters))
	for _, a := range adapters {
		if a != nil {
			byKind[a.Source()] = a
		}
	}

	return &InstrumentResolver{
		adapters:     byKind,
		observations: observations,
		results:      cfg.Results,
		resultTTL:    cfg.ResultTTL,
		defaults:     cfg.Defaults.Normalize(),
		batchSize:    cfg.BatchSize,
		batchDelay:   cfg.BatchDelay,
		sleep:        cfg.Sleeper,
		now:          cfg.Clock,
		tracker:      cfg.Tracker,
		metrics:      cfg.Metrics,
		sinks:        cfg.Sinks,
		log:          cfg.Logger,
	}
}

// Defaults returns the options applied when callers pass none.
func (r *InstrumentResolver) Defaults() models.ResolveOptions {
	return r.defaults
}

// Results exposes the result cache for reporting.
func (r *InstrumentResolver) Results() *cache.Cache[models.ResolvedInstrument] {
	return r.results
}

// ResolveOne resolves one query. A missing confident match degrades to a
// partial result when allowed; an error means nothing usable was produced.
func (r *InstrumentResolver) ResolveOne(ctx context.Context, q models.InstrumentQuery, opts models.ResolveOptions) (*models.ResolvedInstrument, error) {
	res, _, err := r.resolveOne(ctx, "", q, opts)
	return res, err
}

func (r *InstrumentResolver) resolveOne(ctx context.Context, runID string, q models.InstrumentQuery, opts models.ResolveOptions) (*models.ResolvedInstrument, bool, error) {
	if err := validateQuery(q); err != nil {
		return nil, false, err
	}
	opts = opts.Normalize()
	start := r.now()

	computed := false
	res, err := r.results.GetOrCompute(ctx, q.Key(), r.resultTTL, func(ctx context.Context) (models.ResolvedInstrument, error) {
		computed = true
		return r.resolve(ctx, q, opts)
	})
	r.metrics.RecordLatency("resolve_one", r.now().Sub(start).Seconds())

	if err != nil {
		r.tracker.RecordMiss(runID)
		r.tracker.RecordError(runID, err)
		r.metrics.RecordResolution("none", "unresolved")
		fields := []logger.Field{
			logger.String("name", q.Name),
			logger.String("isin", q.ISIN),
			logger.Error(err),
		}
		if errors.Is(err, models.ErrAllSourcesExhausted) {
			r.log.Warn("instrument unresolved", fields...)
		} else {
			r.log.Error("instrument resolution failed", fields...)
		}
		return nil, false, err
	}

	if computed {
		r.tracker.RecordMiss(runID)
		r.metrics.RecordResolution(string(res.ResolvedBy.PrimarySource), outcome(res))
	} else {
		r.tracker.RecordHit(runID)
		r.metrics.RecordResolution(string(res.ResolvedBy.PrimarySource), "cached")
	}
	return &res, !computed, nil
}

func validateQuery(q models.InstrumentQuery) error {
	if strings.TrimSpace(q.Name) == "" && strings.TrimSpace(q.ISIN) == "" {
		return fmt.Errorf("%w: name or isin required", models.ErrInvalidQuery)
	}
	return nil
}

func outcome(res models.ResolvedInstrument) string {
	if res.Partial {
		return "partial"
	}
	return "resolved"
}

// resolve runs the attempt loop under the per-instrument timeout.
func (r *InstrumentResolver) resolve(ctx context.Context, q models.InstrumentQuery, opts models.ResolveOptions) (models.ResolvedInstrument, error) {
	start := r.now()
	tctx, cancel := context.WithTimeout(ctx, opts.PerInstrumentTimeout)
	defer cancel()

	seen := newObservationSet()
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if tctx.Err() != nil {
			break
		}
		sources := sourcesForAttempt(opts, attempt)
		if res, ok := r.attempt(tctx, q, opts, attempt, sources, seen); ok {
			res.Elapsed = r.now().Sub(start)
			return res, nil
		}
	}

	if ctx.Err() != nil {
		return models.ResolvedInstrument{}, ctx.Err()
	}
	timedOut := tctx.Err() != nil
	if timedOut {
		r.log.Info("instrument resolution timed out",
			logger.String("name", q.Name),
			logger.Duration("timeout", opts.PerInstrumentTimeout),
		)
	}

	if !opts.AllowPartial {
		return models.ResolvedInstrument{}, retry.Permanent(fmt.Errorf("resolve %q: %w", q.Name, models.ErrAllSourcesExhausted))
	}

	if seen.empty() && timedOut {
		// nothing arrived before the deadline; the fallback source needs no I/O
		if fb, ok := r.adapters[models.SourceFallback]; ok && opts.Rank(models.SourceFallback) < len(opts.SourcePriority) {
			if o, err := fb.Lookup(context.WithoutCancel(ctx), q); err == nil && o != nil {
				seen.add(*o)
			}
		}
	}

	res, err := r.partial(q, opts, seen)
	if err != nil {
		return models.ResolvedInstrument{}, retry.Permanent(err)
	}
	res.Elapsed = r.now().Sub(start)
	r.log.Info("instrument resolved partially",
		logger.String("name", q.Name),
		logger.String("primary", string(res.ResolvedBy.PrimarySource)),
		logger.Float64("confidence", res.Confidence),
	)
	return res, nil
}

// sourcesForAttempt returns the sources enabled on attempt, in priority
// order. Costlier sources unlock on later attempts and the fallback source
// only on the last one.
func sourcesForAttempt(opts models.ResolveOptions, attempt int) []models.Source {
	out := make([]models.Source, 0, len(opts.SourcePriority))
	for _, s := range opts.SourcePriority {
		switch s {
		case models.SourceWebSearch:
			if attempt < webSearchFromTry {
				continue
			}
		case models.SourceTextOracle:
			if attempt < textOracleFromTry {
				continue
			}
		case models.SourceFallback:
			if attempt < opts.MaxAttempts {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func thresholdFor(opts models.ResolveOptions, attempt int) float64 {
	return max(0, opts.MinConfidence-thresholdStep*float64(attempt-1))
}

// attempt queries sources in order until one meets the attempt threshold,
// then optionally consults the remaining sources and merges.
func (r *InstrumentResolver) attempt(ctx context.Context, q models.InstrumentQuery, opts models.ResolveOptions, attempt int, sources []models.Source, seen *observationSet) (models.ResolvedInstrument, bool) {
	threshold := thresholdFor(opts, attempt)

	var (
		primary *models.SourceObservation
		before  []models.SourceObservation
		rest    []models.Source
	)
	for i, s := range sources {
		o, err := r.observe(ctx, s, q)
		if err != nil {
			if ctx.Err() != nil {
				return models.ResolvedInstrument{}, false
			}
			continue
		}
		seen.add(*o)
		if o.Confidence >= threshold {
			primary = o
			rest = sources[i+1:]
			break
		}
		before = append(before, *o)
	}
	if primary == nil {
		return models.ResolvedInstrument{}, false
	}

	var alternates []models.SourceObservation
	if opts.EnableConflictResolution {
		for _, o := range before {
			if o.Source != models.SourceFallback {
				alternates = append(alternates, o)
			}
		}
		alternates = append(alternates, r.observeAll(ctx, q, rest)...)
		for _, o := range alternates {
			seen.add(o)
		}
	}

	res := r.build(q, opts, *primary, alternates)
	res.ResolvedBy.Attempts = attempt
	if !meetsBar(res, threshold) {
		r.log.Debug("candidate below bar",
			logger.String("name", q.Name),
			logger.String("source", string(primary.Source)),
			logger.Int("attempt", attempt),
			logger.Float64("confidence", res.Confidence),
			logger.Float64("quality", res.DataQuality.Overall),
		)
		return models.ResolvedInstrument{}, false
	}
	return res, true
}

// observeAll queries sources concurrently, keeping priority order in the result.
func (r *InstrumentResolver) observeAll(ctx context.Context, q models.InstrumentQuery, sources []models.Source) []models.SourceObservation {
	slots := make([]*models.SourceObservation, len(sources))
	var g errgroup.Group
	for i, s := range sources {
		if s == models.SourceFallback {
			continue
		}
		g.Go(func() error {
			if o, err := r.observe(ctx, s, q); err == nil {
				slots[i] = o
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.SourceObservation, 0, len(slots))
	for _, o := range slots {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// observe looks q up in one source through the observation cache. No-match
// answers are cached as nil so local indexes are not rescanned.
func (r *InstrumentResolver) observe(ctx context.Context, s models.Source, q models.InstrumentQuery) (*models.SourceObservation, error) {
	a, ok := r.adapters[s]
	if !ok {
		return nil, models.ErrNoMatch
	}

	lookup := func(ctx context.Context) (*models.SourceObservation, error) {
		o, err := a.Lookup(ctx, q)
		if errors.Is(err, models.ErrNoMatch) {
			return nil, nil
		}
		if err != nil {
			// the attempt loop decides when a source is asked again
			return nil, retry.Permanent(err)
		}
		if o != nil {
			o.Source = s
			o.Confidence = clamp01(o.Confidence)
		}
		return o, nil
	}

	var (
		o   *models.SourceObservation
		err error
	)
	if s == models.SourceFallback {
		o, err = lookup(ctx)
	} else {
		o, err = r.observations.GetOrCompute(ctx, string(s)+"|"+q.Key(), 0, lookup)
	}
	if err != nil {
		if ctx.Err() == nil {
			r.metrics.RecordSourceError(string(s))
			r.log.Warn("source unavailable",
				logger.String("source", string(s)),
				logger.String("name", q.Name),
				logger.Error(err),
			)
		}
		return nil, fmt.Errorf("%s: %w", s, err)
	}
	if o == nil {
		return nil, models.ErrNoMatch
	}
	cp := *o
	cp.Fields = o.Fields.Clone()
	return &cp, nil
}

// build merges the primary with alternates, seeds identity fields from the
// query and scores the result.
func (r *InstrumentResolver) build(q models.InstrumentQuery, opts models.ResolveOptions, primary models.SourceObservation, alternates []models.SourceObservation) models.ResolvedInstrument {
	all := append([]models.SourceObservation{primary}, alternates...)

	var (
		record    models.InstrumentRecord
		conflicts []models.ResolutionConflict
	)
	if len(alternates) == 0 {
		record = primary.Fields.Clone()
	} else {
		record, conflicts = NewConflictResolver(opts.SourcePriority).Resolve(all)
	}
	record.FillFrom(seedRecord(q))

	altSources := make([]models.Source, 0, len(alternates))
	for _, o := range alternates {
		altSources = append(altSources, o.Source)
	}

	strategy := models.StrategyDirect
	if primary.Source == models.SourceFallback {
		strategy = models.StrategyFallback
	} else if len(alternates) > 0 {
		strategy = models.StrategyMerged
	}

	return models.ResolvedInstrument{
		Query:  q,
		Record: record,
		ResolvedBy: models.ResolvedBy{
			PrimarySource:   primary.Source,
			FallbackSources: altSources,
			Strategy:        strategy,
		},
		Confidence: clamp01(primary.Confidence),
		DataQuality: ScoreQuality(QualityInput{
			Record:     record,
			Primary:    primary.Source,
			Alternates: altSources,
			Conflicts:  conflicts,
			Now:        r.now(),
		}),
		Conflicts:          conflicts,
		AlternativeSources: alternates,
	}
}

func seedRecord(q models.InstrumentQuery) models.InstrumentRecord {
	return models.InstrumentRecord{
		Name: models.Str(q.Name),
		ISIN: models.Str(q.ISIN),
	}
}

func meetsBar(res models.ResolvedInstrument, threshold float64) bool {
	return res.Confidence >= threshold &&
		res.DataQuality.Overall >= minQualityOverall &&
		res.Record.Has(models.FieldName) &&
		(res.Record.Has(models.FieldISIN) || res.Record.Has(models.FieldAssetClass))
}

// partial synthesizes a degraded result from everything observed. Its
// confidence stays strictly below the best single observation.
func (r *InstrumentResolver) partial(q models.InstrumentQuery, opts models.ResolveOptions, seen *observationSet) (models.ResolvedInstrument, error) {
	obs := seen.list(opts)
	if len(obs) == 0 {
		return models.ResolvedInstrument{}, fmt.Errorf("resolve %q: %w", q.Name, models.ErrAllSourcesExhausted)
	}

	best := obs[0]
	for _, o := range obs[1:] {
		if o.Confidence > best.Confidence {
			best = o
		}
	}

	var alternates []models.SourceObservation
	for _, o := range obs {
		if o.Source != best.Source {
			alternates = append(alternates, o)
		}
	}

	res := r.build(q, opts, best, alternates)
	res.ResolvedBy.Strategy = models.StrategyPartial
	res.ResolvedBy.Attempts = opts.MaxAttempts
	res.Confidence = PartialConfidence(best.Confidence, q.HasISIN())
	res.Partial = true
	return res, nil
}

// PartialConfidence degrades the best observed confidence: ×0.7, +0.1 when
// the query carried an ISIN, never reaching best itself.
func PartialConfidence(best float64, hasISIN bool) float64 {
	best = clamp01(best)
	c := best * partialFactor
	if hasISIN {
		c += partialISINBonus
	}
	if c >= best {
		c = best * partialFactor
	}
	return clamp01(c)
}

// observationSet keeps the most confident observation per source.
type observationSet struct {
	mu  sync.Mutex
	obs map[models.Source]models.SourceObservation
}

func newObservationSet() *observationSet {
	return &observationSet{obs: map[models.Source]models.SourceObservation{}}
}

func (s *observationSet) add(o models.SourceObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.obs[o.Source]; !ok || o.Confidence > cur.Confidence {
		s.obs[o.Source] = o
	}
}

func (s *observationSet) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.obs) == 0
}

// list returns observations in priority order.
func (s *observationSet) list(opts models.ResolveOptions) []models.SourceObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SourceObservation, 0, len(s.obs))
	for _, src := range opts.SourcePriority {
		if o, ok := s.obs[src]; ok {
			out = append(out, o)
		}
	}
	return out
}
