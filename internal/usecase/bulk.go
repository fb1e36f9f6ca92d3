package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/logger"
)

// ProgressFunc is called after each item completes. Calls are serialized.
type ProgressFunc func(models.BulkProgress)

type slot struct {
	res *models.ResolvedInstrument
	err error
}

// ResolveBulk resolves queries in two phases: a local sweep (result cache
// and local sources, no network) and then fixed-size concurrent batches for
// what is left. Per-item failures end up in Unresolved; the returned lists
// keep submission order.
func (r *InstrumentResolver) ResolveBulk(ctx context.Context, queries []models.InstrumentQuery, opts models.ResolveOptions, progress ProgressFunc) (*models.BulkResult, error) {
	opts = opts.Normalize()
	runID := uuid.NewString()
	r.tracker.Start(runID)

	slots := make([]slot, len(queries))
	report := r.progressReporter(runID, len(queries), progress)

	pending := make([]int, 0, len(queries))
	for i, q := range queries {
		if err := validateQuery(q); err != nil {
			slots[i].err = err
			r.tracker.RecordError(runID, err)
			report(i, slots[i], false)
			continue
		}
		if res, cached, ok := r.sweep(ctx, runID, q, opts); ok {
			slots[i].res = res
			report(i, slots[i], cached)
			continue
		}
		pending = append(pending, i)
	}

	r.log.Debug("bulk local sweep done",
		logger.String("run_id", runID),
		logger.Int("total", len(queries)),
		logger.Int("pending", len(pending)),
	)

	for start := 0; start < len(pending); start += r.batchSize {
		if start > 0 {
			if err := r.sleep(ctx, r.batchDelay); err != nil {
				break
			}
		}
		end := min(start+r.batchSize, len(pending))
		batch := pending[start:end]
		r.tracker.RecordBatch(runID)

		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range batch {
			g.Go(func() error {
				res, cached, err := r.resolveOne(gctx, runID, queries[idx], opts)
				slots[idx] = slot{res: res, err: err}
				report(idx, slots[idx], cached)
				return nil
			})
		}
		_ = g.Wait()

		r.log.Debug("bulk batch done",
			logger.String("run_id", runID),
			logger.Int("batch", start/r.batchSize+1),
			logger.Int("size", len(batch)),
		)
	}

	if err := ctx.Err(); err != nil {
		for _, idx := range pending {
			if slots[idx].res == nil && slots[idx].err == nil {
				slots[idx].err = err
			}
		}
	}

	out := &models.BulkResult{
		Resolved:   make([]models.ResolvedInstrument, 0, len(queries)),
		Unresolved: make([]models.UnresolvedInstrument, 0),
	}
	for i, s := range slots {
		if s.res != nil {
			out.Resolved = append(out.Resolved, *s.res)
			continue
		}
		msg := "unresolved"
		if s.err != nil {
			msg = s.err.Error()
		}
		out.Unresolved = append(out.Unresolved, models.UnresolvedInstrument{Index: i, Query: queries[i], Error: msg})
	}

	out.Summary = Summarize(len(queries), out.Resolved)
	out.Performance = r.tracker.Finish(runID)

	r.record(ctx, runID, out.Resolved)
	return out, nil
}

// sweep answers q from the result cache or from local sources alone.
func (r *InstrumentResolver) sweep(ctx context.Context, runID string, q models.InstrumentQuery, opts models.ResolveOptions) (*models.ResolvedInstrument, bool, bool) {
	if res, ok := r.results.GetIfFresh(q.Key()); ok {
		r.tracker.RecordHit(runID)
		r.metrics.RecordResolution(string(res.ResolvedBy.PrimarySource), "cached")
		return &res, true, true
	}

	local := make([]models.Source, 0, 2)
	for _, s := range opts.SourcePriority {
		if s == models.SourceLocalFactsheet || s == models.SourceLocalIndex {
			local = append(local, s)
		}
	}
	if len(local) == 0 {
		return nil, false, false
	}

	start := r.now()
	res, ok := r.attempt(ctx, q, opts, 1, local, newObservationSet())
	if !ok {
		return nil, false, false
	}
	res.Elapsed = r.now().Sub(start)
	// stored through GetOrCompute so the result cache counts the miss
	res, err := r.results.GetOrCompute(ctx, q.Key(), r.resultTTL, func(context.Context) (models.ResolvedInstrument, error) {
		return res, nil
	})
	if err != nil {
		return nil, false, false
	}
	r.tracker.RecordMiss(runID)
	r.metrics.RecordResolution(string(res.ResolvedBy.PrimarySource), outcome(res))
	return &res, false, true
}

func (r *InstrumentResolver) progressReporter(runID string, total int, fn ProgressFunc) func(int, slot, bool) {
	var (
		mu        sync.Mutex
		completed int
	)
	return func(idx int, s slot, cached bool) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if fn == nil {
			return
		}
		fn(models.BulkProgress{
			RunID:     runID,
			Index:     idx,
			Completed: completed,
			Total:     total,
			Resolved:  s.res != nil,
			Partial:   s.res != nil && s.res.Partial,
			Cached:    cached,
		})
	}
}

// record hands the run to every sink. Sink failures never fail the run.
func (r *InstrumentResolver) record(ctx context.Context, runID string, items []models.ResolvedInstrument) {
	if len(items) == 0 {
		return
	}
	for _, sink := range r.sinks {
		if err := sink.RecordResolutions(ctx, runID, items); err != nil {
			r.metrics.RecordError("resolution_sink")
			r.log.Warn("resolution sink failed",
				logger.String("run_id", runID),
				logger.Error(err),
			)
		}
	}
}

// Summarize aggregates the resolved list of a run of total queries.
func Summarize(total int, resolved []models.ResolvedInstrument) models.BulkSummary {
	s := models.BulkSummary{
		Total:       total,
		SourceUsage: map[models.Source]int{},
	}

	var confSum, qualSum float64
	for _, r := range resolved {
		if r.Partial {
			s.PartiallyResolved++
		} else {
			s.Resolved++
		}
		confSum += r.Confidence
		qualSum += r.DataQuality.Overall
		s.ConflictsDetected += len(r.Conflicts)
		for _, c := range r.Conflicts {
			if Decisive(c) {
				s.ConflictsResolved++
			}
		}
		s.SourceUsage[r.ResolvedBy.PrimarySource]++
	}
	s.Unresolved = total - len(resolved)
	if n := len(resolved); n > 0 {
		s.AvgConfidence = confSum / float64(n)
		s.AvgDataQuality = qualSum / float64(n)
	}
	return s
}
