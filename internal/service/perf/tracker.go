package perf

import (
	"sync"
	"time"

	"FinResolve/internal/domain/models"
)

type run struct {
	started time.Time
	hits    int
	misses  int
	batches int
	errors  []string
}

// Tracker keeps per-run counters keyed by a caller-supplied run ID.
// Calls for unknown runs are ignored.
type Tracker struct {
	mu   sync.Mutex
	runs map[string]*run
	now  func() time.Time
}

func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

func NewTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{runs: make(map[string]*run), now: now}
}

func (t *Tracker) Start(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[runID] = &run{started: t.now()}
}

func (t *Tracker) RecordHit(runID string) {
	t.with(runID, func(r *run) { r.hits++ })
}

func (t *Tracker) RecordMiss(runID string) {
	t.with(runID, func(r *run) { r.misses++ })
}

func (t *Tracker) RecordBatch(runID string) {
	t.with(runID, func(r *run) { r.batches++ })
}

func (t *Tracker) RecordError(runID string, err error) {
	if err == nil {
		return
	}
	t.with(runID, func(r *run) { r.errors = append(r.errors, err.Error()) })
}

// Snapshot returns the counters of a running run.
func (t *Tracker) Snapshot(runID string) (models.RunPerformance, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[runID]
	if !ok {
		return models.RunPerformance{}, false
	}
	return t.report(runID, r), true
}

// Finish closes the run and returns its performance.
func (t *Tracker) Finish(runID string) models.RunPerformance {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runs[runID]
	if !ok {
		return models.RunPerformance{RunID: runID}
	}
	delete(t.runs, runID)
	return t.report(runID, r)
}

func (t *Tracker) report(runID string, r *run) models.RunPerformance {
	return models.RunPerformance{
		RunID:       runID,
		StartedAt:   r.started,
		Duration:    t.now().Sub(r.started),
		CacheHits:   r.hits,
		CacheMisses: r.misses,
		Batches:     r.batches,
		Errors:      append([]string(nil), r.errors...),
	}
}

func (t *Tracker) with(runID string, fn func(*run)) {
	if runID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.runs[runID]; ok {
		fn(r)
	}
}
