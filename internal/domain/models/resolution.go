package models

import "time"

// FieldObservation is one source's value for a conflicting field.
type FieldObservation struct {
	Source     Source  `json:"source"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ResolutionConflict records how a disagreement between sources was settled.
type ResolutionConflict struct {
	Field         string             `json:"field"`
	Observations  []FieldObservation `json:"observations"`
	ResolvedValue string             `json:"resolved_value"`
	Reason        string             `json:"reason"`
}

// DataQuality holds sub-scores in [0,1] and their weighted overall score.
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Freshness    float64 `json:"freshness"`
	Reliability  float64 `json:"reliability"`
	Overall      float64 `json:"overall"`
}

// Quality weights for the overall score.
const (
	WeightCompleteness = 0.30
	WeightAccuracy     = 0.25
	WeightConsistency  = 0.20
	WeightFreshness    = 0.15
	WeightReliability  = 0.10
)

// Strategy names how a resolution was reached.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyMerged    Strategy = "merged"
	StrategyPartial   Strategy = "partial"
	StrategyFallback  Strategy = "fallback"
	StrategyRecovered Strategy = "recovered"
)

// ResolvedBy describes which sources produced a resolution.
type ResolvedBy struct {
	PrimarySource   Source   `json:"primary_source"`
	FallbackSources []Source `json:"fallback_sources,omitempty"`
	Strategy        Strategy `json:"strategy"`
	Attempts        int      `json:"attempts"`
}

// ResolvedInstrument is the immutable result of one resolution.
type ResolvedInstrument struct {
	Query              InstrumentQuery      `json:"query"`
	Record             InstrumentRecord     `json:"record"`
	ResolvedBy         ResolvedBy           `json:"resolved_by"`
	Confidence         float64              `json:"confidence"`
	DataQuality        DataQuality          `json:"data_quality"`
	Conflicts          []ResolutionConflict `json:"conflicts,omitempty"`
	AlternativeSources []SourceObservation  `json:"alternative_sources,omitempty"`
	Elapsed            time.Duration        `json:"elapsed"`
	Partial            bool                 `json:"partial"`
}

// ResolveOptions tunes one resolution. Zero values are replaced by defaults
// through Normalize.
type ResolveOptions struct {
	MinConfidence            float64       `json:"min_confidence"`
	MaxAttempts              int           `json:"max_attempts"`
	SourcePriority           []Source      `json:"source_priority"`
	AllowPartial             bool          `json:"allow_partial"`
	EnableConflictResolution bool          `json:"enable_conflict_resolution"`
	PerInstrumentTimeout     time.Duration `json:"per_instrument_timeout"`
}

// DefaultResolveOptions returns the documented defaults.
func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{
		MinConfidence:            0.7,
		MaxAttempts:              3,
		SourcePriority:           append([]Source(nil), DefaultSourcePriority...),
		AllowPartial:             true,
		EnableConflictResolution: true,
		PerInstrumentTimeout:     10 * time.Second,
	}
}

// Normalize fills zero numeric fields and an empty priority with defaults.
func (o ResolveOptions) Normalize() ResolveOptions {
	d := DefaultResolveOptions()
	if o.MinConfidence <= 0 || o.MinConfidence > 1 {
		o.MinConfidence = d.MinConfidence
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if len(o.SourcePriority) == 0 {
		o.SourcePriority = d.SourcePriority
	}
	if o.PerInstrumentTimeout <= 0 {
		o.PerInstrumentTimeout = d.PerInstrumentTimeout
	}
	return o
}

// Rank returns the position of s in the priority, or len when absent.
func (o ResolveOptions) Rank(s Source) int {
	for i, p := range o.SourcePriority {
		if p == s {
			return i
		}
	}
	return len(o.SourcePriority)
}

// BulkSummary aggregates the health of one bulk run.
type BulkSummary struct {
	Total             int            `json:"total"`
	Resolved          int            `json:"resolved"`
	PartiallyResolved int            `json:"partially_resolved"`
	Unresolved        int            `json:"unresolved"`
	AvgConfidence     float64        `json:"avg_confidence"`
	AvgDataQuality    float64        `json:"avg_data_quality"`
	ConflictsDetected int            `json:"conflicts_detected"`
	ConflictsResolved int            `json:"conflicts_resolved"`
	SourceUsage       map[Source]int `json:"source_usage"`
}

// RunPerformance is the performance accounting for one run.
type RunPerformance struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	CacheHits   int           `json:"cache_hits"`
	CacheMisses int           `json:"cache_misses"`
	Errors      []string      `json:"errors,omitempty"`
	Batches     int           `json:"batches"`
}

// UnresolvedInstrument is a query that produced no result, with the reason.
type UnresolvedInstrument struct {
	Index int             `json:"index"`
	Query InstrumentQuery `json:"query"`
	Error string          `json:"error"`
}

// BulkResult partitions a bulk run preserving submission order.
type BulkResult struct {
	Resolved    []ResolvedInstrument   `json:"resolved"`
	Unresolved  []UnresolvedInstrument `json:"unresolved"`
	Summary     BulkSummary            `json:"summary"`
	Performance RunPerformance         `json:"performance"`
}

// BulkProgress is reported after each item completes.
type BulkProgress struct {
	RunID     string `json:"run_id"`
	Index     int    `json:"index"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Resolved  bool   `json:"resolved"`
	Partial   bool   `json:"partial"`
	Cached    bool   `json:"cached"`
}
