package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics and cache.Observer using
// Prometheus.
type Recorder struct {
	resolutions  *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec
	retries      *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheEvicted *prometheus.CounterVec
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registering its collectors on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_resolutions_total",
				Help: "Instrument resolutions by primary source and outcome",
			},
			[]string{"source", "outcome"},
		),
		sourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_source_errors_total",
				Help: "Source lookups that failed with an error",
			},
			[]string{"source"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_retries_total",
				Help: "Retried cached computations by operation",
			},
			[]string{"operation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finresolve_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_cache_hits_total",
				Help: "Analysis cache hits",
			},
			[]string{"cache"},
		),
		cacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_cache_misses_total",
				Help: "Analysis cache misses",
			},
			[]string{"cache"},
		),
		cacheEvicted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finresolve_cache_evictions_total",
				Help: "Entries removed by eviction sweeps",
			},
			[]string{"cache"},
		),
	}
}

// RecordResolution records a resolution outcome for its primary source.
func (r *Recorder) RecordResolution(source, outcome string) {
	r.resolutions.WithLabelValues(source, outcome).Inc()
}

// RecordSourceError records a failed source lookup.
func (r *Recorder) RecordSourceError(source string) {
	r.sourceErrors.WithLabelValues(source).Inc()
}

// RecordRetry records a retry of a cached computation.
func (r *Recorder) RecordRetry(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) CacheHit(cache string) {
	r.cacheHits.WithLabelValues(cache).Inc()
}

func (r *Recorder) CacheMiss(cache string) {
	r.cacheMisses.WithLabelValues(cache).Inc()
}

func (r *Recorder) CacheEviction(cache string, n int) {
	r.cacheEvicted.WithLabelValues(cache).Add(float64(n))
}
