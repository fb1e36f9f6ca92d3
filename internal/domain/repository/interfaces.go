package repository

import (
	"context"
	"time"

	"FinResolve/internal/domain/models"
)

// SourceAdapter looks up one instrument in one data source. It returns
// models.ErrNoMatch when the source legitimately has nothing and wraps
// models.ErrSourceUnavailable for transport or parse failures.
type SourceAdapter interface {
	Source() models.Source
	Lookup(ctx context.Context, q models.InstrumentQuery) (*models.SourceObservation, error)
}

// ResolutionSink receives the resolved instruments of a finished bulk run.
type ResolutionSink interface {
	RecordResolutions(ctx context.Context, runID string, items []models.ResolvedInstrument) error
}

// ResolutionStore persists resolutions for auditing.
type ResolutionStore interface {
	ResolutionSink
	Init(ctx context.Context) error
	Recent(ctx context.Context, isin string, since time.Time, limit int) ([]StoredResolution, error)
	Health(ctx context.Context) error
	Close() error
}

// StoredResolution is the audit row of one resolution.
type StoredResolution struct {
	RunID         string    `json:"run_id"`
	ResolvedAt    time.Time `json:"resolved_at"`
	QueryName     string    `json:"query_name"`
	QueryISIN     string    `json:"query_isin,omitempty"`
	Name          string    `json:"name"`
	ISIN          string    `json:"isin"`
	AssetClass    string    `json:"asset_class,omitempty"`
	PrimarySource string    `json:"primary_source"`
	Strategy      string    `json:"strategy"`
	Confidence    float64   `json:"confidence"`
	Quality       float64   `json:"quality"`
	Partial       bool      `json:"partial"`
}

type Metrics interface {
	RecordResolution(source, outcome string)
	RecordSourceError(source string)
	RecordRetry(op string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
