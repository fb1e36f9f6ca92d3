package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request bodies for the resolution HTTP endpoints.

type ResolveOptionsRequest struct {
	MinConfidence            float64  `json:"min_confidence" validate:"omitempty,gt=0,lte=1"`
	MaxAttempts              int      `json:"max_attempts" validate:"omitempty,gte=1,lte=10"`
	SourcePriority           []string `json:"source_priority" validate:"omitempty,dive,oneof=local_factsheet local_index web_search text_oracle fallback"`
	AllowPartial             *bool    `json:"allow_partial"`
	EnableConflictResolution *bool    `json:"enable_conflict_resolution"`
	TimeoutMs                int      `json:"timeout_ms" validate:"omitempty,gte=100,lte=120000"`
}

type ResolveRequest struct {
	Name    string                `json:"name" validate:"required_without=ISIN"`
	ISIN    string                `json:"isin" validate:"omitempty,isin"`
	Value   decimal.Decimal       `json:"value"`
	Options ResolveOptionsRequest `json:"options"`
}

type BulkResolveRequest struct {
	Instruments []ResolveItem         `json:"instruments" validate:"required,min=1,max=1000,dive"`
	Options     ResolveOptionsRequest `json:"options"`
}

type ResolveItem struct {
	Name  string          `json:"name" validate:"required_without=ISIN"`
	ISIN  string          `json:"isin" validate:"omitempty,isin"`
	Value decimal.Decimal `json:"value"`
}

type AnalyzePortfolioRequest struct {
	Portfolio Portfolio             `json:"portfolio"`
	Options   ResolveOptionsRequest `json:"options"`
}

// ToOptions converts validated request options into resolver options.
func (r ResolveOptionsRequest) ToOptions() ResolveOptions {
	return r.ApplyTo(DefaultResolveOptions())
}

// ApplyTo overrides base with the fields set in the request.
func (r ResolveOptionsRequest) ApplyTo(base ResolveOptions) ResolveOptions {
	o := base
	o.SourcePriority = append([]Source(nil), base.SourcePriority...)
	if r.MinConfidence > 0 {
		o.MinConfidence = r.MinConfidence
	}
	if r.MaxAttempts > 0 {
		o.MaxAttempts = r.MaxAttempts
	}
	if len(r.SourcePriority) > 0 {
		o.SourcePriority = make([]Source, 0, len(r.SourcePriority))
		for _, s := range r.SourcePriority {
			if src, ok := ParseSource(s); ok {
				o.SourcePriority = append(o.SourcePriority, src)
			}
		}
	}
	if r.AllowPartial != nil {
		o.AllowPartial = *r.AllowPartial
	}
	if r.EnableConflictResolution != nil {
		o.EnableConflictResolution = *r.EnableConflictResolution
	}
	if r.TimeoutMs > 0 {
		o.PerInstrumentTimeout = time.Duration(r.TimeoutMs) * time.Millisecond
	}
	return o.Normalize()
}

// Query converts the request into an instrument query.
func (r ResolveRequest) Query() InstrumentQuery {
	return InstrumentQuery{Name: r.Name, ISIN: NormalizeISIN(r.ISIN), Value: r.Value}
}

// Query converts the item into an instrument query.
func (r ResolveItem) Query() InstrumentQuery {
	return InstrumentQuery{Name: r.Name, ISIN: NormalizeISIN(r.ISIN), Value: r.Value}
}
