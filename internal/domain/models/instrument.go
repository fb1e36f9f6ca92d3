package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies where an observation came from.
type Source string

const (
	SourceLocalFactsheet Source = "local_factsheet"
	SourceLocalIndex     Source = "local_index"
	SourceWebSearch      Source = "web_search"
	SourceTextOracle     Source = "text_oracle"
	SourceFallback       Source = "fallback"
)

// DefaultSourcePriority orders sources from cheapest and most reliable to
// most expensive.
var DefaultSourcePriority = []Source{
	SourceLocalFactsheet,
	SourceLocalIndex,
	SourceWebSearch,
	SourceTextOracle,
	SourceFallback,
}

// ParseSource validates a source name.
func ParseSource(s string) (Source, bool) {
	for _, src := range DefaultSourcePriority {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// InstrumentQuery is an immutable request to resolve one instrument.
type InstrumentQuery struct {
	Name  string          `json:"name" yaml:"name"`
	ISIN  string          `json:"isin,omitempty" yaml:"isin"`
	Value decimal.Decimal `json:"value" yaml:"value"`
}

// Key identifies the query in caches as name|isin|value.
func (q InstrumentQuery) Key() string {
	return q.Name + "|" + q.ISIN + "|" + q.Value.String()
}

// HasISIN reports whether the query carries an ISIN.
func (q InstrumentQuery) HasISIN() bool {
	return strings.TrimSpace(q.ISIN) != ""
}

// FactsheetData is the dated payload behind a factsheet record.
type FactsheetData struct {
	AsOf        *time.Time         `json:"as_of,omitempty" yaml:"as_of"`
	DataQuality *float64           `json:"data_quality,omitempty" yaml:"data_quality"`
	TER         *float64           `json:"ter,omitempty" yaml:"ter"`
	FundSize    *decimal.Decimal   `json:"fund_size,omitempty" yaml:"fund_size"`
	Allocations map[string]float64 `json:"allocations,omitempty" yaml:"allocations"`
}

// InstrumentRecord holds canonical fields. Any field may be absent.
type InstrumentRecord struct {
	Name          *string        `json:"name,omitempty" yaml:"name"`
	ISIN          *string        `json:"isin,omitempty" yaml:"isin"`
	Type          *string        `json:"type,omitempty" yaml:"type"`
	Sector        *string        `json:"sector,omitempty" yaml:"sector"`
	Geography     *string        `json:"geography,omitempty" yaml:"geography"`
	Currency      *string        `json:"currency,omitempty" yaml:"currency"`
	AssetClass    *string        `json:"asset_class,omitempty" yaml:"asset_class"`
	FactsheetData *FactsheetData `json:"factsheet_data,omitempty" yaml:"factsheet_data"`
}

// Field names in canonical order. Conflict resolution and completeness
// scoring iterate this list.
const (
	FieldName       = "name"
	FieldISIN       = "isin"
	FieldType       = "type"
	FieldSector     = "sector"
	FieldGeography  = "geography"
	FieldCurrency   = "currency"
	FieldAssetClass = "asset_class"
)

var CanonicalFields = []string{
	FieldName, FieldISIN, FieldType, FieldSector, FieldGeography, FieldCurrency, FieldAssetClass,
}

// Get returns the value of a canonical field.
func (r *InstrumentRecord) Get(field string) *string {
	if r == nil {
		return nil
	}
	switch field {
	case FieldName:
		return r.Name
	case FieldISIN:
		return r.ISIN
	case FieldType:
		return r.Type
	case FieldSector:
		return r.Sector
	case FieldGeography:
		return r.Geography
	case FieldCurrency:
		return r.Currency
	case FieldAssetClass:
		return r.AssetClass
	}
	return nil
}

// Set assigns a canonical field. Empty values clear it.
func (r *InstrumentRecord) Set(field string, v *string) {
	if v != nil && strings.TrimSpace(*v) == "" {
		v = nil
	}
	switch field {
	case FieldName:
		r.Name = v
	case FieldISIN:
		r.ISIN = v
	case FieldType:
		r.Type = v
	case FieldSector:
		r.Sector = v
	case FieldGeography:
		r.Geography = v
	case FieldCurrency:
		r.Currency = v
	case FieldAssetClass:
		r.AssetClass = v
	}
}

// Has reports whether field is populated with a non-blank value.
func (r *InstrumentRecord) Has(field string) bool {
	v := r.Get(field)
	return v != nil && strings.TrimSpace(*v) != ""
}

// Populated counts populated canonical fields.
func (r *InstrumentRecord) Populated() int {
	n := 0
	for _, f := range CanonicalFields {
		if r.Has(f) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (r InstrumentRecord) Clone() InstrumentRecord {
	out := InstrumentRecord{}
	for _, f := range CanonicalFields {
		if v := r.Get(f); v != nil {
			out.Set(f, Str(*v))
		}
	}
	if r.FactsheetData != nil {
		fd := *r.FactsheetData
		if len(fd.Allocations) > 0 {
			fd.Allocations = make(map[string]float64, len(r.FactsheetData.Allocations))
			for k, v := range r.FactsheetData.Allocations {
				fd.Allocations[k] = v
			}
		}
		out.FactsheetData = &fd
	}
	return out
}

// FillFrom copies fields from other that are absent in r.
func (r *InstrumentRecord) FillFrom(other InstrumentRecord) {
	for _, f := range CanonicalFields {
		if !r.Has(f) && other.Has(f) {
			r.Set(f, Str(*other.Get(f)))
		}
	}
	if r.FactsheetData == nil && other.FactsheetData != nil {
		fd := *other.FactsheetData
		r.FactsheetData = &fd
	}
}

// Value returns the field value or "".
func (r *InstrumentRecord) Value(field string) string {
	if v := r.Get(field); v != nil {
		return *v
	}
	return ""
}

// Str returns a pointer to s, or nil when s is blank.
func Str(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// SourceObservation is one source's partial answer for a query.
type SourceObservation struct {
	Source     Source           `json:"source"`
	Fields     InstrumentRecord `json:"fields"`
	Confidence float64          `json:"confidence"`
}
