package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundBreakdown is a look-through decomposition. Each map sums to 1.
type FundBreakdown struct {
	ISIN        string             `json:"isin,omitempty"`
	Name        string             `json:"name"`
	AssetClass  map[string]float64 `json:"asset_class"`
	Region      map[string]float64 `json:"region"`
	Sector      map[string]float64 `json:"sector"`
	Currency    map[string]float64 `json:"currency"`
	Strategy    string             `json:"strategy"`
	Confidence  float64            `json:"confidence"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Holding is one position of a portfolio.
type Holding struct {
	Name  string          `json:"name" yaml:"name" validate:"required"`
	ISIN  string          `json:"isin,omitempty" yaml:"isin" validate:"omitempty,isin"`
	Value decimal.Decimal `json:"value" yaml:"value"`
}

// Query turns the holding into a resolution query.
func (h Holding) Query() InstrumentQuery {
	return InstrumentQuery{Name: h.Name, ISIN: NormalizeISIN(h.ISIN), Value: h.Value}
}

// Portfolio is a named set of holdings.
type Portfolio struct {
	ID       string    `json:"id" yaml:"id" validate:"required"`
	Holdings []Holding `json:"holdings" yaml:"holdings" validate:"required,min=1,dive"`
}

// Queries returns one resolution query per holding, in order.
func (p Portfolio) Queries() []InstrumentQuery {
	out := make([]InstrumentQuery, len(p.Holdings))
	for i, h := range p.Holdings {
		out[i] = h.Query()
	}
	return out
}

// Exposure is one look-through bucket of a portfolio.
type Exposure struct {
	Bucket string          `json:"bucket"`
	Weight float64         `json:"weight"`
	Value  decimal.Decimal `json:"value"`
}

// PortfolioAnalysis aggregates look-through exposures weighted by value.
type PortfolioAnalysis struct {
	PortfolioID string                 `json:"portfolio_id"`
	TotalValue  decimal.Decimal        `json:"total_value"`
	AssetClass  []Exposure             `json:"asset_class"`
	Region      []Exposure             `json:"region"`
	Sector      []Exposure             `json:"sector"`
	Currency    []Exposure             `json:"currency"`
	Instruments []ResolvedInstrument   `json:"instruments"`
	Unresolved  []UnresolvedInstrument `json:"unresolved,omitempty"`
	Summary     BulkSummary            `json:"summary"`
	GeneratedAt time.Time              `json:"generated_at"`
}
