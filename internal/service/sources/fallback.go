package sources

import (
	"context"
	"strings"

	"FinResolve/internal/domain/models"
)

const (
	fallbackBase       = 0.3
	fallbackISINBonus  = 0.2
	fallbackClassBonus = 0.1
)

// Fallback infers what it can from the query itself. It does no I/O and
// never fails for a non-empty query.
type Fallback struct{}

func NewFallback() Fallback { return Fallback{} }

func (Fallback) Source() models.Source { return models.SourceFallback }

func (Fallback) Lookup(_ context.Context, q models.InstrumentQuery) (*models.SourceObservation, error) {
	name := strings.TrimSpace(q.Name)
	if name == "" && strings.TrimSpace(q.ISIN) == "" {
		return nil, models.ErrNoMatch
	}

	rec := models.InstrumentRecord{Name: models.Str(name)}
	conf := fallbackBase
	if isin := models.NormalizeISIN(q.ISIN); models.ValidISIN(isin) {
		rec.ISIN = models.Str(isin)
		inferFromISIN(isin, &rec)
		conf += fallbackISINBonus
	}
	if inferFromName(name, &rec) {
		conf += fallbackClassBonus
	}
	return &models.SourceObservation{
		Source:     models.SourceFallback,
		Fields:     rec,
		Confidence: conf,
	}, nil
}
