package usecase

import (
	"math"
	"time"

	"FinResolve/internal/domain/models"
)

// Static reliability of each source, used as accuracy.
var sourceAccuracy = map[models.Source]float64{
	models.SourceLocalFactsheet: 0.95,
	models.SourceLocalIndex:     0.85,
	models.SourceWebSearch:      0.75,
	models.SourceTextOracle:     0.80,
	models.SourceFallback:       0.60,
}

// SourceAccuracy returns the static accuracy weight of s.
func SourceAccuracy(s models.Source) float64 {
	if a, ok := sourceAccuracy[s]; ok {
		return a
	}
	return sourceAccuracy[models.SourceFallback]
}

// QualityInput is everything the scorer reads. Nothing else is consulted.
type QualityInput struct {
	Record     models.InstrumentRecord
	Primary    models.Source
	Alternates []models.Source
	Conflicts  []models.ResolutionConflict
	Now        time.Time
}

// ScoreQuality computes the sub-scores and their weighted overall score.
func ScoreQuality(in QualityInput) models.DataQuality {
	q := models.DataQuality{
		Completeness: float64(in.Record.Populated()) / float64(len(models.CanonicalFields)),
		Accuracy:     SourceAccuracy(in.Primary),
		Consistency:  consistency(in.Alternates, in.Conflicts),
		Freshness:    freshness(in.Record.FactsheetData, in.Now),
	}

	q.Reliability = q.Accuracy
	if fd := in.Record.FactsheetData; fd != nil && fd.DataQuality != nil {
		q.Reliability = clamp01(*fd.DataQuality)
	}

	q.Overall = Overall(q)
	return q
}

// Overall is the fixed linear combination of the five sub-scores.
func Overall(q models.DataQuality) float64 {
	return clamp01(models.WeightCompleteness*q.Completeness +
		models.WeightAccuracy*q.Accuracy +
		models.WeightConsistency*q.Consistency +
		models.WeightFreshness*q.Freshness +
		models.WeightReliability*q.Reliability)
}

func consistency(alternates []models.Source, conflicts []models.ResolutionConflict) float64 {
	if len(alternates) == 0 {
		return 1.0
	}
	lost := LostConflicts(conflicts)
	sum := 0.0
	for _, s := range alternates {
		sum += math.Max(0, 1-float64(lost[s])*0.1)
	}
	return clamp01(sum / float64(len(alternates)))
}

func freshness(fd *models.FactsheetData, now time.Time) float64 {
	if fd == nil || fd.AsOf == nil || fd.AsOf.IsZero() {
		return 0.8
	}
	days := now.Sub(*fd.AsOf).Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.9
	case days <= 30:
		return 0.8
	case days <= 90:
		return 0.6
	case days <= 365:
		return 0.4
	default:
		return 0.2
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
