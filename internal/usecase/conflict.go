package usecase

import (
	"fmt"
	"sort"
	"strings"

	"FinResolve/internal/domain/models"
)

// ConflictResolver merges observations of one query field by field. The
// highest confidence wins; ties go to the source earlier in the priority.
type ConflictResolver struct {
	rank func(models.Source) int
}

func NewConflictResolver(priority []models.Source) *ConflictResolver {
	pos := make(map[models.Source]int, len(priority))
	for i, s := range priority {
		if _, ok := pos[s]; !ok {
			pos[s] = i
		}
	}
	return &ConflictResolver{rank: func(s models.Source) int {
		if i, ok := pos[s]; ok {
			return i
		}
		return len(priority)
	}}
}

// Resolve returns the merged record and one conflict per field on which at
// least two sources reported different non-empty values.
func (r *ConflictResolver) Resolve(obs []models.SourceObservation) (models.InstrumentRecord, []models.ResolutionConflict) {
	ordered := r.order(obs)

	var (
		record    models.InstrumentRecord
		conflicts []models.ResolutionConflict
	)

	for _, field := range models.CanonicalFields {
		var (
			values   []models.FieldObservation
			distinct = map[string]struct{}{}
		)
		for _, o := range ordered {
			v := o.Fields.Get(field)
			if v == nil || strings.TrimSpace(*v) == "" {
				continue
			}
			values = append(values, models.FieldObservation{Source: o.Source, Value: *v, Confidence: o.Confidence})
			distinct[normalize(*v)] = struct{}{}
		}
		if len(values) == 0 {
			continue
		}

		winner := values[0]
		record.Set(field, models.Str(winner.Value))

		if len(distinct) < 2 {
			continue
		}
		conflicts = append(conflicts, models.ResolutionConflict{
			Field:         field,
			Observations:  values,
			ResolvedValue: winner.Value,
			Reason:        fmt.Sprintf("chose value from %s (confidence %.2f)", winner.Source, winner.Confidence),
		})
	}

	for _, o := range ordered {
		if o.Fields.FactsheetData != nil {
			fd := *o.Fields.FactsheetData
			record.FactsheetData = &fd
			break
		}
	}

	return record, conflicts
}

// Decisive reports whether c was settled on confidence alone: the winning
// value outscores every disagreeing observation. Ties settled by source
// priority are not decisive.
func Decisive(c models.ResolutionConflict) bool {
	win := normalize(c.ResolvedValue)
	best, rival := -1.0, -1.0
	for _, o := range c.Observations {
		if normalize(o.Value) == win {
			best = max(best, o.Confidence)
		} else {
			rival = max(rival, o.Confidence)
		}
	}
	return best >= 0 && best > rival
}

// order sorts by confidence descending, then priority, then input position.
func (r *ConflictResolver) order(obs []models.SourceObservation) []models.SourceObservation {
	out := make([]models.SourceObservation, len(obs))
	copy(out, obs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return r.rank(out[i].Source) < r.rank(out[j].Source)
	})
	return out
}

// LostConflicts counts, per source, the conflicts in which its value was not chosen.
func LostConflicts(conflicts []models.ResolutionConflict) map[models.Source]int {
	lost := map[models.Source]int{}
	for _, c := range conflicts {
		for _, o := range c.Observations {
			if normalize(o.Value) != normalize(c.ResolvedValue) {
				lost[o.Source]++
			}
		}
	}
	return lost
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
