package sources

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/util"
)

const (
	factsheetISINConfidence = 0.95
	factsheetNameConfidence = 0.85
)

// FactsheetEntry is one curated factsheet in the index file.
type FactsheetEntry struct {
	models.InstrumentRecord `yaml:",inline"`
	Aliases                 []string `yaml:"aliases"`
}

type factsheetFile struct {
	Factsheets []FactsheetEntry `yaml:"factsheets"`
}

// FactsheetIndex answers lookups from curated factsheets held in memory.
type FactsheetIndex struct {
	byISIN map[string]*FactsheetEntry
	byName map[string]*FactsheetEntry
}

// NewFactsheetIndex indexes entries by ISIN and by normalized name and aliases.
// Later entries win on duplicate keys.
func NewFactsheetIndex(entries []FactsheetEntry) *FactsheetIndex {
	idx := &FactsheetIndex{
		byISIN: make(map[string]*FactsheetEntry, len(entries)),
		byName: make(map[string]*FactsheetEntry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if isin := models.NormalizeISIN(e.Value(models.FieldISIN)); isin != "" {
			e.ISIN = models.Str(isin)
			idx.byISIN[isin] = e
		}
		for _, n := range append([]string{e.Value(models.FieldName)}, e.Aliases...) {
			if key := util.NormalizeName(n); key != "" {
				idx.byName[key] = e
			}
		}
	}
	return idx
}

// LoadFactsheetIndex reads a YAML index file of the form
//
//	factsheets:
//	  - name: iShares Core MSCI World UCITS ETF
//	    isin: IE00B4L5Y983
//	    asset_class: Equity
func LoadFactsheetIndex(path string) (*FactsheetIndex, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read factsheet index: %w", err)
	}
	var f factsheetFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse factsheet index %s: %w", path, err)
	}
	return NewFactsheetIndex(f.Factsheets), nil
}

func (x *FactsheetIndex) Source() models.Source { return models.SourceLocalFactsheet }

// Len returns the number of distinct ISINs indexed.
func (x *FactsheetIndex) Len() int { return len(x.byISIN) }

// Lookup matches by ISIN first, then by exact normalized name or alias.
func (x *FactsheetIndex) Lookup(_ context.Context, q models.InstrumentQuery) (*models.SourceObservation, error) {
	if isin := models.NormalizeISIN(q.ISIN); isin != "" {
		if e, ok := x.byISIN[isin]; ok {
			return x.observe(e, factsheetISINConfidence), nil
		}
	}
	if key := util.NormalizeName(q.Name); key != "" {
		if e, ok := x.byName[key]; ok {
			return x.observe(e, factsheetNameConfidence), nil
		}
	}
	return nil, models.ErrNoMatch
}

func (x *FactsheetIndex) observe(e *FactsheetEntry, confidence float64) *models.SourceObservation {
	return &models.SourceObservation{
		Source:     models.SourceLocalFactsheet,
		Fields:     e.InstrumentRecord.Clone(),
		Confidence: confidence,
	}
}
