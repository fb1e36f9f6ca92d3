package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/util"
)

const (
	fileIndexISINConfidence = 0.85
	fileIndexMinSimilarity  = 0.6
	fileIndexNameBase       = 0.6
	fileIndexNameSpan       = 0.3
)

type fileEntry struct {
	file   string
	name   string
	isin   string
	tokens []string
}

// FileIndex matches queries against document file names such as
// "IE00B4L5Y983_iShares_Core_MSCI_World.pdf".
type FileIndex struct {
	entries []fileEntry
	byISIN  map[string]int
}

// NewFileIndex indexes file names. Names without usable words are skipped.
func NewFileIndex(files []string) *FileIndex {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	idx := &FileIndex{byISIN: map[string]int{}}
	for _, f := range sorted {
		e, ok := parseFileName(f)
		if !ok {
			continue
		}
		if e.isin != "" {
			if _, dup := idx.byISIN[e.isin]; !dup {
				idx.byISIN[e.isin] = len(idx.entries)
			}
		}
		idx.entries = append(idx.entries, e)
	}
	return idx
}

// ScanFileIndex indexes the regular files directly inside dir.
func ScanFileIndex(dir string) (*FileIndex, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan file index: %w", err)
	}
	files := make([]string, 0, len(des))
	for _, de := range des {
		if de.Type().IsRegular() {
			files = append(files, de.Name())
		}
	}
	return NewFileIndex(files), nil
}

func parseFileName(file string) (fileEntry, bool) {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})

	e := fileEntry{file: file}
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if e.isin == "" && models.ValidISIN(w) {
			e.isin = models.NormalizeISIN(w)
			continue
		}
		kept = append(kept, w)
	}
	e.name = strings.Join(kept, " ")
	e.tokens = util.Tokens(e.name)
	if len(e.tokens) == 0 && e.isin == "" {
		return fileEntry{}, false
	}
	return e, true
}

func (x *FileIndex) Source() models.Source { return models.SourceLocalIndex }

// Len returns the number of indexed files.
func (x *FileIndex) Len() int { return len(x.entries) }

// Lookup matches by ISIN in the file name, then by token overlap with the
// query name.
func (x *FileIndex) Lookup(_ context.Context, q models.InstrumentQuery) (*models.SourceObservation, error) {
	if isin := models.NormalizeISIN(q.ISIN); isin != "" {
		if i, ok := x.byISIN[isin]; ok {
			return x.observe(x.entries[i], fileIndexISINConfidence), nil
		}
	}

	qt := util.Tokens(q.Name)
	if len(qt) == 0 {
		return nil, models.ErrNoMatch
	}
	best, bestScore := -1, 0.0
	for i, e := range x.entries {
		if s := util.Jaccard(qt, e.tokens); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < fileIndexMinSimilarity {
		return nil, models.ErrNoMatch
	}
	return x.observe(x.entries[best], fileIndexNameBase+fileIndexNameSpan*bestScore), nil
}

func (x *FileIndex) observe(e fileEntry, confidence float64) *models.SourceObservation {
	rec := models.InstrumentRecord{
		Name: models.Str(e.name),
		ISIN: models.Str(e.isin),
	}
	inferFromName(e.name, &rec)
	inferFromISIN(e.isin, &rec)
	return &models.SourceObservation{
		Source:     models.SourceLocalIndex,
		Fields:     rec,
		Confidence: confidence,
	}
}
