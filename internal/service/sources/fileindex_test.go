package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/internal/domain/models"
)

var indexFiles = []string{
	"IE00B4L5Y983_iShares_Core_MSCI_World_UCITS_ETF.pdf",
	"Vanguard_FTSE_All-World.pdf",
	"notes.txt",
}

func TestFileIndexLookupByISIN(t *testing.T) {
	idx := NewFileIndex(indexFiles)
	assert.Equal(t, 3, idx.Len())

	o, err := idx.Lookup(context.Background(), models.InstrumentQuery{ISIN: "ie00b4l5y983"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceLocalIndex, o.Source)
	assert.Equal(t, 0.85, o.Confidence)
	assert.Equal(t, "iShares Core MSCI World UCITS ETF", o.Fields.Value(models.FieldName))
	assert.Equal(t, "IE00B4L5Y983", o.Fields.Value(models.FieldISIN))
	assert.Equal(t, "ETF", o.Fields.Value(models.FieldAssetClass))
	assert.Equal(t, "EUR", o.Fields.Value(models.FieldCurrency))
	assert.False(t, o.Fields.Has(models.FieldGeography))
}

func TestFileIndexLookupByName(t *testing.T) {
	idx := NewFileIndex(indexFiles)
	ctx := context.Background()

	o, err := idx.Lookup(ctx, models.InstrumentQuery{Name: "Vanguard FTSE All World"})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, o.Confidence, 1e-9)
	assert.Equal(t, "Vanguard FTSE All World", o.Fields.Value(models.FieldName))

	// {ishares, core, msci, world, ucits} against six file tokens
	o, err = idx.Lookup(ctx, models.InstrumentQuery{Name: "iShares Core MSCI World UCITS"})
	require.NoError(t, err)
	assert.InDelta(t, 0.6+0.3*5.0/6.0, o.Confidence, 1e-9)

	_, err = idx.Lookup(ctx, models.InstrumentQuery{Name: "MSCI World"})
	assert.ErrorIs(t, err, models.ErrNoMatch)
}

func TestScanFileIndex(t *testing.T) {
	dir := t.TempDir()
	for _, f := range indexFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o700))

	idx, err := ScanFileIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	_, err = ScanFileIndex(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
