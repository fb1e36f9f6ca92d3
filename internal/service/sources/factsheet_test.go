package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/internal/domain/models"
)

const factsheetYAML = `factsheets:
  - name: iShares Core MSCI World UCITS ETF
    isin: ie00b4l5y983
    type: ETF
    asset_class: Equity
    currency: USD
    aliases: ["MSCI World ETF", "EUNL"]
    factsheet_data:
      as_of: 2024-03-31
      data_quality: 0.9
      ter: 0.2
  - name: Siemens AG
    isin: DE0007236101
    type: Stock
    sector: Industrials
`

func writeIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "factsheets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(factsheetYAML), 0o600))
	return path
}

func TestFactsheetIndexLookupByISIN(t *testing.T) {
	idx, err := LoadFactsheetIndex(writeIndex(t))
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	o, err := idx.Lookup(context.Background(), models.InstrumentQuery{Name: "whatever", ISIN: "IE00B4L5Y983"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceLocalFactsheet, o.Source)
	assert.Equal(t, 0.95, o.Confidence)
	assert.Equal(t, "IE00B4L5Y983", o.Fields.Value(models.FieldISIN))
	assert.Equal(t, "Equity", o.Fields.Value(models.FieldAssetClass))
	require.NotNil(t, o.Fields.FactsheetData)
	require.NotNil(t, o.Fields.FactsheetData.AsOf)
	assert.True(t, o.Fields.FactsheetData.AsOf.Equal(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 0.9, *o.Fields.FactsheetData.DataQuality, 1e-9)
}

func TestFactsheetIndexLookupByNameAndAlias(t *testing.T) {
	idx, err := LoadFactsheetIndex(writeIndex(t))
	require.NoError(t, err)
	ctx := context.Background()

	o, err := idx.Lookup(ctx, models.InstrumentQuery{Name: "  siemens ag "})
	require.NoError(t, err)
	assert.Equal(t, 0.85, o.Confidence)
	assert.Equal(t, "Industrials", o.Fields.Value(models.FieldSector))

	o, err = idx.Lookup(ctx, models.InstrumentQuery{Name: "msci world etf"})
	require.NoError(t, err)
	assert.Equal(t, "iShares Core MSCI World UCITS ETF", o.Fields.Value(models.FieldName))

	_, err = idx.Lookup(ctx, models.InstrumentQuery{Name: "Unknown Fund"})
	assert.ErrorIs(t, err, models.ErrNoMatch)
}

func TestFactsheetIndexReturnsCopies(t *testing.T) {
	idx := NewFactsheetIndex([]FactsheetEntry{{InstrumentRecord: models.InstrumentRecord{Name: models.Str("Siemens AG")}}})
	o, err := idx.Lookup(context.Background(), models.InstrumentQuery{Name: "Siemens AG"})
	require.NoError(t, err)
	o.Fields.Name = models.Str("changed")

	again, err := idx.Lookup(context.Background(), models.InstrumentQuery{Name: "Siemens AG"})
	require.NoError(t, err)
	assert.Equal(t, "Siemens AG", again.Fields.Value(models.FieldName))
}

func TestLoadFactsheetIndexErrors(t *testing.T) {
	_, err := LoadFactsheetIndex(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("factsheets: [: bad"), 0o600))
	_, err = LoadFactsheetIndex(path)
	assert.Error(t, err)
}
