package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/internal/domain/models"
)

func TestFallbackInference(t *testing.T) {
	cases := []struct {
		name       string
		q          models.InstrumentQuery
		confidence float64
		assetClass string
		currency   string
		geography  string
	}{
		{"isin and class", models.InstrumentQuery{Name: "iShares Core MSCI World UCITS ETF", ISIN: "IE00B4L5Y983"}, 0.6, "ETF", "EUR", ""},
		{"issuer isin", models.InstrumentQuery{Name: "Siemens AG", ISIN: "DE0007236101"}, 0.6, "Equity", "EUR", "Europe"},
		{"invalid isin", models.InstrumentQuery{Name: "Bundesanleihe 2030", ISIN: "IE00B4L5Y984"}, 0.3, "", "", ""},
		{"bond keyword", models.InstrumentQuery{Name: "US Treasury Bond 2034"}, 0.4, "Fixed Income", "", ""},
		{"nothing", models.InstrumentQuery{Name: "Mystery Holding"}, 0.3, "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := NewFallback().Lookup(context.Background(), tc.q)
			require.NoError(t, err)
			assert.Equal(t, models.SourceFallback, o.Source)
			assert.InDelta(t, tc.confidence, o.Confidence, 1e-9)
			assert.Equal(t, tc.assetClass, o.Fields.Value(models.FieldAssetClass))
			assert.Equal(t, tc.currency, o.Fields.Value(models.FieldCurrency))
			assert.Equal(t, tc.geography, o.Fields.Value(models.FieldGeography))
			assert.Equal(t, tc.q.Name, o.Fields.Value(models.FieldName))
		})
	}
}

func TestFallbackEmptyQuery(t *testing.T) {
	_, err := NewFallback().Lookup(context.Background(), models.InstrumentQuery{})
	assert.ErrorIs(t, err, models.ErrNoMatch)
}
