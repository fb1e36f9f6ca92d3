package sources

import (
	"slices"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/util"
)

// keyword tables for name-based inference. Order matters: the first
// matching row wins.
var assetClassKeywords = []struct {
	tokens     []string
	assetClass string
	kind       string
}{
	{[]string{"etf", "ucits", "etc", "etn"}, "ETF", "ETF"},
	{[]string{"bond", "anleihe", "treasury", "bund", "gilt", "rente", "renten"}, "Fixed Income", "Bond"},
	{[]string{"reit", "immobilien", "property", "realty"}, "Real Estate", "Fund"},
	{[]string{"gold", "silver", "commodity", "rohstoff", "rohstoffe"}, "Commodity", "ETC"},
	{[]string{"fund", "fonds", "sicav", "oeic"}, "Mixed", "Fund"},
	{[]string{"ag", "inc", "plc", "corp", "se", "sa", "nv", "ltd"}, "Equity", "Stock"},
}

var isinCurrency = map[string]string{
	"DE": "EUR", "FR": "EUR", "NL": "EUR", "AT": "EUR", "IT": "EUR", "ES": "EUR",
	"BE": "EUR", "FI": "EUR", "IE": "EUR", "LU": "EUR",
	"US": "USD", "GB": "GBP", "CH": "CHF", "JP": "JPY", "CA": "CAD",
}

var isinGeography = map[string]string{
	"US": "North America", "CA": "North America",
	"DE": "Europe", "FR": "Europe", "NL": "Europe", "AT": "Europe", "IT": "Europe",
	"ES": "Europe", "BE": "Europe", "FI": "Europe", "GB": "Europe", "CH": "Europe",
	"JP": "Asia Pacific",
}

// inferFromName fills type and asset class from words in name. It reports
// whether an asset class was found.
func inferFromName(name string, rec *models.InstrumentRecord) bool {
	tokens := util.Tokens(name)
	for _, row := range assetClassKeywords {
		for _, kw := range row.tokens {
			if slices.Contains(tokens, kw) {
				if !rec.Has(models.FieldAssetClass) {
					rec.AssetClass = models.Str(row.assetClass)
				}
				if !rec.Has(models.FieldType) {
					rec.Type = models.Str(row.kind)
				}
				return true
			}
		}
	}
	return false
}

// inferFromISIN fills geography and currency from the ISIN country prefix.
// Funds domiciled in IE or LU say nothing about where they invest, so only
// issuers get a geography.
func inferFromISIN(isin string, rec *models.InstrumentRecord) {
	country := models.ISINCountry(isin)
	if country == "" {
		return
	}
	if c, ok := isinCurrency[country]; ok && !rec.Has(models.FieldCurrency) {
		rec.Currency = models.Str(c)
	}
	if country == "IE" || country == "LU" {
		return
	}
	if g, ok := isinGeography[country]; ok && !rec.Has(models.FieldGeography) {
		rec.Geography = models.Str(g)
	}
}
