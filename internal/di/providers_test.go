package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/config"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/metrics"
)

const factsheets = `factsheets:
  - name: iShares Core MSCI World UCITS ETF
    isin: IE00B4L5Y983
    type: ETF
    asset_class: Equity
    currency: USD
    geography: Global
    sector: Diversified
    aliases: [MSCI World]
`

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "factsheets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(factsheets), 0o644))

	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "US0378331005_Apple_Inc_Annual_Report.pdf"), nil, 0o644))

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Sources.FactsheetIndex = path
	cfg.Sources.FileIndexDir = docs
	cfg.Log.Level = "error"
	return cfg
}

func TestResolveDefaults(t *testing.T) {
	o := ResolveDefaults(config.ResolverConfig{
		MinConfidence:        0.6,
		MaxAttempts:          2,
		SourcePriority:       []string{"local_index", "fallback", "bogus"},
		AllowPartial:         false,
		PerInstrumentTimeout: time.Second,
	})
	assert.Equal(t, 0.6, o.MinConfidence)
	assert.Equal(t, 2, o.MaxAttempts)
	assert.Equal(t, []models.Source{models.SourceLocalIndex, models.SourceFallback}, o.SourcePriority)
	assert.False(t, o.AllowPartial)
	assert.Equal(t, time.Second, o.PerInstrumentTimeout)
}

func TestProvideSourceAdaptersLocalOnly(t *testing.T) {
	cfg := localConfig(t)
	adapters, err := ProvideSourceAdapters(cfg, nil, logger.Nop())
	require.NoError(t, err)

	var got []models.Source
	for _, a := range adapters {
		got = append(got, a.Source())
	}
	assert.Equal(t, []models.Source{models.SourceLocalFactsheet, models.SourceLocalIndex, models.SourceFallback}, got)

	cfg.Sources.FactsheetIndex = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = ProvideSourceAdapters(cfg, nil, logger.Nop())
	assert.Error(t, err)
}

func TestProvidedResolverAndAnalyzers(t *testing.T) {
	cfg := localConfig(t)
	log := logger.Nop()
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())

	caches := ProvideCacheManager(cfg, log, rec, nil)
	adapters, err := ProvideSourceAdapters(cfg, nil, log)
	require.NoError(t, err)
	resolver := ProvideResolver(cfg, adapters, caches, ProvideResolutionSinks(cfg, nil, nil), rec, log)
	portfolios := ProvidePortfolioAnalyzer(resolver, ProvideFundAnalyzer(nil, caches, log), caches, log)

	ctx := context.Background()
	res, err := resolver.ResolveOne(ctx, models.InstrumentQuery{Name: "MSCI World"}, resolver.Defaults())
	require.NoError(t, err)
	assert.Equal(t, models.SourceLocalFactsheet, res.ResolvedBy.PrimarySource)
	assert.Equal(t, "IE00B4L5Y983", res.Record.Value(models.FieldISIN))
	assert.Equal(t, 1, caches.Resolution.Len())

	analysis, err := portfolios.Analyze(ctx, models.Portfolio{
		ID:       "p1",
		Holdings: []models.Holding{{Name: "MSCI World", Value: decimal.NewFromInt(1000)}},
	}, resolver.Defaults())
	require.NoError(t, err)
	assert.Equal(t, "p1", analysis.PortfolioID)
	assert.Len(t, analysis.Instruments, 1)
}

func TestInitializeAppWithoutInfrastructure(t *testing.T) {
	cfg := localConfig(t)
	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}
