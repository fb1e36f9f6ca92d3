package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"FinResolve/internal/domain/models"
	"FinResolve/pkg/cache"
	"FinResolve/pkg/logger"
)

const decomposeConcurrency = 4

// PortfolioAnalyzer resolves a portfolio's holdings and aggregates their
// look-through exposures weighted by holding value.
type PortfolioAnalyzer struct {
	resolver   *InstrumentResolver
	funds      *FundAnalyzer
	portfolios *cache.Cache[models.PortfolioAnalysis]
	now        func() time.Time
	log        *logger.Logger
}

// NewPortfolioAnalyzer wires the analyzer. A nil cache gets a default one.
func NewPortfolioAnalyzer(resolver *InstrumentResolver, funds *FundAnalyzer, portfolios *cache.Cache[models.PortfolioAnalysis], log *logger.Logger) *PortfolioAnalyzer {
	if log == nil {
		log = logger.Nop()
	}
	if portfolios == nil {
		portfolios = cache.New[models.PortfolioAnalysis]("portfolio",
			cache.WithMaxEntries(100),
			cache.WithDefaultTTL(6*time.Hour),
		)
	}
	return &PortfolioAnalyzer{
		resolver:   resolver,
		funds:      funds,
		portfolios: portfolios,
		now:        time.Now,
		log:        log,
	}
}

// Analyze returns the cached analysis for the same portfolio ID and
// holdings, or computes a new one.
func (a *PortfolioAnalyzer) Analyze(ctx context.Context, p models.Portfolio, opts models.ResolveOptions) (*models.PortfolioAnalysis, error) {
	if strings.TrimSpace(p.ID) == "" || len(p.Holdings) == 0 {
		return nil, fmt.Errorf("%w: portfolio id and holdings required", models.ErrInvalidQuery)
	}

	out, err := a.portfolios.GetOrCompute(ctx, PortfolioKey(p), 0, func(ctx context.Context) (models.PortfolioAnalysis, error) {
		return a.analyze(ctx, p, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("analyze portfolio %s: %w", p.ID, err)
	}
	return &out, nil
}

// PortfolioKey is the portfolio ID plus a hash of its holdings.
func PortfolioKey(p models.Portfolio) string {
	var b strings.Builder
	for _, h := range p.Holdings {
		b.WriteString(h.Query().Key())
		b.WriteByte('\n')
	}
	return p.ID + ":" + cache.HashKey(b.String())
}

func (a *PortfolioAnalyzer) analyze(ctx context.Context, p models.Portfolio, opts models.ResolveOptions) (models.PortfolioAnalysis, error) {
	bulk, err := a.resolver.ResolveBulk(ctx, p.Queries(), opts, nil)
	if err != nil {
		return models.PortfolioAnalysis{}, err
	}

	breakdowns := make([]models.FundBreakdown, len(bulk.Resolved))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(decomposeConcurrency)
	for i, res := range bulk.Resolved {
		g.Go(func() error {
			b, err := a.funds.Decompose(gctx, res)
			if err != nil {
				a.log.Warn("decomposition unavailable, using record",
					logger.String("portfolio", p.ID),
					logger.String("name", res.Query.Name),
					logger.Error(err),
				)
				b = deriveFromRecord(res.Record)
				b.Strategy = StrategyRecordDerived
			}
			breakdowns[i] = b
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return models.PortfolioAnalysis{}, err
	}

	values := make([]decimal.Decimal, len(bulk.Resolved))
	total := decimal.Zero
	for i, res := range bulk.Resolved {
		values[i] = res.Query.Value
		total = total.Add(res.Query.Value)
	}
	if !total.IsPositive() && len(values) > 0 {
		// no values given; weight holdings equally
		for i := range values {
			values[i] = decimal.NewFromInt(1)
		}
		total = decimal.NewFromInt(int64(len(values)))
	}

	analysis := models.PortfolioAnalysis{
		PortfolioID: p.ID,
		TotalValue:  total,
		AssetClass:  aggregate(breakdowns, values, total, func(b models.FundBreakdown) map[string]float64 { return b.AssetClass }),
		Region:      aggregate(breakdowns, values, total, func(b models.FundBreakdown) map[string]float64 { return b.Region }),
		Sector:      aggregate(breakdowns, values, total, func(b models.FundBreakdown) map[string]float64 { return b.Sector }),
		Currency:    aggregate(breakdowns, values, total, func(b models.FundBreakdown) map[string]float64 { return b.Currency }),
		Instruments: bulk.Resolved,
		Unresolved:  bulk.Unresolved,
		Summary:     bulk.Summary,
		GeneratedAt: a.now(),
	}

	a.log.Info("portfolio analyzed",
		logger.String("portfolio", p.ID),
		logger.Int("holdings", len(p.Holdings)),
		logger.Int("resolved", len(bulk.Resolved)),
		logger.String("total_value", total.String()),
	)
	return analysis, nil
}

// aggregate sums value×weight per bucket and orders buckets by weight,
// then name.
func aggregate(bs []models.FundBreakdown, values []decimal.Decimal, total decimal.Decimal, dim func(models.FundBreakdown) map[string]float64) []models.Exposure {
	sums := map[string]decimal.Decimal{}
	for i, b := range bs {
		weights := dim(b)
		if len(weights) == 0 {
			weights = map[string]float64{unknownBucket: 1}
		}
		for bucket, w := range weights {
			sums[bucket] = sums[bucket].Add(values[i].Mul(decimal.NewFromFloat(w)))
		}
	}

	out := make([]models.Exposure, 0, len(sums))
	for bucket, v := range sums {
		w := 0.0
		if total.IsPositive() {
			w = v.Div(total).InexactFloat64()
		}
		out = append(out, models.Exposure{Bucket: bucket, Weight: w, Value: v.Round(2)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Bucket < out[j].Bucket
	})
	return out
}
