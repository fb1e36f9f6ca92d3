package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinResolve/internal/domain/models"
	dservice "FinResolve/internal/domain/service"
	"FinResolve/pkg/cache"
	"FinResolve/pkg/logger"
	"FinResolve/pkg/retry"
	"FinResolve/pkg/util"
)

const (
	StrategyOracle        = "oracle"
	StrategyFactsheet     = "factsheet"
	StrategyRecord        = "record"
	StrategyRecordDerived = "record_derived"

	recordDerivedConfidence = 0.5
	oracleBreakdownConf     = 0.75
	breakdownMaxTokens      = 1024
	unknownBucket           = "Unknown"

	recordKey = "record"
	nameKey   = "name"
)

const breakdownPrompt = `Break down the holdings of the fund below by asset class, region, sector and currency.
Reply with one JSON object only, weights as fractions:
{"asset_class":{"Equity":0.9},"region":{"North America":0.7},"sector":{"Technology":0.25},"currency":{"USD":0.7}}
Fund: %s
ISIN: %s`

type breakdownReply struct {
	AssetClass map[string]float64 `json:"asset_class"`
	Region     map[string]float64 `json:"region"`
	Sector     map[string]float64 `json:"sector"`
	Currency   map[string]float64 `json:"currency"`
}

// FundAnalyzer decomposes resolved instruments into look-through weights.
type FundAnalyzer struct {
	oracle dservice.TextOracle
	funds  *cache.Cache[models.FundBreakdown]
	now    func() time.Time
	log    *logger.Logger
}

// NewFundAnalyzer builds an analyzer over the fund cache. A nil cache gets a
// default one whose executor recovers with RecordDerived. oracle may be nil,
// in which case funds are decomposed from their records.
func NewFundAnalyzer(oracle dservice.TextOracle, funds *cache.Cache[models.FundBreakdown], log *logger.Logger) *FundAnalyzer {
	if log == nil {
		log = logger.Nop()
	}
	if funds == nil {
		funds = cache.New[models.FundBreakdown]("fund",
			cache.WithMaxEntries(1000),
			cache.WithDefaultTTL(12*time.Hour),
			cache.WithExecutor(retry.NewExecutor(retry.WithRecoverer(retry.Chain{retry.Stale{}, RecordDerived()}))),
		)
	}
	return &FundAnalyzer{oracle: oracle, funds: funds, now: time.Now, log: log}
}

// Decompose returns the breakdown of res, computing it through the fund
// cache on a miss.
func (a *FundAnalyzer) Decompose(ctx context.Context, res models.ResolvedInstrument) (models.FundBreakdown, error) {
	rec := res.Record
	name := rec.Value(models.FieldName)
	if name == "" {
		name = res.Query.Name
	}
	recovery := map[string]any{recordKey: rec, nameKey: name}

	return a.funds.GetOrComputeWithContext(ctx, fundKey(rec, name), 0, recovery, func(ctx context.Context) (models.FundBreakdown, error) {
		if fd := rec.FactsheetData; fd != nil && len(fd.Allocations) > 0 {
			if b, ok := fromAllocations(fd.Allocations); ok {
				return a.finish(b, rec, name, StrategyFactsheet, res.Confidence), nil
			}
		}
		if !isFund(rec) {
			return a.finish(deriveFromRecord(rec), rec, name, StrategyRecord, res.Confidence), nil
		}
		if a.oracle == nil {
			return models.FundBreakdown{}, retry.Permanent(fmt.Errorf("decompose %q: %w: no text oracle", name, models.ErrSourceUnavailable))
		}
		b, err := a.askOracle(ctx, rec, name)
		if err != nil {
			a.log.Warn("fund decomposition failed",
				logger.String("name", name),
				logger.Error(err),
			)
			return models.FundBreakdown{}, err
		}
		return a.finish(b, rec, name, StrategyOracle, oracleBreakdownConf), nil
	})
}

func (a *FundAnalyzer) askOracle(ctx context.Context, rec models.InstrumentRecord, name string) (models.FundBreakdown, error) {
	text, err := a.oracle.Generate(ctx, fmt.Sprintf(breakdownPrompt, name, rec.Value(models.FieldISIN)), breakdownMaxTokens)
	if err != nil {
		return models.FundBreakdown{}, fmt.Errorf("decompose %q: %w: %w", name, models.ErrSourceUnavailable, err)
	}
	raw, err := util.ExtractJSONObject(text)
	if err != nil {
		return models.FundBreakdown{}, fmt.Errorf("decompose %q: %w: %w", name, models.ErrMalformedOutput, err)
	}
	var reply breakdownReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return models.FundBreakdown{}, fmt.Errorf("decompose %q: %w: %w", name, models.ErrMalformedOutput, err)
	}

	b := models.FundBreakdown{
		AssetClass: normalizeWeights(reply.AssetClass),
		Region:     normalizeWeights(reply.Region),
		Sector:     normalizeWeights(reply.Sector),
		Currency:   normalizeWeights(reply.Currency),
	}
	if b.AssetClass == nil && b.Region == nil && b.Sector == nil && b.Currency == nil {
		return models.FundBreakdown{}, fmt.Errorf("decompose %q: %w: no weights", name, models.ErrMalformedOutput)
	}
	fillUnknown(&b, rec)
	return b, nil
}

func (a *FundAnalyzer) finish(b models.FundBreakdown, rec models.InstrumentRecord, name, strategy string, confidence float64) models.FundBreakdown {
	b.ISIN = rec.Value(models.FieldISIN)
	b.Name = name
	b.Strategy = strategy
	b.Confidence = clamp01(confidence)
	b.GeneratedAt = a.now()
	return b
}

// RecordDerived recovers a failed decomposition with a single-bucket
// breakdown built from the resolved record in the operation context. It
// only answers on the final attempt so transient oracle errors are retried.
func RecordDerived() retry.Recoverer {
	return retry.RecovererFunc(func(ctx context.Context, _ error, _ int, _ string, opCtx map[string]any) retry.Recovery {
		if !retry.IsFinalAttempt(ctx) {
			return retry.Recovery{Strategy: StrategyRecordDerived}
		}
		rec, ok := opCtx[recordKey].(models.InstrumentRecord)
		if !ok {
			return retry.Recovery{Strategy: StrategyRecordDerived}
		}
		name, _ := opCtx[nameKey].(string)
		b := deriveFromRecord(rec)
		b.ISIN = rec.Value(models.FieldISIN)
		b.Name = name
		b.Strategy = StrategyRecordDerived
		b.Confidence = recordDerivedConfidence
		b.GeneratedAt = time.Now()
		return retry.Recovery{
			Success:       true,
			Data:          b,
			Strategy:      StrategyRecordDerived,
			Confidence:    recordDerivedConfidence,
			Documentation: "look-through unavailable, weights taken from the instrument record",
		}
	})
}

func fundKey(rec models.InstrumentRecord, name string) string {
	if isin := rec.Value(models.FieldISIN); isin != "" {
		return isin
	}
	return "name:" + util.NormalizeName(name)
}

func isFund(rec models.InstrumentRecord) bool {
	for _, v := range []string{rec.Value(models.FieldType), rec.Value(models.FieldAssetClass)} {
		switch strings.ToLower(v) {
		case "etf", "fund", "etc", "mixed", "mutual fund":
			return true
		}
	}
	return false
}

func deriveFromRecord(rec models.InstrumentRecord) models.FundBreakdown {
	return models.FundBreakdown{
		AssetClass: single(rec.Value(models.FieldAssetClass)),
		Region:     single(rec.Value(models.FieldGeography)),
		Sector:     single(rec.Value(models.FieldSector)),
		Currency:   single(rec.Value(models.FieldCurrency)),
	}
}

// fromAllocations reads "dimension:bucket" keys, e.g. "region:Europe".
func fromAllocations(alloc map[string]float64) (models.FundBreakdown, bool) {
	dims := map[string]map[string]float64{}
	for k, w := range alloc {
		dim, bucket, ok := strings.Cut(k, ":")
		if !ok || bucket == "" {
			continue
		}
		if dims[dim] == nil {
			dims[dim] = map[string]float64{}
		}
		dims[dim][bucket] += w
	}
	b := models.FundBreakdown{
		AssetClass: normalizeWeights(dims["asset_class"]),
		Region:     normalizeWeights(dims["region"]),
		Sector:     normalizeWeights(dims["sector"]),
		Currency:   normalizeWeights(dims["currency"]),
	}
	if b.AssetClass == nil && b.Region == nil && b.Sector == nil && b.Currency == nil {
		return b, false
	}
	return b, true
}

func fillUnknown(b *models.FundBreakdown, rec models.InstrumentRecord) {
	d := deriveFromRecord(rec)
	if b.AssetClass == nil {
		b.AssetClass = d.AssetClass
	}
	if b.Region == nil {
		b.Region = d.Region
	}
	if b.Sector == nil {
		b.Sector = d.Sector
	}
	if b.Currency == nil {
		b.Currency = d.Currency
	}
}

func single(bucket string) map[string]float64 {
	if strings.TrimSpace(bucket) == "" {
		bucket = unknownBucket
	}
	return map[string]float64{bucket: 1}
}

// normalizeWeights drops non-positive weights and scales the rest to sum 1.
// It returns nil when nothing is left.
func normalizeWeights(in map[string]float64) map[string]float64 {
	var sum float64
	for k, w := range in {
		if w > 0 && strings.TrimSpace(k) != "" {
			sum += w
		}
	}
	if sum <= 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, w := range in {
		if w > 0 && strings.TrimSpace(k) != "" {
			out[strings.TrimSpace(k)] += w / sum
		}
	}
	return out
}
