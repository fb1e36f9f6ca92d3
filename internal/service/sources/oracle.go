package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"FinResolve/internal/domain/models"
	dservice "FinResolve/internal/domain/service"
	"FinResolve/pkg/util"
)

const (
	oracleMaxConfidence     = 0.8
	oracleDefaultConfidence = 0.6
	oracleMaxTokens         = 512
)

const identifyPrompt = `Identify the financial instrument below. Reply with one JSON object only:
{"name":"","isin":"","type":"","sector":"","geography":"","currency":"","asset_class":"","confidence":0.0}
Leave unknown fields empty. If you do not recognize the instrument reply {}.
Name: %s
ISIN: %s`

type oracleReply struct {
	Name       string   `json:"name"`
	ISIN       string   `json:"isin"`
	Type       string   `json:"type"`
	Sector     string   `json:"sector"`
	Geography  string   `json:"geography"`
	Currency   string   `json:"currency"`
	AssetClass string   `json:"asset_class"`
	Confidence *float64 `json:"confidence"`
}

// TextOracleSource asks a text generator to identify the instrument.
type TextOracleSource struct {
	oracle    dservice.TextOracle
	maxTokens int
}

// NewTextOracleSource wraps oracle. maxTokens <= 0 uses a small default.
func NewTextOracleSource(oracle dservice.TextOracle, maxTokens int) *TextOracleSource {
	if maxTokens <= 0 {
		maxTokens = oracleMaxTokens
	}
	return &TextOracleSource{oracle: oracle, maxTokens: maxTokens}
}

func (s *TextOracleSource) Source() models.Source { return models.SourceTextOracle }

// Lookup parses the first JSON object of the reply. Self-reported confidence
// is capped; an ISIN failing its check digit is dropped.
func (s *TextOracleSource) Lookup(ctx context.Context, q models.InstrumentQuery) (*models.SourceObservation, error) {
	prompt := fmt.Sprintf(identifyPrompt, strings.TrimSpace(q.Name), models.NormalizeISIN(q.ISIN))
	text, err := s.oracle.Generate(ctx, prompt, s.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("text oracle: %w: %w", models.ErrSourceUnavailable, err)
	}

	raw, err := util.ExtractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("text oracle: %w: %w", models.ErrMalformedOutput, err)
	}
	var reply oracleReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("text oracle: %w: %w", models.ErrMalformedOutput, err)
	}

	rec := models.InstrumentRecord{
		Name:       models.Str(reply.Name),
		Type:       models.Str(reply.Type),
		Sector:     models.Str(reply.Sector),
		Geography:  models.Str(reply.Geography),
		Currency:   models.Str(reply.Currency),
		AssetClass: models.Str(reply.AssetClass),
	}
	if models.ValidISIN(reply.ISIN) {
		rec.ISIN = models.Str(models.NormalizeISIN(reply.ISIN))
	}
	if !rec.Has(models.FieldName) && !rec.Has(models.FieldISIN) {
		return nil, models.ErrNoMatch
	}

	conf := oracleDefaultConfidence
	if reply.Confidence != nil {
		conf = max(0, min(oracleMaxConfidence, *reply.Confidence))
	}
	return &models.SourceObservation{
		Source:     models.SourceTextOracle,
		Fields:     rec,
		Confidence: conf,
	}, nil
}
