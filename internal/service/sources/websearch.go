package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/service/ratelimit"
	xhttp "FinResolve/pkg/http"
	"FinResolve/pkg/util"
)

const webSearchWeight = 0.75

// WebSearchOption configures WebSearch.
type WebSearchOption func(*WebSearchConfig)

// WebSearchConfig holds the search endpoint and its rate budget.
type WebSearchConfig struct {
	URL          string
	APIKey       string
	RateCapacity float64
	RatePerSec   float64
}

// WithSearchURL sets the search endpoint.
func WithSearchURL(u string) WebSearchOption {
	return func(c *WebSearchConfig) { c.URL = u }
}

// WithSearchAPIKey sets the key sent as X-API-Key.
func WithSearchAPIKey(k string) WebSearchOption {
	return func(c *WebSearchConfig) { c.APIKey = k }
}

// WithSearchRate sets the token bucket capacity and refill per second.
func WithSearchRate(capacity, perSec float64) WebSearchOption {
	return func(c *WebSearchConfig) {
		c.RateCapacity = capacity
		c.RatePerSec = perSec
	}
}

type searchResult struct {
	Title     string  `json:"title"`
	ISIN      string  `json:"isin"`
	Snippet   string  `json:"snippet"`
	Currency  string  `json:"currency"`
	Published string  `json:"published"`
	Score     float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// WebSearch queries a JSON search endpoint for instrument pages.
type WebSearch struct {
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	cfg     WebSearchConfig
}

// NewWebSearch builds the adapter. A nil client or limiter gets a default.
func NewWebSearch(client *xhttp.Client, limiter *ratelimit.Limiter, opts ...WebSearchOption) *WebSearch {
	cfg := WebSearchConfig{
		RateCapacity: 5,
		RatePerSec:   1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(5 * time.Second))
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &WebSearch{client: client, limiter: limiter, cfg: cfg}
}

func (w *WebSearch) Source() models.Source { return models.SourceWebSearch }

// Lookup searches by ISIN when present, else by name, and keeps the best
// scored result. Results naming a different ISIN than the query are ignored.
func (w *WebSearch) Lookup(ctx context.Context, q models.InstrumentQuery) (*models.SourceObservation, error) {
	if w.cfg.URL == "" {
		return nil, fmt.Errorf("web search: %w: no endpoint configured", models.ErrSourceUnavailable)
	}
	if !w.limiter.Allow(string(models.SourceWebSearch), w.cfg.RateCapacity, w.cfg.RatePerSec) {
		return nil, fmt.Errorf("web search: %w: rate limited", models.ErrSourceUnavailable)
	}

	isin := models.NormalizeISIN(q.ISIN)
	term := q.Name
	if isin != "" {
		term = isin
	}

	headers := map[string]string{"Accept": "application/json"}
	if w.cfg.APIKey != "" {
		headers["X-API-Key"] = w.cfg.APIKey
	}

	var resp searchResponse
	err := w.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         w.cfg.URL,
		Headers:     headers,
		QueryParams: map[string][]string{"q": {term}},
	}, &resp)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, models.ErrNoMatch
		}
		return nil, fmt.Errorf("web search: %w: %w", models.ErrSourceUnavailable, err)
	}

	var best *searchResult
	for i := range resp.Results {
		r := &resp.Results[i]
		if r.Title == "" || r.Score <= 0 {
			continue
		}
		if isin != "" && r.ISIN != "" && models.NormalizeISIN(r.ISIN) != isin {
			continue
		}
		if best == nil || r.Score > best.Score {
			best = r
		}
	}
	if best == nil {
		return nil, models.ErrNoMatch
	}

	rec := models.InstrumentRecord{
		Name:     models.Str(best.Title),
		Currency: models.Str(best.Currency),
	}
	if models.ValidISIN(best.ISIN) {
		rec.ISIN = models.Str(models.NormalizeISIN(best.ISIN))
	}
	inferFromName(best.Title+" "+best.Snippet, &rec)
	inferFromISIN(rec.Value(models.FieldISIN), &rec)
	if t, ok := util.ParseTime(best.Published); ok {
		rec.FactsheetData = &models.FactsheetData{AsOf: &t}
	}

	return &models.SourceObservation{
		Source:     models.SourceWebSearch,
		Fields:     rec,
		Confidence: webSearchWeight * min(1, best.Score),
	}, nil
}
