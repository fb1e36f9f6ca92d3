package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"FinResolve/internal/domain/models"
	domrepo "FinResolve/internal/domain/repository"
	"FinResolve/internal/service/cache"
	"FinResolve/internal/usecase"
	xhttp "FinResolve/pkg/http"
	xlogger "FinResolve/pkg/logger"
)

func init() {
	xhttp.RegisterValidation("isin", models.ValidISIN)
}

// Resolver is the resolution surface the handlers need.
type Resolver interface {
	Defaults() models.ResolveOptions
	ResolveOne(ctx context.Context, q models.InstrumentQuery, opts models.ResolveOptions) (*models.ResolvedInstrument, error)
	ResolveBulk(ctx context.Context, queries []models.InstrumentQuery, opts models.ResolveOptions, progress usecase.ProgressFunc) (*models.BulkResult, error)
}

// PortfolioAnalyzer analyzes portfolios.
type PortfolioAnalyzer interface {
	Analyze(ctx context.Context, p models.Portfolio, opts models.ResolveOptions) (*models.PortfolioAnalysis, error)
}

// CacheReporter exposes cache statistics.
type CacheReporter interface {
	Snapshot() cache.Snapshot
	Report() string
}

// History reads past resolutions of an ISIN.
type History interface {
	Recent(ctx context.Context, isin string, since time.Time, limit int) ([]domrepo.StoredResolution, error)
}

// ResolveEchoHandler serves instrument resolution, portfolio analysis and
// cache reporting.
type ResolveEchoHandler struct {
	logger     *xlogger.Logger
	resolver   Resolver
	portfolios PortfolioAnalyzer
	caches     CacheReporter
	history    History
	stream     streamConfig
}

// NewResolveEchoHandler wires the handler. history may be nil when no audit
// store is configured.
func NewResolveEchoHandler(logger *xlogger.Logger, resolver Resolver, portfolios PortfolioAnalyzer, caches CacheReporter, history History) *ResolveEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ResolveEchoHandler{
		logger:     logger,
		resolver:   resolver,
		portfolios: portfolios,
		caches:     caches,
		history:    history,
		stream:     defaultStreamConfig(),
	}
}

func (h *ResolveEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/instruments/resolve", h.Resolve)
	g.POST("/instruments/resolve/bulk", h.ResolveBulk)
	g.GET("/instruments/resolve/stream", h.Stream)
	g.GET("/instruments/:isin/history", h.History)
	g.POST("/portfolios/analyze", h.AnalyzePortfolio)
	g.GET("/cache/stats", h.CacheStats)
	g.GET("/cache/report", h.CacheReport)
}

func (h *ResolveEchoHandler) Resolve(c echo.Context) error {
	req := &models.ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.resolver.ResolveOne(c.Request().Context(), req.Query(), req.Options.ApplyTo(h.resolver.Defaults()))
	if err != nil {
		h.logger.Warn("resolve failed",
			xlogger.String("name", req.Name),
			xlogger.String("isin", req.ISIN),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ResolveEchoHandler) ResolveBulk(c echo.Context) error {
	req := &models.BulkResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.resolver.ResolveBulk(c.Request().Context(), bulkQueries(req), req.Options.ApplyTo(h.resolver.Defaults()), nil)
	if err != nil {
		h.logger.Error("bulk resolve failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ResolveEchoHandler) AnalyzePortfolio(c echo.Context) error {
	req := &models.AnalyzePortfolioRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.portfolios.Analyze(c.Request().Context(), req.Portfolio, req.Options.ApplyTo(h.resolver.Defaults()))
	if err != nil {
		h.logger.Error("portfolio analysis failed",
			xlogger.String("portfolio", req.Portfolio.ID),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ResolveEchoHandler) History(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("resolution history is not configured"))
	}
	isin := models.NormalizeISIN(c.Param("isin"))
	if !models.ValidISIN(isin) {
		return xhttp.AppErrorResponse(c, xhttp.FieldError("isin", "isin", "isin must be a valid ISIN"))
	}

	since := xhttp.QueryTime(c, "since", time.Now().Add(-xhttp.QueryDuration(c, "window", 30*24*time.Hour)))
	limit := min(max(xhttp.QueryInt(c, "limit", 50), 1), 500)

	rows, err := h.history.Recent(c.Request().Context(), isin, since, limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.String("isin", isin), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history query failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ResolveEchoHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.caches.Snapshot())
}

func (h *ResolveEchoHandler) CacheReport(c echo.Context) error {
	return xhttp.MarkdownResponse(c, h.caches.Report())
}

func bulkQueries(req *models.BulkResolveRequest) []models.InstrumentQuery {
	out := make([]models.InstrumentQuery, len(req.Instruments))
	for i, it := range req.Instruments {
		out[i] = it.Query()
	}
	return out
}

// toAppError maps resolution errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidQuery):
		return xhttp.BadRequestError(strings.TrimPrefix(err.Error(), models.ErrInvalidQuery.Error()+": ")).WithError(err)
	case errors.Is(err, models.ErrNoMatch), errors.Is(err, models.ErrAllSourcesExhausted):
		return xhttp.NotFoundError("instrument could not be resolved").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError("resolution timed out").WithError(err)
	default:
		return xhttp.InternalError("resolution failed").WithError(err)
	}
}
