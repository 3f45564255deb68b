package api

import (
	"net/http"
	"strings"
	"time"

	models "CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/metrics"
	"CoinPulse/internal/service/ratelimit"
	"CoinPulse/internal/usecase"
	xhttp "CoinPulse/pkg/http"
	xlogger "CoinPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves the price, chart and quality read endpoints. Every
// read goes through a usecase that is cache-first, so these handlers never
// surface a store failure as a 5xx; they return what the read path could
// assemble.
type MarketHandler struct {
	logger  *xlogger.Logger
	prices  *usecase.PricesUseCase
	charts  *usecase.ChartsUseCase
	reports *usecase.ReportsUseCase
	rl      *ratelimit.Limiter
}

func NewMarketHandler(
	logger *xlogger.Logger,
	prices *usecase.PricesUseCase,
	charts *usecase.ChartsUseCase,
	reports *usecase.ReportsUseCase,
) *MarketHandler {
	metrics.Register()
	return &MarketHandler{
		logger:  logger,
		prices:  prices,
		charts:  charts,
		reports: reports,
		rl:      ratelimit.New(),
	}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/prices/latest", h.LatestPrices)
	g.GET("/prices", h.SymbolPrices)
	g.GET("/chart/:symbol", h.Chart)
	g.GET("/quality", h.Quality)
}

type chartResponse struct {
	Symbol    string              `json:"symbol"`
	Timeframe string              `json:"timeframe"`
	Points    []models.ChartPoint `json:"points"`
}

func (h *MarketHandler) LatestPrices(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("prices_latest").Observe(time.Since(start).Seconds()) }()

	views := h.prices.GetLatestPrices(c.Request().Context())
	return xhttp.SuccessResponse(c, views)
}

func (h *MarketHandler) SymbolPrices(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("prices").Observe(time.Since(start).Seconds()) }()

	req := &models.SymbolPricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	views := h.prices.GetSymbolPrices(c.Request().Context(), strings.Split(req.Symbols, ","))
	return xhttp.SuccessResponse(c, views)
}

func (h *MarketHandler) Chart(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("chart").Observe(time.Since(start).Seconds()) }()

	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":chart", 5, 2) {
		metrics.APIErrors.WithLabelValues("chart").Inc()
		h.logger.Warn("chart rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	points := h.charts.GetChart(c.Request().Context(), usecase.GetChartParams{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Limit:     req.Limit,
	})
	return xhttp.SuccessResponse(c, chartResponse{
		Symbol:    strings.ToUpper(req.Symbol),
		Timeframe: string(tf),
		Points:    points,
	})
}

func (h *MarketHandler) Quality(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("quality").Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":quality", 3, 1) {
		metrics.APIErrors.WithLabelValues("quality").Inc()
		h.logger.Warn("quality rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	report := h.reports.GetQualityReport(c.Request().Context())
	return xhttp.SuccessResponse(c, report)
}
