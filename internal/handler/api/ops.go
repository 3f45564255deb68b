package api

import (
	"net/http"
	"time"

	models "CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/scheduler"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/service/metrics"
	"CoinPulse/internal/usecase"
	xhttp "CoinPulse/pkg/http"
	xlogger "CoinPulse/pkg/logger"
	"CoinPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// OpsHandler serves cache administration, system status, and the backfill
// intake. Queue and collector are optional; a nil queue turns backfill
// requests away and a nil collector reports the stream as disabled.
type OpsHandler struct {
	logger    *xlogger.Logger
	env       string
	cache     *svccache.Gateway
	store     domrepo.SampleStore
	sched     *scheduler.Scheduler
	queue     queue.QueueService
	collector *usecase.StreamCollector
}

func NewOpsHandler(
	logger *xlogger.Logger,
	env string,
	cache *svccache.Gateway,
	store domrepo.SampleStore,
	sched *scheduler.Scheduler,
	q queue.QueueService,
	collector *usecase.StreamCollector,
) *OpsHandler {
	metrics.Register()
	return &OpsHandler{
		logger:    logger,
		env:       env,
		cache:     cache,
		store:     store,
		sched:     sched,
		queue:     q,
		collector: collector,
	}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	g := e.Group("/api")
	g.GET("/cache/stats", h.CacheStats)
	g.POST("/cache/clear", h.ClearCache)
	g.GET("/status", h.Status)
	g.POST("/admin/backfill", h.Backfill)
}

func (h *OpsHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *OpsHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.cache.Stats(c.Request().Context()))
}

func (h *OpsHandler) ClearCache(c echo.Context) error {
	req := &models.ClearCacheRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	if req.Symbol != "" {
		h.cache.InvalidateSymbol(ctx, req.Symbol)
		h.logger.Info("cache cleared for symbol", xlogger.String("symbol", req.Symbol))
		return xhttp.SuccessResponse(c, echo.Map{"scope": "symbol", "symbol": req.Symbol})
	}

	cleared, err := h.cache.Invalidate(ctx, req.Scope)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, echo.Map{"scope": req.Scope, "cleared": cleared})
}

func (h *OpsHandler) Status(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("status").Observe(time.Since(start).Seconds()) }()

	ctx := c.Request().Context()
	storeStatus := "ok"
	if err := h.store.Health(ctx); err != nil {
		storeStatus = "unavailable"
		h.logger.Warn("store health check failed", xlogger.Error(err))
	}

	streamStatus := "disabled"
	if h.collector != nil {
		if h.collector.IsConnected() {
			streamStatus = "connected"
		} else {
			streamStatus = "disconnected"
		}
	}

	return xhttp.SuccessResponse(c, models.SystemStatus{
		Environment: h.env,
		Store:       storeStatus,
		Stream:      streamStatus,
		Cache:       h.cache.Stats(ctx),
		Jobs:        h.sched.Jobs(),
		GeneratedAt: time.Now().UTC(),
	})
}

func (h *OpsHandler) Backfill(c echo.Context) error {
	req := &models.BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.queue == nil {
		metrics.APIErrors.WithLabelValues("backfill").Inc()
		return xhttp.AppErrorResponse(c, xhttp.NewAppError(
			"ERR_QUEUE_DISABLED", "backfill queue is not enabled", http.StatusServiceUnavailable))
	}

	payload := usecase.BackfillPayload{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
	}
	if err := h.queue.PublishMessage(c.Request().Context(), "backfill", payload); err != nil {
		metrics.APIErrors.WithLabelValues("backfill").Inc()
		h.logger.Error("backfill enqueue failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}

	h.logger.Info("backfill queued",
		xlogger.String("symbol", req.Symbol),
		xlogger.String("timeframe", req.Timeframe))
	return xhttp.AcceptedResponse(c, echo.Map{
		"queued":    true,
		"symbol":    req.Symbol,
		"timeframe": req.Timeframe,
	})
}
