package api

import (
	"time"

	"github.com/rishigupta87/open-ta/internal/calendar"
	"github.com/rishigupta87/open-ta/internal/domain/models"
	drepo "github.com/rishigupta87/open-ta/internal/domain/repository"
	svcmetrics "github.com/rishigupta87/open-ta/internal/service/metrics"
	"github.com/rishigupta87/open-ta/internal/usecase"
	xhttp "github.com/rishigupta87/open-ta/pkg/http"
	xlogger "github.com/rishigupta87/open-ta/pkg/logger"
	"github.com/rishigupta87/open-ta/pkg/util"

	"github.com/labstack/echo/v4"
)

// EngineEchoHandler exposes the engine control and query API over Echo.
type EngineEchoHandler struct {
	logger    *xlogger.Logger
	ctrl      *usecase.EngineController
	analytics drepo.AnalyticsSink
	cache     drepo.SignalCache // nil when the cache is disabled
}

// NewEngineEchoHandler creates the handler. cache may be nil.
func NewEngineEchoHandler(logger *xlogger.Logger, ctrl *usecase.EngineController, analytics drepo.AnalyticsSink, cache drepo.SignalCache) *EngineEchoHandler {
	svcmetrics.Register()
	return &EngineEchoHandler{logger: logger, ctrl: ctrl, analytics: analytics, cache: cache}
}

// RegisterRoutes wires the engine API routes.
func (h *EngineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/engine/start", h.Start)
	g.POST("/engine/stop", h.Stop)
	g.GET("/engine/status", h.Status)
	g.GET("/market/status", h.MarketStatus)
	g.GET("/signals/recent", h.RecentSignals)
	g.GET("/analytics/:underlying", h.Analytics)
}

// Start transitions the engine to RUNNING.
func (h *EngineEchoHandler) Start(c echo.Context) error {
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues("engine_start").Observe(time.Since(start).Seconds()) }()

	st, err := h.ctrl.Start(c.Request().Context())
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("engine_start").Inc()
		h.logger.Error("engine start error", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, st)
	}
	return xhttp.SuccessResponse(c, st)
}

// Stop transitions the engine to STOPPED.
func (h *EngineEchoHandler) Stop(c echo.Context) error {
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues("engine_stop").Observe(time.Since(start).Seconds()) }()

	st, err := h.ctrl.Stop(c.Request().Context())
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("engine_stop").Inc()
		h.logger.Error("engine stop error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

// statusResponse pairs the engine lifecycle state with the calendar view so
// one poll answers both "is it running" and "should it be emitting".
type statusResponse struct {
	Engine models.EngineStatus `json:"engine"`
	Market calendar.Status     `json:"market"`
}

// Status reports the engine lifecycle state.
func (h *EngineEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, statusResponse{
		Engine: h.ctrl.GetStatus(),
		Market: h.ctrl.MarketStatus(time.Now()),
	})
}

// MarketStatus reports the trading-calendar view of the current instant.
func (h *EngineEchoHandler) MarketStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ctrl.MarketStatus(time.Now()))
}

// RecentSignals returns the latest cached signals, newest first.
func (h *EngineEchoHandler) RecentSignals(c echo.Context) error {
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues("signals_recent").Observe(time.Since(start).Seconds()) }()

	if h.cache == nil {
		return xhttp.NotFoundResponse(c, "signal cache disabled")
	}

	req := &models.RecentSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	signals, err := h.cache.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("signals_recent").Inc()
		h.logger.Error("recent signals error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, signals, int64(len(signals)))
}

// Analytics returns per-underlying window summaries for a time range.
func (h *EngineEchoHandler) Analytics(c echo.Context) error {
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues("analytics").Observe(time.Since(start).Seconds()) }()

	req := &models.AnalyticsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now()
	from := util.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := util.ParseTimeDefault(req.To, now)
	from, to = util.AlignWindow(from, to, h.ctrl.Window())

	rows, err := h.analytics.QueryRange(c.Request().Context(), req.Underlying, from, to, req.Limit)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues("analytics").Inc()
		h.logger.Error("analytics query error",
			xlogger.String("underlying", req.Underlying),
			xlogger.Error(err),
		)
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
