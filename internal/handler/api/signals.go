package api

import (
	"net/http"
	"time"

	drepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/service/ratelimit"
	"SignalHub/internal/usecase"
	xhttp "SignalHub/pkg/http"
	xlogger "SignalHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StreamConfig bounds the keep-alive cadence of the streaming endpoints.
type StreamConfig struct {
	DefaultPingSec int
	MinPingSec     int
	MaxPingSec     int
}

// SignalsHandler serves the read side: latest snapshot, one-shot computation
// and the two live streams. It never computes anything on the hot path; the
// producer owns computation, the handler only reads and relays.
type SignalsHandler struct {
	logger   *xlogger.Logger
	bus      drepo.SnapshotBus
	producer *usecase.SignalProducer
	metrics  drepo.Metrics
	rl       *ratelimit.Limiter
	stream   StreamConfig
}

func NewSignalsHandler(logger *xlogger.Logger, bus drepo.SnapshotBus, producer *usecase.SignalProducer, metrics drepo.Metrics, stream StreamConfig) *SignalsHandler {
	if stream.DefaultPingSec <= 0 {
		stream.DefaultPingSec = 15
	}
	return &SignalsHandler{
		logger:   logger,
		bus:      bus,
		producer: producer,
		metrics:  metrics,
		rl:       ratelimit.New(),
		stream:   stream,
	}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/signals")
	g.GET("/latest", h.Latest)
	g.GET("/once", h.Once)
	g.GET("/stream", h.Stream)
	g.GET("/ws", h.WS)
}

func (h *SignalsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
	})
}

// Latest returns the stored snapshot without touching the upstream. A 404
// means no leader has published yet.
func (h *SignalsHandler) Latest(c echo.Context) error {
	snap, err := h.bus.Latest(c.Request().Context())
	if err != nil {
		h.logger.Error("latest snapshot read failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if snap == nil {
		return xhttp.NotFoundResponse(c, "no snapshot yet")
	}
	return xhttp.SuccessResponse(c, snap)
}

// Once runs the full computation synchronously for debugging. Expensive and
// unrated; it bypasses cache and leadership entirely.
func (h *SignalsHandler) Once(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":once", 2, 0.2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	snap, err := h.producer.ComputeOnce(c.Request().Context())
	if err != nil {
		h.logger.Error("one-shot computation failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, snap)
}
