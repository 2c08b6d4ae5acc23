package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SignalHub/internal/domain/models"
	xhttp "SignalHub/pkg/http"
	xlogger "SignalHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

type streamRequest struct {
	PingSec int `query:"ping_sec" validate:"omitempty,gte=5,lte=60"`
}

// Stream is the SSE endpoint. Contract: the first event is always the
// current state — the stored snapshot, or an explicit placeholder when no
// leader has published yet — so a client never waits a full fast interval
// before rendering. After that every published snapshot is relayed, with
// ping events in between to keep intermediaries from closing the socket.
func (h *SignalsHandler) Stream(c echo.Context) error {
	req := &streamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pingSec := req.PingSec
	if pingSec == 0 {
		pingSec = h.stream.DefaultPingSec
	}

	ctx := c.Request().Context()

	// Subscribe before reading Latest: a snapshot published between the two
	// steps is then delivered twice, never missed.
	sub, cancel, err := h.bus.Subscribe(ctx)
	if err != nil {
		h.logger.Error("stream subscribe failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	defer cancel()

	if h.metrics != nil {
		h.metrics.IncSubscribers()
		defer h.metrics.DecSubscribers()
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	first, err := h.bus.Latest(ctx)
	if err != nil {
		h.logger.Warn("stream replay read failed", xlogger.Error(err))
	}
	if first == nil {
		first = placeholderSnapshot()
	}
	if err := writeEvent(res, "snapshot", first); err != nil {
		return nil
	}

	ticker := time.NewTicker(time.Duration(pingSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub:
			if !ok {
				return nil
			}
			if err := writeEvent(res, "snapshot", snap); err != nil {
				return nil
			}
		case t := <-ticker.C:
			if err := writeEvent(res, "ping", map[string]interface{}{"ts": t.UTC()}); err != nil {
				return nil
			}
		}
	}
}

// placeholderSnapshot is what a subscriber sees before the first publish.
func placeholderSnapshot() *models.Snapshot {
	return &models.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Mode:        "empty",
		OK:          false,
		Message:     "no snapshot yet",
	}
}

func writeEvent(res *echo.Response, event string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	res.Flush()
	return nil
}
