package api

import (
	"net/http"
	"time"

	"SignalHub/internal/domain/models"
	xlogger "SignalHub/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

type wsEvent struct {
	Event string           `json:"event"`
	Data  *models.Snapshot `json:"data"`
}

// WS mirrors the SSE stream over a WebSocket for clients behind proxies that
// buffer SSE. Same contract: current state first, then live snapshots.
func (h *SignalsHandler) WS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	sub, cancel, err := h.bus.Subscribe(ctx)
	if err != nil {
		h.logger.Error("ws subscribe failed", xlogger.Error(err))
		return nil
	}
	defer cancel()

	if h.metrics != nil {
		h.metrics.IncSubscribers()
		defer h.metrics.DecSubscribers()
	}

	// Read pump: we never expect client frames, but reading is the only way
	// to observe a close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	first, err := h.bus.Latest(ctx)
	if err != nil {
		h.logger.Warn("ws replay read failed", xlogger.Error(err))
	}
	if first == nil {
		first = placeholderSnapshot()
	}
	if err := h.writeWS(conn, first); err != nil {
		return nil
	}

	ticker := time.NewTicker(time.Duration(h.stream.DefaultPingSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case snap, ok := <-sub:
			if !ok {
				return nil
			}
			if err := h.writeWS(conn, snap); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return nil
			}
		}
	}
}

func (h *SignalsHandler) writeWS(conn *websocket.Conn, snap *models.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(wsEvent{Event: "snapshot", Data: snap})
}
