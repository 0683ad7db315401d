package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bnema/transcriber/internal/infrastructure/logger"
)

const wsWriteWait = 10 * time.Second

// WebSocket carries the same updates as Events, one JSON text frame each.
// The server closes the connection after the terminal update.
func (h *StreamHandler) WebSocket() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.L().Warn("websocket upgrade failed", logger.Input("job_id", id), zap.Error(err))
			return
		}
		defer conn.Close() //nolint:errcheck

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// The client never sends data; reading only processes control
		// frames and notices when the peer goes away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		updates := h.progress.Subscribe(ctx, id)
		ping := time.NewTicker(h.keepAlive)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case u, ok := <-updates:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(u); err != nil {
					logger.L().Debug("websocket write failed", zap.String("job_id", id), zap.Error(err))
					return
				}
				if u.Terminal {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, eventName(u))
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
					return
				}
			}
		}
	}
}
