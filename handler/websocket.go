package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 || allowsAnyOrigin(origins) {
				return true
			}
			for _, o := range origins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// serveWS gives every connection its own session. Frames are handled one at a
// time on the connection goroutine, so replies keep arrival order.
func (h *Handler) serveWS(origins []string) gin.HandlerFunc {
	upgrader := newUpgrader(origins)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "err", err, "request_id", getRequestID(c))
			return
		}
		defer func() { _ = conn.Close() }()

		id := h.newID()
		h.sessions.OnConnect(id)
		h.logger.Info("client connected", "session", id, "transport", "websocket")
		defer func() {
			h.sessions.OnDisconnect(id)
			h.logger.Info("client disconnected", "session", id, "transport", "websocket")
		}()

		ctx := c.Request.Context()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Warn("websocket read failed", "session", id, "err", err)
				}
				return
			}

			var in inboundMessage
			if err := json.Unmarshal(data, &in); err != nil {
				h.logger.Warn("malformed websocket frame", "session", id, "err", err)
				in = inboundMessage{}
			}

			out := responseEvent{Event: "response", Response: h.reply(ctx, id, in.Messages.Content)}
			if err := conn.WriteJSON(out); err != nil {
				h.logger.Warn("websocket write failed", "session", id, "err", err)
				return
			}
		}
	}
}
