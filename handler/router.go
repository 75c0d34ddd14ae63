package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterConfig struct {
	ServiceName string
	CORSOrigins []string
}

// Router wires every route and middleware onto a fresh gin engine.
func (h *Handler) Router(cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "docchat"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(requestID())
	r.Use(requestLogger(h.logger))
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/ws", h.serveWS(cfg.CORSOrigins))

	sessions := r.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.POST("/:id/messages", h.postMessage)
	sessions.DELETE("/:id", h.deleteSession)

	return r
}
