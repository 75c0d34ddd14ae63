package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createSession(c *gin.Context) {
	id := h.newID()
	h.sessions.OnConnect(id)
	h.logger.Info("client connected", "session", id, "transport", "http", "request_id", getRequestID(c))
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (h *Handler) postMessage(c *gin.Context) {
	id := c.Param("id")
	if !h.sessions.Has(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var in inboundMessage
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("malformed message body", "session", id, "err", err, "request_id", getRequestID(c))
		c.JSON(http.StatusOK, gin.H{"response": h.reply(c.Request.Context(), id, "")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": h.reply(c.Request.Context(), id, in.Messages.Content)})
}

func (h *Handler) deleteSession(c *gin.Context) {
	id := c.Param("id")
	h.sessions.OnDisconnect(id)
	h.logger.Info("client disconnected", "session", id, "transport", "http", "request_id", getRequestID(c))
	c.Status(http.StatusNoContent)
}
