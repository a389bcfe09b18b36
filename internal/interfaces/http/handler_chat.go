package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) ListMessages(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	messages, err := h.chat.ListMessages(c.Request.Context(), project.ID, user.ID)
	if err != nil {
		h.log.Error("chat: list messages failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage persists the user's message and streams the assistant's reply
// back as incremental plain-text chunks. Upstream failures before the first
// byte answer 502; once streaming starts, errors just end the stream and the
// partial reply is still persisted.
func (h *Handler) PostMessage(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if !bindJSON(c, &req) {
		return
	}
	content, problem := ValidateMessage(req.Content)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	body, err := h.chat.StartReply(c.Request.Context(), project.ID, user.ID, content)
	if err != nil {
		h.log.Error("chat: failed to start reply", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Assistant is unavailable"})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	h.chat.RelayReply(project.ID, body, func(delta string) error {
		if _, err := c.Writer.WriteString(delta); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
}
