package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reqforge/internal/repository"
	"reqforge/internal/usecases"
)

func (h *Handler) GetRequirements(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	req, err := h.generation.GetLatestRequirement(c.Request.Context(), project.ID)
	if err != nil {
		h.log.Error("requirements: load failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load requirements"})
		return
	}
	if req == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No requirements document exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirement": req})
}

func (h *Handler) GenerateRequirements(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	// The body is optional; it only carries the reopen flag.
	var body struct {
		Reopen bool `json:"reopen"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}

	req, err := h.generation.GenerateRequirements(c.Request.Context(), project.ID, user.ID, body.Reopen)
	if errors.Is(err, usecases.ErrNoMessages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chat has no messages to generate from"})
		return
	}
	if errors.Is(err, repository.ErrApprovedImmutable) {
		c.JSON(http.StatusConflict, gin.H{"error": "Approved requirements are immutable; reopen to start a new version"})
		return
	}
	if err != nil {
		h.log.Error("requirements: generation failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to generate requirements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirement": req})
}

func (h *Handler) SaveRequirements(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	var req struct {
		ContentMd string `json:"content_md"`
		Reopen    bool   `json:"reopen"`
	}
	if !bindJSON(c, &req) {
		return
	}
	content, problem := ValidateRequirementDoc(req.ContentMd)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	saved, err := h.generation.SaveRequirement(c.Request.Context(), project.ID, content, req.Reopen)
	if errors.Is(err, repository.ErrApprovedImmutable) {
		c.JSON(http.StatusConflict, gin.H{"error": "Approved requirements are immutable; reopen to start a new version"})
		return
	}
	if err != nil {
		h.log.Error("requirements: save failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save requirements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirement": saved})
}

func (h *Handler) ApproveRequirements(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	req, err := h.generation.ApproveRequirement(c.Request.Context(), project.ID, time.Now())
	if errors.Is(err, usecases.ErrNoDraft) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No requirements document exists"})
		return
	}
	if err != nil {
		h.log.Error("requirements: approve failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve requirements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirement": req})
}
