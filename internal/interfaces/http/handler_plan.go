package http

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reqforge/internal/usecases"
)

func (h *Handler) GetPlan(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	plan, err := h.generation.GetPlan(c.Request.Context(), project.ID)
	if err != nil {
		h.log.Error("plan: load failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plan"})
		return
	}
	if plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No plan exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (h *Handler) GeneratePlan(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	plan, err := h.generation.GeneratePlan(c.Request.Context(), project.ID)
	if errors.Is(err, usecases.ErrNoDraft) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No requirements document exists"})
		return
	}
	if errors.Is(err, usecases.ErrNotApproved) {
		c.JSON(http.StatusConflict, gin.H{"error": "Requirements must be approved before generating a plan"})
		return
	}
	if err != nil {
		h.log.Error("plan: generation failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to generate plan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (h *Handler) SavePlan(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	var req struct {
		ContentMd string `json:"content_md"`
	}
	if !bindJSON(c, &req) {
		return
	}
	content, problem := ValidatePlanDoc(req.ContentMd)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	plan, err := h.generation.SavePlan(c.Request.Context(), project.ID, content)
	if err != nil {
		h.log.Error("plan: save failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save plan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// planFilename derives a safe attachment name from the project title.
func planFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "plan"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name + "-plan.md"
}

func (h *Handler) DownloadPlan(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}

	plan, err := h.generation.GetPlan(c.Request.Context(), project.ID)
	if err != nil {
		h.log.Error("plan: load failed", zap.String("project_id", project.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plan"})
		return
	}
	if plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No plan exists"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+planFilename(project.Title)+`"`)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(plan.ContentMd))
}
