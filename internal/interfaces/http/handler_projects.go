package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/repository"
)

// requireOwnedProject resolves the :id project for the authenticated user.
// Missing and not-owned both answer 404 so existence is never confirmed to a
// non-owner.
func (h *Handler) requireOwnedProject(c *gin.Context) (*entities.Project, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return nil, false
	}

	project, err := h.projects.GetOwned(c.Request.Context(), c.Param("id"), user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return nil, false
	}
	if err != nil {
		h.log.Error("projects: lookup failed", zap.String("project_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load project"})
		return nil, false
	}
	return project, true
}

func (h *Handler) ListProjects(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	projects, err := h.projects.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error("projects: list failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *Handler) CreateProject(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if !bindJSON(c, &req) {
		return
	}
	title, problem := ValidateTitle(req.Title)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	project, ent, err := h.entitlement.CreateProjectWithEntitlement(c.Request.Context(), user.ID, title, time.Now())
	if errors.Is(err, repository.ErrOverQuota) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":       "Monthly project limit reached",
			"reason":      ent.Reason,
			"entitlement": ent,
		})
		return
	}
	if err != nil {
		h.log.Error("projects: create failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project, "entitlement": ent})
}

func (h *Handler) GetProject(c *gin.Context) {
	project, ok := h.requireOwnedProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *Handler) UpdateProject(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if !bindJSON(c, &req) {
		return
	}
	title, problem := ValidateTitle(req.Title)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	err := h.projects.UpdateTitle(c.Request.Context(), c.Param("id"), user.ID, title)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		h.log.Error("projects: rename failed", zap.String("project_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) DeleteProject(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	err := h.projects.Delete(c.Request.Context(), c.Param("id"), user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		h.log.Error("projects: delete failed", zap.String("project_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
