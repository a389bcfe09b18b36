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

// Admission limits per scope. Fixed windows; the limiter composes a shared
// counter with a local fallback so these hold per instance at worst.
const (
	authLimitPerMin       = 10
	apiLimitPerMin        = 120
	chatLimitPerMin       = 20
	generationLimitPerMin = 5
	billingLimitPerMin    = 15
)

type Handler struct {
	auth        *usecases.AuthUsecase
	entitlement *usecases.EntitlementUsecase
	chat        *usecases.ChatService
	generation  *usecases.GenerationService
	billing     *usecases.BillingUsecase
	projects    *repository.ProjectRepository
	log         *zap.Logger
}

func NewHandler(
	auth *usecases.AuthUsecase,
	entitlement *usecases.EntitlementUsecase,
	chat *usecases.ChatService,
	generation *usecases.GenerationService,
	billing *usecases.BillingUsecase,
	projects *repository.ProjectRepository,
	log *zap.Logger,
) *Handler {
	return &Handler{
		auth:        auth,
		entitlement: entitlement,
		chat:        chat,
		generation:  generation,
		billing:     billing,
		projects:    projects,
		log:         log,
	}
}

func SetupRoutes(r *gin.Engine, h *Handler, m *Middleware, webhookSecret string) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size
	r.Use(m.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Stripe calls this directly; signature verification replaces origin and
	// session checks.
	r.POST("/stripe/webhook", h.HandleStripeWebhook(webhookSecret))

	authGroup := r.Group("/api/auth")
	authGroup.Use(m.RateLimitByIP("auth", authLimitPerMin, time.Minute))
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	api := r.Group("/api")
	api.Use(m.RateLimitByIP("api", apiLimitPerMin, time.Minute))
	api.Use(m.AuthRequired())
	api.Use(m.TrustedOrigin())
	{
		api.GET("/projects", h.ListProjects)
		api.POST("/projects", h.CreateProject)
		api.GET("/projects/:id", h.GetProject)
		api.PUT("/projects/:id", h.UpdateProject)
		api.DELETE("/projects/:id", h.DeleteProject)

		api.GET("/projects/:id/messages", h.ListMessages)
		api.POST("/projects/:id/messages",
			m.RateLimitByUser("chat", chatLimitPerMin, time.Minute), h.PostMessage)

		gen := m.RateLimitByUser("generate", generationLimitPerMin, time.Minute)
		api.POST("/projects/:id/requirements/generate", gen, h.GenerateRequirements)
		api.POST("/projects/:id/requirements/approve", h.ApproveRequirements)
		api.GET("/projects/:id/requirements", h.GetRequirements)
		api.PUT("/projects/:id/requirements", h.SaveRequirements)

		api.POST("/projects/:id/plan/generate", gen, h.GeneratePlan)
		api.GET("/projects/:id/plan", h.GetPlan)
		api.PUT("/projects/:id/plan", h.SavePlan)
		api.GET("/projects/:id/plan/download", h.DownloadPlan)

		billing := api.Group("/billing")
		billing.Use(m.RateLimitByUser("billing", billingLimitPerMin, time.Minute))
		{
			billing.POST("/checkout", h.BillingCheckout)
			billing.GET("/portal", h.BillingPortal)
			billing.GET("/status", h.BillingStatus)
		}
	}
}

// bindJSON decodes the request body, translating an oversized body into 413
// instead of a generic 400.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return false
	}
	return true
}

func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Name     string `json:"name"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.Register(c.Request.Context(), req.Email, req.Name, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
