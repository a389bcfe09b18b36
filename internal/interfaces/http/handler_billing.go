package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/infrastructure"
	"reqforge/internal/usecases"
)

func (h *Handler) BillingCheckout(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Tier string `json:"tier" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	tier, ok := entities.ParseSubscriptionTier(req.Tier)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown subscription tier"})
		return
	}

	checkoutURL, err := h.billing.CheckoutURL(c.Request.Context(), user, tier)
	if err != nil {
		h.log.Error("billing: checkout failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to start checkout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": checkoutURL})
}

func (h *Handler) BillingPortal(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	portalURL, err := h.billing.PortalURL(c.Request.Context(), user.ID)
	if errors.Is(err, usecases.ErrNoBillingAccount) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No billing account exists"})
		return
	}
	if err != nil {
		h.log.Error("billing: portal failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to open billing portal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": portalURL})
}

func (h *Handler) BillingStatus(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	status, err := h.billing.Status(c.Request.Context(), user.ID, time.Now())
	if err != nil {
		h.log.Error("billing: status failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load billing status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// HandleStripeWebhook verifies and applies Stripe events. Processing
// failures answer non-2xx so Stripe retries the delivery; unknown event
// types are acknowledged.
func (h *Handler) HandleStripeWebhook(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
			return
		}

		event, err := infrastructure.ParseWebhookEvent(payload, c.GetHeader("Stripe-Signature"), secret, time.Now())
		if err != nil {
			h.log.Warn("billing: webhook signature rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}

		if err := h.billing.HandleWebhookEvent(c.Request.Context(), event); err != nil {
			h.log.Error("billing: webhook processing failed",
				zap.String("event_id", event.ID), zap.String("type", event.Type), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
