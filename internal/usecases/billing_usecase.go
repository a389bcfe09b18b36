package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/infrastructure"
	"reqforge/internal/repository"
)

// ErrNoBillingAccount means the user has never had a Stripe customer, so
// there is no billing portal to open.
var ErrNoBillingAccount = errors.New("no billing account exists for user")

// BillingPlan is one row of the public pricing table. Limits come from the
// same quota table the entitlement checks use.
type BillingPlan struct {
	Tier         entities.SubscriptionTier `json:"tier"`
	Name         string                    `json:"name"`
	PriceUSD     int                       `json:"price_usd"`
	ProjectLimit int                       `json:"project_limit"`
	PriceID      string                    `json:"-"`
}

// BillingStatus is the billing page payload: plans plus where the user
// stands against their current quota.
type BillingStatus struct {
	Plans       []BillingPlan `json:"plans"`
	Entitlement *Entitlement  `json:"entitlement"`
}

type BillingUsecase struct {
	stripe      *infrastructure.StripeClient
	subs        *repository.SubscriptionRepository
	entitlement *EntitlementUsecase
	appURL      string
	log         *zap.Logger

	priceByTier map[entities.SubscriptionTier]string
	tierByPrice map[string]entities.SubscriptionTier
}

func NewBillingUsecase(
	stripe *infrastructure.StripeClient,
	subs *repository.SubscriptionRepository,
	entitlement *EntitlementUsecase,
	appURL string,
	priceBasic, pricePro, priceTeam string,
	log *zap.Logger,
) *BillingUsecase {
	uc := &BillingUsecase{
		stripe:      stripe,
		subs:        subs,
		entitlement: entitlement,
		appURL:      appURL,
		log:         log,
		priceByTier: map[entities.SubscriptionTier]string{},
		tierByPrice: map[string]entities.SubscriptionTier{},
	}
	for tier, priceID := range map[entities.SubscriptionTier]string{
		entities.TierBasic: priceBasic,
		entities.TierPro:   pricePro,
		entities.TierTeam:  priceTeam,
	} {
		if priceID == "" {
			continue
		}
		uc.priceByTier[tier] = priceID
		uc.tierByPrice[priceID] = tier
	}
	return uc
}

// Plans returns the pricing table. FREE is always present and never has a
// Stripe price.
func (uc *BillingUsecase) Plans() []BillingPlan {
	plans := []BillingPlan{
		{Tier: entities.TierFree, Name: "Free", PriceUSD: 0},
		{Tier: entities.TierBasic, Name: "Basic", PriceUSD: 5},
		{Tier: entities.TierPro, Name: "Pro", PriceUSD: 10},
		{Tier: entities.TierTeam, Name: "Team", PriceUSD: 25},
	}
	for i := range plans {
		plans[i].ProjectLimit = TierProjectLimit(plans[i].Tier)
		plans[i].PriceID = uc.priceByTier[plans[i].Tier]
	}
	return plans
}

// CheckoutURL returns the URL to send the user to for the requested tier.
// FREE needs no checkout, so it redirects straight into the app.
func (uc *BillingUsecase) CheckoutURL(ctx context.Context, user *entities.User, tier entities.SubscriptionTier) (string, error) {
	if tier == entities.TierFree {
		return uc.appURL + "/projects", nil
	}

	priceID, ok := uc.priceByTier[tier]
	if !ok {
		return "", fmt.Errorf("tier %s has no configured price", tier)
	}

	session, err := uc.stripe.CreateCheckoutSession(ctx, infrastructure.CheckoutSessionInput{
		PriceID:       priceID,
		SuccessURL:    uc.appURL + "/billing?status=success",
		CancelURL:     uc.appURL + "/billing?status=canceled",
		CustomerEmail: user.Email,
		UserID:        user.ID,
		Tier:          string(tier),
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

// PortalURL opens the hosted billing portal for the user's most recent
// Stripe customer.
func (uc *BillingUsecase) PortalURL(ctx context.Context, userID string) (string, error) {
	sub, err := uc.subs.GetLatest(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.StripeCustomerID == "" {
		return "", ErrNoBillingAccount
	}

	session, err := uc.stripe.CreatePortalSession(ctx, sub.StripeCustomerID, uc.appURL+"/billing")
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

// Status reports the pricing table together with the user's entitlement.
func (uc *BillingUsecase) Status(ctx context.Context, userID string, now time.Time) (*BillingStatus, error) {
	ent, err := uc.entitlement.CheckProjectCreation(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &BillingStatus{Plans: uc.Plans(), Entitlement: ent}, nil
}

// mapStripeStatus folds Stripe's subscription statuses into the local set.
func mapStripeStatus(status string) entities.SubscriptionStatus {
	switch status {
	case "active":
		return entities.SubscriptionActive
	case "past_due", "unpaid":
		return entities.SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return entities.SubscriptionCanceled
	case "trialing":
		return entities.SubscriptionTrialing
	default:
		return entities.SubscriptionIncomplete
	}
}

// HandleWebhookEvent applies a verified Stripe event to the local
// subscription state. Unknown event types are acknowledged and ignored;
// deliveries are idempotent because the upsert is keyed on the Stripe
// subscription id.
func (uc *BillingUsecase) HandleWebhookEvent(ctx context.Context, event *infrastructure.WebhookEvent) error {
	switch event.Type {
	case "checkout.session.completed":
		return uc.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return uc.handleSubscriptionEvent(ctx, event)
	default:
		uc.log.Debug("billing: ignoring webhook event", zap.String("type", event.Type))
		return nil
	}
}

func (uc *BillingUsecase) handleCheckoutCompleted(ctx context.Context, event *infrastructure.WebhookEvent) error {
	var session infrastructure.CheckoutCompletedSession
	if err := decodeEventObject(event, &session); err != nil {
		return err
	}
	if session.Subscription == "" {
		uc.log.Warn("billing: checkout completed without subscription", zap.String("session_id", session.ID))
		return nil
	}

	sub, err := uc.stripe.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription after checkout: %w", err)
	}

	// The session metadata carries the user id; stamp it onto the
	// subscription so later lifecycle events can attribute themselves.
	if userID := session.Metadata["userId"]; userID != "" && sub.Metadata["userId"] == "" {
		if err := uc.stripe.SetSubscriptionUserID(ctx, sub.ID, userID); err != nil {
			uc.log.Warn("billing: failed to stamp subscription metadata",
				zap.String("subscription_id", sub.ID), zap.Error(err))
		}
		if sub.Metadata == nil {
			sub.Metadata = map[string]string{}
		}
		sub.Metadata["userId"] = userID
	}

	return uc.applySubscription(ctx, sub)
}

func (uc *BillingUsecase) handleSubscriptionEvent(ctx context.Context, event *infrastructure.WebhookEvent) error {
	var sub infrastructure.StripeSubscription
	if err := decodeEventObject(event, &sub); err != nil {
		return err
	}
	return uc.applySubscription(ctx, &sub)
}

// applySubscription upserts the local row tracking a Stripe subscription.
// The owning user id comes from subscription metadata, falling back to an
// existing local row for subscriptions created before metadata stamping.
func (uc *BillingUsecase) applySubscription(ctx context.Context, sub *infrastructure.StripeSubscription) error {
	tier, ok := uc.tierByPrice[sub.PriceID()]
	if !ok {
		uc.log.Warn("billing: subscription references unmapped price",
			zap.String("subscription_id", sub.ID), zap.String("price_id", sub.PriceID()))
		return nil
	}

	userID := sub.Metadata["userId"]
	if userID == "" {
		existing, err := uc.subs.GetByStripeID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			uc.log.Warn("billing: cannot attribute subscription to a user",
				zap.String("subscription_id", sub.ID))
			return nil
		}
		userID = existing.UserID
	}

	record := &entities.Subscription{
		UserID:               userID,
		Tier:                 tier,
		Status:               mapStripeStatus(sub.Status),
		CurrentPeriodEnd:     sub.PeriodEnd(),
		StripeCustomerID:     sub.Customer,
		StripeSubscriptionID: sub.ID,
	}
	if err := uc.subs.UpsertByStripeID(ctx, record); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	uc.log.Info("billing: subscription state applied",
		zap.String("subscription_id", sub.ID),
		zap.String("user_id", userID),
		zap.String("tier", string(tier)),
		zap.String("status", string(record.Status)))
	return nil
}

func decodeEventObject(event *infrastructure.WebhookEvent, out any) error {
	if err := json.Unmarshal(event.Data.Object, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return nil
}
