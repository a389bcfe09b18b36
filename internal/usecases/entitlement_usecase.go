package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"reqforge/internal/entities"
	"reqforge/internal/repository"
)

// tierProjectLimits is the authoritative tier quota table. Pricing displays
// read from the same table so advertised and enforced limits cannot drift.
var tierProjectLimits = map[entities.SubscriptionTier]int{
	entities.TierFree:  1,
	entities.TierBasic: 5,
	entities.TierPro:   20,
	entities.TierTeam:  100,
}

// TierProjectLimit returns the monthly project quota for a tier.
func TierProjectLimit(tier entities.SubscriptionTier) int {
	return tierProjectLimits[tier]
}

// MonthKey formats a time as the UTC calendar-month meter key.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

type EntitlementReason string

const (
	ReasonUnsubscribed EntitlementReason = "unsubscribed"
	ReasonOverQuota    EntitlementReason = "over_quota"
)

// denyReason phrases a quota denial: a paid user is simply over quota, a
// FREE-allowance user gets the upsell reason.
func denyReason(subscribed bool) EntitlementReason {
	if subscribed {
		return ReasonOverQuota
	}
	return ReasonUnsubscribed
}

// Entitlement is the computed quota decision for a user.
type Entitlement struct {
	OK     bool                      `json:"ok"`
	Reason EntitlementReason         `json:"reason,omitempty"`
	Tier   entities.SubscriptionTier `json:"tier"`
	Limit  int                       `json:"limit"`
	Used   int                       `json:"used"`
	// Subscribed distinguishes the implicit FREE allowance from a paid
	// subscription. It never blocks creation; it only drives display copy.
	Subscribed bool `json:"subscribed"`
	Bypass     bool `json:"bypass,omitempty"`
}

type EntitlementUsecase struct {
	subs  *repository.SubscriptionRepository
	usage *repository.UsageRepository
	log   *zap.Logger

	// bypassTier is resolved once at startup from config; empty disables
	// the bypass. Never set in production.
	bypassTier entities.SubscriptionTier
}

func NewEntitlementUsecase(subs *repository.SubscriptionRepository, usage *repository.UsageRepository, bypassTier entities.SubscriptionTier, log *zap.Logger) *EntitlementUsecase {
	return &EntitlementUsecase{subs: subs, usage: usage, bypassTier: bypassTier, log: log}
}

// resolveTier computes the effective tier for quota purposes. A user without
// an active subscription gets the implicit FREE allowance rather than a hard
// rejection; Subscribed=false lets callers phrase the upsell.
func (uc *EntitlementUsecase) resolveTier(ctx context.Context, userID string, now time.Time) (tier entities.SubscriptionTier, subscribed, bypass bool, err error) {
	if uc.bypassTier != "" {
		uc.log.Info("entitlements: using dev bypass", zap.String("tier", string(uc.bypassTier)))
		return uc.bypassTier, true, true, nil
	}

	sub, err := uc.subs.GetLatestActive(ctx, userID, now)
	if err != nil {
		return "", false, false, fmt.Errorf("resolve subscription: %w", err)
	}
	if sub == nil || !sub.IsActive(now) {
		return entities.TierFree, false, false, nil
	}
	return sub.Tier, true, false, nil
}

// CheckProjectCreation reports whether the user could create a project right
// now, without reserving a slot. Used for display only; the reservation path
// re-checks atomically.
func (uc *EntitlementUsecase) CheckProjectCreation(ctx context.Context, userID string, now time.Time) (*Entitlement, error) {
	tier, subscribed, bypass, err := uc.resolveTier(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	limit := TierProjectLimit(tier)
	meter, err := uc.usage.GetMeter(ctx, userID, MonthKey(now))
	if err != nil {
		return nil, err
	}

	ent := &Entitlement{
		OK:         meter.ProjectsCreatedCount < limit,
		Tier:       tier,
		Limit:      limit,
		Used:       meter.ProjectsCreatedCount,
		Subscribed: subscribed,
		Bypass:     bypass,
	}
	if !ent.OK {
		ent.Reason = denyReason(subscribed)
	}
	return ent, nil
}

// CreateProjectWithEntitlement resolves the effective tier, then atomically
// reserves a usage slot and creates the project. The guarded increment
// inside the reservation transaction is the only quota check that counts;
// concurrent calls at the boundary serialize on the meter row.
func (uc *EntitlementUsecase) CreateProjectWithEntitlement(ctx context.Context, userID, title string, now time.Time) (*entities.Project, *Entitlement, error) {
	tier, subscribed, bypass, err := uc.resolveTier(ctx, userID, now)
	if err != nil {
		return nil, nil, err
	}

	limit := TierProjectLimit(tier)
	ent := &Entitlement{Tier: tier, Limit: limit, Subscribed: subscribed, Bypass: bypass}

	project, err := uc.usage.ReserveProjectSlot(ctx, userID, MonthKey(now), limit, title)
	if errors.Is(err, repository.ErrOverQuota) {
		uc.log.Warn("entitlements: project quota exceeded",
			zap.String("user_id", userID),
			zap.String("tier", string(tier)),
			zap.Int("limit", limit))
		ent.Reason = denyReason(subscribed)
		return nil, ent, repository.ErrOverQuota
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reserve project slot: %w", err)
	}

	ent.OK = true
	return project, ent, nil
}
