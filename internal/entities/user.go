package entities

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Image        string    `json:"image,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SubscriptionTier string

const (
	TierFree  SubscriptionTier = "FREE"
	TierBasic SubscriptionTier = "BASIC"
	TierPro   SubscriptionTier = "PRO"
	TierTeam  SubscriptionTier = "TEAM"
)

func ParseSubscriptionTier(s string) (SubscriptionTier, bool) {
	switch SubscriptionTier(s) {
	case TierFree, TierBasic, TierPro, TierTeam:
		return SubscriptionTier(s), true
	}
	return "", false
}

type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue    SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled   SubscriptionStatus = "CANCELED"
	SubscriptionIncomplete SubscriptionStatus = "INCOMPLETE"
	SubscriptionTrialing   SubscriptionStatus = "TRIALING"
)

type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	Tier                 SubscriptionTier   `json:"tier"`
	Status               SubscriptionStatus `json:"status"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// IsActive reports whether the subscription grants access at the given time.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionActive {
		return false
	}
	return !s.CurrentPeriodEnd.Before(now)
}

type UsageMeter struct {
	UserID               string `json:"user_id"`
	Month                string `json:"month"` // "YYYY-MM", UTC
	ProjectsCreatedCount int    `json:"projects_created_count"`
}
