package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, tier, status, current_period_end,
	stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func scanSubscription(row pgx.Row) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Tier, &sub.Status, &sub.CurrentPeriodEnd,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.CreatedAt, &sub.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetLatestActive returns the user's most recent ACTIVE subscription with an
// unexpired period, or nil.
func (r *SubscriptionRepository) GetLatestActive(ctx context.Context, userID string, now time.Time) (*entities.Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status = 'ACTIVE' AND current_period_end >= $2
		ORDER BY current_period_end DESC, updated_at DESC
		LIMIT 1
	`, userID, now))
}

// GetLatest returns the user's most recently updated subscription regardless
// of status, or nil. Used to locate the billing-portal customer.
func (r *SubscriptionRepository) GetLatest(ctx context.Context, userID string) (*entities.Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID))
}

// GetByStripeID returns the subscription row tracking the given Stripe
// subscription, or nil.
func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*entities.Subscription, error) {
	return scanSubscription(r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE stripe_subscription_id = $1
	`, stripeSubscriptionID))
}

// UpsertByStripeID creates or refreshes the row tracking a Stripe
// subscription. Webhook deliveries are unordered and may repeat, so the
// write is keyed on the external id.
func (r *SubscriptionRepository) UpsertByStripeID(ctx context.Context, sub *entities.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, tier, status, current_period_end,
			stripe_customer_id, stripe_subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = now()
	`, sub.ID, sub.UserID, sub.Tier, sub.Status, sub.CurrentPeriodEnd,
		sub.StripeCustomerID, sub.StripeSubscriptionID)
	return err
}
