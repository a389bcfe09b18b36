package usecases

import (
	"testing"
	"time"

	"reqforge/internal/entities"
)

func TestMonthKeyUsesUTC(t *testing.T) {
	// 23:30 on Jan 31 in UTC-5 is already February in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2026, time.January, 31, 23, 30, 0, 0, loc)
	if got := MonthKey(ts); got != "2026-02" {
		t.Errorf("expected UTC month 2026-02, got %q", got)
	}

	if got := MonthKey(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)); got != "2026-03" {
		t.Errorf("expected 2026-03, got %q", got)
	}
}

func TestTierProjectLimits(t *testing.T) {
	cases := map[entities.SubscriptionTier]int{
		entities.TierFree:  1,
		entities.TierBasic: 5,
		entities.TierPro:   20,
		entities.TierTeam:  100,
	}
	for tier, want := range cases {
		if got := TierProjectLimit(tier); got != want {
			t.Errorf("tier %s: expected limit %d, got %d", tier, want, got)
		}
	}
}

func TestDenyReason(t *testing.T) {
	if got := denyReason(true); got != ReasonOverQuota {
		t.Errorf("subscribed denial should read over_quota, got %q", got)
	}
	if got := denyReason(false); got != ReasonUnsubscribed {
		t.Errorf("free-allowance denial should read unsubscribed, got %q", got)
	}
}

func TestSubscriptionIsActive(t *testing.T) {
	now := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)

	active := &entities.Subscription{
		Status:           entities.SubscriptionActive,
		CurrentPeriodEnd: now.Add(24 * time.Hour),
	}
	if !active.IsActive(now) {
		t.Error("unexpired ACTIVE subscription should be active")
	}

	expired := &entities.Subscription{
		Status:           entities.SubscriptionActive,
		CurrentPeriodEnd: now.Add(-time.Hour),
	}
	if expired.IsActive(now) {
		t.Error("expired subscription should not be active")
	}

	pastDue := &entities.Subscription{
		Status:           entities.SubscriptionPastDue,
		CurrentPeriodEnd: now.Add(24 * time.Hour),
	}
	if pastDue.IsActive(now) {
		t.Error("PAST_DUE subscription should not be active")
	}

	var nilSub *entities.Subscription
	if nilSub.IsActive(now) {
		t.Error("nil subscription should not be active")
	}

	boundary := &entities.Subscription{
		Status:           entities.SubscriptionActive,
		CurrentPeriodEnd: now,
	}
	if !boundary.IsActive(now) {
		t.Error("subscription ending exactly now should still be active")
	}
}
