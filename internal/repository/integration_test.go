package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"reqforge/internal/entities"
	"reqforge/internal/infrastructure"
)

// testDB connects to TEST_DATABASE_URL and runs migrations. Tests that need
// a database skip when the variable is unset.
func testDB(t *testing.T) *infrastructure.PostgresClient {
	t.Helper()
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	client, err := infrastructure.NewPostgresClient(context.Background(), connString)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func createTestUser(t *testing.T, users *UserRepository) *entities.User {
	t.Helper()
	email := fmt.Sprintf("test-%s@example.com", uuid.NewString())
	user, err := users.EnsureByEmail(context.Background(), email, "Test User", "")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestEnsureByEmailIsIdempotent(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	ctx := context.Background()

	email := fmt.Sprintf("idem-%s@example.com", uuid.NewString())
	first, err := users.EnsureByEmail(ctx, email, "Alice", "")
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	second, err := users.EnsureByEmail(ctx, email, "", "")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("same email must resolve to the same user: %s vs %s", first.ID, second.ID)
	}
	if second.Name != "Alice" {
		t.Errorf("empty name must not blank the stored profile, got %q", second.Name)
	}
}

func TestReserveProjectSlotEnforcesQuota(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	usage := NewUsageRepository(db.Pool)
	ctx := context.Background()

	user := createTestUser(t, users)
	month := "2026-08"
	limit := 2

	for i := 0; i < limit; i++ {
		if _, err := usage.ReserveProjectSlot(ctx, user.ID, month, limit, fmt.Sprintf("p%d", i)); err != nil {
			t.Fatalf("reservation %d failed: %v", i+1, err)
		}
	}

	_, err := usage.ReserveProjectSlot(ctx, user.ID, month, limit, "over")
	if !errors.Is(err, ErrOverQuota) {
		t.Fatalf("expected ErrOverQuota, got %v", err)
	}

	meter, err := usage.GetMeter(ctx, user.ID, month)
	if err != nil {
		t.Fatalf("get meter failed: %v", err)
	}
	if meter.ProjectsCreatedCount != limit {
		t.Errorf("denied reservation must not move the meter: got %d", meter.ProjectsCreatedCount)
	}

	// A different month gets a fresh meter.
	if _, err := usage.ReserveProjectSlot(ctx, user.ID, "2026-09", limit, "next month"); err != nil {
		t.Errorf("new month should start at zero: %v", err)
	}
}

func TestReserveProjectSlotConcurrentAtBoundary(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	usage := NewUsageRepository(db.Pool)
	ctx := context.Background()

	user := createTestUser(t, users)
	month := "2026-08"
	limit := 3

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = usage.ReserveProjectSlot(ctx, user.ID, month, limit, fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()

	won := 0
	for i, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrOverQuota):
		default:
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if won != limit {
		t.Errorf("exactly %d concurrent reservations must win, got %d", limit, won)
	}

	meter, _ := usage.GetMeter(ctx, user.ID, month)
	if meter.ProjectsCreatedCount != limit {
		t.Errorf("meter must equal the limit after the race, got %d", meter.ProjectsCreatedCount)
	}
}

func TestProjectOwnershipScoping(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	usage := NewUsageRepository(db.Pool)
	projects := NewProjectRepository(db.Pool)
	ctx := context.Background()

	owner := createTestUser(t, users)
	other := createTestUser(t, users)

	project, err := usage.ReserveProjectSlot(ctx, owner.ID, "2026-08", 10, "Mine")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := projects.GetOwned(ctx, project.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner lookup must be ErrNotFound, got %v", err)
	}
	if err := projects.UpdateTitle(ctx, project.ID, other.ID, "Stolen"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner rename must be ErrNotFound, got %v", err)
	}
	if err := projects.Delete(ctx, project.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner delete must be ErrNotFound, got %v", err)
	}

	if err := projects.UpdateTitle(ctx, project.ID, owner.ID, "Renamed"); err != nil {
		t.Fatalf("owner rename failed: %v", err)
	}
	got, err := projects.GetOwned(ctx, project.ID, owner.ID)
	if err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if got.Title != "Renamed" {
		t.Errorf("expected renamed title, got %q", got.Title)
	}
}

func TestRequirementVersioning(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	usage := NewUsageRepository(db.Pool)
	requirements := NewRequirementRepository(db.Pool)
	ctx := context.Background()

	user := createTestUser(t, users)
	project, err := usage.ReserveProjectSlot(ctx, user.ID, "2026-08", 10, "Versioned")
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	v1, err := requirements.CreateVersion(ctx, project.ID, "draft one", 1)
	if err != nil {
		t.Fatalf("create v1 failed: %v", err)
	}

	edited, err := requirements.UpdateContent(ctx, v1.ID, "draft one, edited")
	if err != nil {
		t.Fatalf("edit draft failed: %v", err)
	}
	if edited.VersionInt != 1 {
		t.Errorf("editing a draft must not bump the version, got %d", edited.VersionInt)
	}

	now := time.Now().UTC().Truncate(time.Second)
	approved, err := requirements.Approve(ctx, v1.ID, now)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved.Approved() {
		t.Fatal("approval did not stick")
	}

	// Idempotent approval keeps the original timestamp.
	again, err := requirements.Approve(ctx, v1.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("re-approve failed: %v", err)
	}
	if !again.ApprovedAt.Equal(*approved.ApprovedAt) {
		t.Errorf("re-approval must keep the first timestamp: %v vs %v", again.ApprovedAt, approved.ApprovedAt)
	}

	if _, err := requirements.UpdateContent(ctx, v1.ID, "sneaky edit"); !errors.Is(err, ErrApprovedImmutable) {
		t.Errorf("editing an approved version must fail, got %v", err)
	}

	v2, err := requirements.CreateVersion(ctx, project.ID, "draft two", 2)
	if err != nil {
		t.Fatalf("create v2 failed: %v", err)
	}
	latest, err := requirements.GetLatest(ctx, project.ID)
	if err != nil {
		t.Fatalf("get latest failed: %v", err)
	}
	if latest.ID != v2.ID || latest.VersionInt != 2 {
		t.Errorf("latest must be the new draft, got v%d", latest.VersionInt)
	}
}

func TestPlanUpsert(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	usage := NewUsageRepository(db.Pool)
	plans := NewPlanRepository(db.Pool)
	ctx := context.Background()

	user := createTestUser(t, users)
	project, err := usage.ReserveProjectSlot(ctx, user.ID, "2026-08", 10, "Planned")
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	if plan, err := plans.GetByProject(ctx, project.ID); err != nil || plan != nil {
		t.Fatalf("expected no plan yet, got %v / %v", plan, err)
	}

	if _, err := plans.Upsert(ctx, project.ID, "first"); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	updated, err := plans.Upsert(ctx, project.ID, "second")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if updated.ContentMd != "second" {
		t.Errorf("upsert must replace content, got %q", updated.ContentMd)
	}
}

func TestSubscriptionLatestActive(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.Pool)
	subs := NewSubscriptionRepository(db.Pool)
	ctx := context.Background()

	user := createTestUser(t, users)
	now := time.Now().UTC()

	expired := &entities.Subscription{
		UserID:               user.ID,
		Tier:                 entities.TierPro,
		Status:               entities.SubscriptionActive,
		CurrentPeriodEnd:     now.Add(-24 * time.Hour),
		StripeSubscriptionID: "sub_" + uuid.NewString(),
	}
	if err := subs.UpsertByStripeID(ctx, expired); err != nil {
		t.Fatalf("upsert expired failed: %v", err)
	}

	current := &entities.Subscription{
		UserID:               user.ID,
		Tier:                 entities.TierBasic,
		Status:               entities.SubscriptionActive,
		CurrentPeriodEnd:     now.Add(30 * 24 * time.Hour),
		StripeSubscriptionID: "sub_" + uuid.NewString(),
	}
	if err := subs.UpsertByStripeID(ctx, current); err != nil {
		t.Fatalf("upsert current failed: %v", err)
	}

	active, err := subs.GetLatestActive(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("get latest active failed: %v", err)
	}
	if active == nil || active.StripeSubscriptionID != current.StripeSubscriptionID {
		t.Fatalf("expected the unexpired subscription, got %+v", active)
	}

	// Re-delivering the same external id updates in place.
	current.Status = entities.SubscriptionCanceled
	if err := subs.UpsertByStripeID(ctx, current); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}
	if active, _ := subs.GetLatestActive(ctx, user.ID, now); active != nil {
		t.Errorf("canceled subscription must not read as active, got %+v", active)
	}
}
