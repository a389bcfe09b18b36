package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

// GetMeter returns the usage meter for (user, month). A missing row reads as
// zero usage.
func (r *UsageRepository) GetMeter(ctx context.Context, userID, month string) (*entities.UsageMeter, error) {
	meter := entities.UsageMeter{UserID: userID, Month: month}
	err := r.db.QueryRow(ctx, `
		SELECT projects_created_count FROM usage_meters
		WHERE user_id = $1 AND month = $2
	`, userID, month).Scan(&meter.ProjectsCreatedCount)
	if err == pgx.ErrNoRows {
		return &entities.UsageMeter{UserID: userID, Month: month}, nil
	}
	if err != nil {
		return nil, err
	}
	return &meter, nil
}

// ReserveProjectSlot atomically reserves one unit of the monthly project
// quota and creates the project row, all inside a single transaction. The
// increment is guarded by the limit in SQL, so two concurrent calls at
// count = limit-1 cannot both succeed: the guard serializes them on the
// meter row and the loser sees zero affected rows. Returns ErrOverQuota in
// that case; the transaction is rolled back and no project is created.
func (r *UsageRepository) ReserveProjectSlot(ctx context.Context, userID, month string, limit int, title string) (*entities.Project, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO usage_meters (user_id, month)
		VALUES ($1, $2)
		ON CONFLICT (user_id, month) DO NOTHING
	`, userID, month); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE usage_meters
		SET projects_created_count = projects_created_count + 1
		WHERE user_id = $1 AND month = $2 AND projects_created_count < $3
	`, userID, month, limit)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrOverQuota
	}

	var project entities.Project
	err = tx.QueryRow(ctx, `
		INSERT INTO projects (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, title, status, created_at, updated_at
	`, uuid.NewString(), userID, title).Scan(
		&project.ID, &project.UserID, &project.Title, &project.Status,
		&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &project, nil
}
