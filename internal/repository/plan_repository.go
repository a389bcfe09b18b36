package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetByProject returns the project's plan, or nil when none exists.
func (r *PlanRepository) GetByProject(ctx context.Context, projectID string) (*entities.Plan, error) {
	var plan entities.Plan
	err := r.db.QueryRow(ctx, `
		SELECT project_id, content_md, created_at, updated_at
		FROM plans WHERE project_id = $1
	`, projectID).Scan(&plan.ProjectID, &plan.ContentMd, &plan.CreatedAt, &plan.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// Upsert writes the plan content, creating the row on first save.
func (r *PlanRepository) Upsert(ctx context.Context, projectID, contentMd string) (*entities.Plan, error) {
	var plan entities.Plan
	err := r.db.QueryRow(ctx, `
		INSERT INTO plans (project_id, content_md)
		VALUES ($1, $2)
		ON CONFLICT (project_id) DO UPDATE SET
			content_md = EXCLUDED.content_md,
			updated_at = now()
		RETURNING project_id, content_md, created_at, updated_at
	`, projectID, contentMd).Scan(&plan.ProjectID, &plan.ContentMd, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
