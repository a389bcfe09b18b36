package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type RequirementRepository struct {
	db *pgxpool.Pool
}

func NewRequirementRepository(db *pgxpool.Pool) *RequirementRepository {
	return &RequirementRepository{db: db}
}

// GetLatest returns the highest-versioned requirement for the project, or
// nil when none exists yet.
func (r *RequirementRepository) GetLatest(ctx context.Context, projectID string) (*entities.Requirement, error) {
	var req entities.Requirement
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, version_int, content_md, approved_at, created_at, updated_at
		FROM requirements
		WHERE project_id = $1
		ORDER BY version_int DESC
		LIMIT 1
	`, projectID).Scan(&req.ID, &req.ProjectID, &req.VersionInt, &req.ContentMd,
		&req.ApprovedAt, &req.CreatedAt, &req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateVersion appends a new requirement version. The unique
// (project_id, version_int) constraint keeps versions monotonic even under
// concurrent generation.
func (r *RequirementRepository) CreateVersion(ctx context.Context, projectID, contentMd string, versionInt int) (*entities.Requirement, error) {
	var req entities.Requirement
	err := r.db.QueryRow(ctx, `
		INSERT INTO requirements (id, project_id, version_int, content_md)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, version_int, content_md, approved_at, created_at, updated_at
	`, uuid.NewString(), projectID, versionInt, contentMd).Scan(
		&req.ID, &req.ProjectID, &req.VersionInt, &req.ContentMd,
		&req.ApprovedAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateContent edits a draft in place. The approved_at guard makes the
// write a no-op against an approved version.
func (r *RequirementRepository) UpdateContent(ctx context.Context, id, contentMd string) (*entities.Requirement, error) {
	var req entities.Requirement
	err := r.db.QueryRow(ctx, `
		UPDATE requirements SET content_md = $2, updated_at = now()
		WHERE id = $1 AND approved_at IS NULL
		RETURNING id, project_id, version_int, content_md, approved_at, created_at, updated_at
	`, id, contentMd).Scan(&req.ID, &req.ProjectID, &req.VersionInt, &req.ContentMd,
		&req.ApprovedAt, &req.CreatedAt, &req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrApprovedImmutable
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Approve stamps the approval time. Approving an already-approved version
// keeps the original timestamp.
func (r *RequirementRepository) Approve(ctx context.Context, id string, now time.Time) (*entities.Requirement, error) {
	var req entities.Requirement
	err := r.db.QueryRow(ctx, `
		UPDATE requirements SET approved_at = COALESCE(approved_at, $2), updated_at = now()
		WHERE id = $1
		RETURNING id, project_id, version_int, content_md, approved_at, created_at, updated_at
	`, id, now).Scan(&req.ID, &req.ProjectID, &req.VersionInt, &req.ContentMd,
		&req.ApprovedAt, &req.CreatedAt, &req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}
