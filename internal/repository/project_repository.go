package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetOwned returns the project only if it belongs to the user; missing and
// not-owned are indistinguishable (ErrNotFound).
func (r *ProjectRepository) GetOwned(ctx context.Context, projectID, userID string) (*entities.Project, error) {
	var project entities.Project
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, title, status, created_at, updated_at
		FROM projects WHERE id = $1 AND user_id = $2
	`, projectID, userID).Scan(
		&project.ID, &project.UserID, &project.Title, &project.Status,
		&project.CreatedAt, &project.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *ProjectRepository) ListByUser(ctx context.Context, userID string) ([]entities.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, title, status, created_at, updated_at
		FROM projects WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []entities.Project{}
	for rows.Next() {
		var p entities.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateTitle renames the project with a single ownership-guarded update.
// Zero affected rows means not found (or not owned); there is no separate
// existence check to race against.
func (r *ProjectRepository) UpdateTitle(ctx context.Context, projectID, userID, title string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE projects SET title = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, projectID, userID, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the project; messages, requirements, and the plan cascade.
func (r *ProjectRepository) Delete(ctx context.Context, projectID, userID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM projects WHERE id = $1 AND user_id = $2
	`, projectID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
