package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, projectID string, role entities.MessageRole, content string) (*entities.Message, error) {
	var msg entities.Message
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, project_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, role, content, created_at
	`, uuid.NewString(), projectID, role, content).Scan(
		&msg.ID, &msg.ProjectID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns up to limit messages in creation order, ownership-scoped
// through the project's owner.
func (r *MessageRepository) List(ctx context.Context, projectID, userID string, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.project_id, m.role, m.content, m.created_at
		FROM messages m
		JOIN projects p ON p.id = m.project_id
		WHERE m.project_id = $1 AND p.user_id = $2
		ORDER BY m.created_at ASC
		LIMIT $3
	`, projectID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListRecent returns the most recent limit messages, oldest first.
func (r *MessageRepository) ListRecent(ctx context.Context, projectID, userID string, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, project_id, role, content, created_at FROM (
			SELECT m.id, m.project_id, m.role, m.content, m.created_at
			FROM messages m
			JOIN projects p ON p.id = m.project_id
			WHERE m.project_id = $1 AND p.user_id = $2
			ORDER BY m.created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, projectID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]entities.Message, error) {
	messages := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
