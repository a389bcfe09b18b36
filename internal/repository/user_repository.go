package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reqforge/internal/entities"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureByEmail idempotently resolves a user by email, creating the row on
// first sight. Profile fields are only overwritten with non-empty values so
// concurrent upserts cannot blank them out.
func (r *UserRepository) EnsureByEmail(ctx context.Context, email, name, image string) (*entities.User, error) {
	var user entities.User
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			image = CASE WHEN EXCLUDED.image <> '' THEN EXCLUDED.image ELSE users.image END,
			updated_at = now()
		RETURNING id, email, name, image, password_hash, created_at, updated_at
	`, uuid.NewString(), email, name, image).Scan(
		&user.ID, &user.Email, &user.Name, &user.Image, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	var user entities.User
	err := r.db.QueryRow(ctx, `
		SELECT id, email, name, image, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Name, &user.Image, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, name, image, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.Name, user.Image, user.PasswordHash)
	return err
}
