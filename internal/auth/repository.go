package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, created_at, updated_at`

// Repository handles admin user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by case-insensitive email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// EnsureUser inserts the user unless one with the same email exists. It reports whether a row was created.
func (r *Repository) EnsureUser(ctx context.Context, email, passwordHash, fullName string, role models.Role) (bool, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role)
		VALUES (LOWER($1), $2, $3, $4) ON CONFLICT (email) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, email, passwordHash, fullName, string(role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
