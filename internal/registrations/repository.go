package registrations

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seminar-hub/backend/internal/models"
)

const columns = `id, name, email, COALESCE(affiliation,''), COALESCE(interests,''), sections, created_at`

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts a registration, or refreshes the existing one for the same email.
// Sections are merged so re-registering never unsubscribes.
func (r *Repository) Upsert(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (name, email, affiliation, interests, sections)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5)
		ON CONFLICT (LOWER(email)) DO UPDATE SET
			name = EXCLUDED.name,
			affiliation = COALESCE(EXCLUDED.affiliation, registrations.affiliation),
			interests = COALESCE(EXCLUDED.interests, registrations.interests),
			sections = ARRAY(SELECT DISTINCT unnest(registrations.sections || EXCLUDED.sections) ORDER BY 1)
		RETURNING ` + columns
	return r.pool.QueryRow(ctx, q, reg.Name, reg.Email, reg.Affiliation, reg.Interests, reg.Sections).
		Scan(&reg.ID, &reg.Name, &reg.Email, &reg.Affiliation, &reg.Interests, &reg.Sections, &reg.CreatedAt)
}

// List returns every registration, newest first.
func (r *Repository) List(ctx context.Context) ([]*models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM registrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scan(rows)
}

// Recipients returns registrations subscribed to section, or all when section is empty.
func (r *Repository) Recipients(ctx context.Context, section string) ([]*models.Registration, error) {
	q := `SELECT ` + columns + ` FROM registrations ORDER BY created_at`
	var args []interface{}
	if section != "" {
		q = `SELECT ` + columns + ` FROM registrations WHERE sections @> ARRAY[$1]::text[] ORDER BY created_at`
		args = append(args, section)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scan(rows)
}

// Count returns the number of registrations.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n)
	return n, err
}

func scan(rows pgx.Rows) ([]*models.Registration, error) {
	defer rows.Close()
	list := []*models.Registration{}
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Email, &reg.Affiliation, &reg.Interests, &reg.Sections, &reg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &reg)
	}
	return list, rows.Err()
}
