package settings

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seminar-hub/backend/internal/models"
)

const columns = `site_name, site_description, contact_email, submissions_open, max_submissions_per_week, updated_at`

// Repository handles the settings singleton.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a settings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scan(row pgx.Row) (*models.Settings, error) {
	var s models.Settings
	if err := row.Scan(&s.SiteName, &s.SiteDescription, &s.ContactEmail, &s.SubmissionsOpen, &s.MaxSubmissionsPerWeek, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get returns the settings row, creating it from defaults on first read.
func (r *Repository) Get(ctx context.Context, defaults models.Settings) (*models.Settings, error) {
	const ensure = `INSERT INTO settings (id, site_name, site_description, contact_email, submissions_open, max_submissions_per_week)
		VALUES (1, $1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, ensure, defaults.SiteName, defaults.SiteDescription, defaults.ContactEmail,
		defaults.SubmissionsOpen, defaults.MaxSubmissionsPerWeek); err != nil {
		return nil, err
	}
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM settings WHERE id = 1`))
}

// Save overwrites the singleton row.
func (r *Repository) Save(ctx context.Context, s *models.Settings) (*models.Settings, error) {
	const q = `INSERT INTO settings (id, site_name, site_description, contact_email, submissions_open, max_submissions_per_week, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			site_name = EXCLUDED.site_name,
			site_description = EXCLUDED.site_description,
			contact_email = EXCLUDED.contact_email,
			submissions_open = EXCLUDED.submissions_open,
			max_submissions_per_week = EXCLUDED.max_submissions_per_week,
			updated_at = NOW()
		RETURNING ` + columns
	return scan(r.pool.QueryRow(ctx, q, s.SiteName, s.SiteDescription, s.ContactEmail, s.SubmissionsOpen, s.MaxSubmissionsPerWeek))
}
