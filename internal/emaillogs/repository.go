package emaillogs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record stores the outcome of one delivery attempt. sendErr nil means sent.
func (r *Repository) Record(ctx context.Context, msg mailer.Message, sendErr error) error {
	status, errMsg := models.EmailLogStatusSent, ""
	var sentAt *time.Time
	if sendErr != nil {
		status, errMsg = models.EmailLogStatusFailed, sendErr.Error()
	} else {
		now := time.Now()
		sentAt = &now
	}
	const q = `INSERT INTO email_logs (event_id, submission_id, email_type, recipient_email, subject, status, sent_at, error_message)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, NULLIF($8,''))`
	_, err := r.pool.Exec(ctx, q, msg.EventID, msg.SubmissionID, msg.Type, msg.To, msg.Subject, status, sentAt, errMsg)
	return err
}

const selectColumns = `SELECT id, event_id, submission_id, email_type, recipient_email, COALESCE(subject,''), status, sent_at, COALESCE(error_message,''), created_at FROM email_logs`

// ListByEvent returns email logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` WHERE event_id = $1 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// ListRecent returns the newest email logs across the site.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*models.EmailLog, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// CountByStatus returns the number of logs per delivery status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM email_logs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func scanLogs(rows pgx.Rows) ([]*models.EmailLog, error) {
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.EventID, &el.SubmissionID, &el.EmailType, &el.RecipientEmail, &el.Subject, &el.Status, &el.SentAt, &el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
