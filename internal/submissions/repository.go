package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/database"
)

// SubmissionColumns selects a full submission row in ScanSubmission order.
const SubmissionColumns = `id, title, abstract, author_name, author_email, author_affiliation, COALESCE(author_bio,''),
	COALESCE(co_authors,''), COALESCE(methodology,''), keywords, research_field, COALESCE(paper_key,''), status,
	submitted_at, reviewed_at, scheduled_at, event_id, updated_at`

// EventColumns selects a full event row in ScanEvent order.
const EventColumns = `id, title, description, scheduled_at, duration_minutes, presenter_name, presenter_email, status,
	COALESCE(zoom_meeting_id,''), COALESCE(zoom_join_url,''), COALESCE(zoom_start_url,''), COALESCE(zoom_password,''),
	submission_id, created_at, updated_at`

// Repository handles submission persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a submission repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ScanSubmission reads a row selected with SubmissionColumns.
func ScanSubmission(row pgx.Row) (*models.Submission, error) {
	var s models.Submission
	err := row.Scan(&s.ID, &s.Title, &s.Abstract, &s.AuthorName, &s.AuthorEmail, &s.AuthorAffiliation, &s.AuthorBio,
		&s.CoAuthors, &s.Methodology, &s.Keywords, &s.ResearchField, &s.PaperKey, &s.Status,
		&s.SubmittedAt, &s.ReviewedAt, &s.ScheduledAt, &s.EventID, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ScanEvent reads a row selected with EventColumns.
func ScanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.ScheduledAt, &e.DurationMinutes, &e.PresenterName, &e.PresenterEmail, &e.Status,
		&e.ZoomMeetingID, &e.ZoomJoinURL, &e.ZoomStartURL, &e.ZoomPassword,
		&e.SubmissionID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("submission not found")
	}
	return err
}

// Create inserts a submission and fills its generated fields.
func (r *Repository) Create(ctx context.Context, s *models.Submission) error {
	const q = `INSERT INTO submissions (title, abstract, author_name, author_email, author_affiliation, author_bio, co_authors,
			methodology, keywords, research_field, paper_key, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), $9, $10, NULLIF($11,''), $12, $13)
		RETURNING id, updated_at`
	return r.pool.QueryRow(ctx, q, s.Title, s.Abstract, s.AuthorName, s.AuthorEmail, s.AuthorAffiliation, s.AuthorBio, s.CoAuthors,
		s.Methodology, s.Keywords, s.ResearchField, s.PaperKey, s.Status, s.SubmittedAt).
		Scan(&s.ID, &s.UpdatedAt)
}

// GetByID returns a submission by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	s, err := ScanSubmission(r.pool.QueryRow(ctx, `SELECT `+SubmissionColumns+` FROM submissions WHERE id = $1`, id))
	return s, notFound(err)
}

// List returns submissions newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *models.SubmissionStatus) ([]*models.Submission, error) {
	q := `SELECT ` + SubmissionColumns + ` FROM submissions`
	var args []interface{}
	if status != nil {
		q += ` WHERE status = $1`
		args = append(args, *status)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY submitted_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*models.Submission{}
	for rows.Next() {
		s, err := ScanSubmission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// UpdateStatus changes the status only if the row still holds from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.SubmissionStatus, reviewedAt *time.Time) (*models.Submission, error) {
	const q = `UPDATE submissions SET status = $3, reviewed_at = COALESCE($4, reviewed_at), updated_at = NOW()
		WHERE id = $1 AND status = $2 RETURNING ` + SubmissionColumns
	s, err := ScanSubmission(r.pool.QueryRow(ctx, q, id, from, to, reviewedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, apperr.Conflict("submission status changed concurrently, reload and retry")
	}
	return s, err
}

// Schedule locks the submission, inserts ev and links the pair in one transaction.
func (r *Repository) Schedule(ctx context.Context, id uuid.UUID, ev *models.Event, now time.Time) (*models.Submission, error) {
	var out *models.Submission
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := ScanSubmission(tx.QueryRow(ctx, `SELECT `+SubmissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		if cur.EventID != nil || cur.Status == models.SubmissionScheduled {
			return apperr.Conflict("submission already has an event")
		}
		if !CanTransition(cur.Status, models.SubmissionScheduled) {
			return apperr.InvalidTransition(string(cur.Status), string(models.SubmissionScheduled))
		}

		const insertEvent = `INSERT INTO events (title, description, scheduled_at, duration_minutes, presenter_name, presenter_email,
				status, zoom_join_url, submission_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), $9)
			RETURNING id, created_at, updated_at`
		err = tx.QueryRow(ctx, insertEvent, ev.Title, ev.Description, ev.ScheduledAt, ev.DurationMinutes, ev.PresenterName, ev.PresenterEmail,
			ev.Status, ev.ZoomJoinURL, id).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
		if database.IsUniqueViolation(err, "uq_events_submission_id") {
			return apperr.Conflict("submission already has an event")
		}
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		const link = `UPDATE submissions SET status = $2, scheduled_at = $3, event_id = $4,
				reviewed_at = COALESCE(reviewed_at, $5), updated_at = NOW()
			WHERE id = $1 RETURNING ` + SubmissionColumns
		out, err = ScanSubmission(tx.QueryRow(ctx, link, id, models.SubmissionScheduled, ev.ScheduledAt, ev.ID, now))
		if err != nil {
			return fmt.Errorf("link submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountSince returns the number of submissions received at or after since and the earliest such time.
func (r *Repository) CountSince(ctx context.Context, since time.Time) (int, *time.Time, error) {
	var n int
	var oldest *time.Time
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), MIN(submitted_at) FROM submissions WHERE submitted_at >= $1`, since).Scan(&n, &oldest)
	return n, oldest, err
}

// CountByStatus returns the number of submissions in each status.
func (r *Repository) CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[models.SubmissionStatus]int, len(models.SubmissionStatuses))
	for _, st := range models.SubmissionStatuses {
		out[st] = 0
	}
	for rows.Next() {
		var st models.SubmissionStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// EventByID returns the event linked to a submission.
func (r *Repository) EventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := ScanEvent(r.pool.QueryRow(ctx, `SELECT `+EventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("event not found")
	}
	return ev, err
}
