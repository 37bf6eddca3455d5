package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/internal/submissions"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("event not found")
	}
	return err
}

// Create inserts a standalone event.
func (r *Repository) Create(ctx context.Context, ev *models.Event) error {
	const q = `INSERT INTO events (title, description, scheduled_at, duration_minutes, presenter_name, presenter_email, status, zoom_join_url, submission_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), $9)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, ev.Title, ev.Description, ev.ScheduledAt, ev.DurationMinutes, ev.PresenterName, ev.PresenterEmail,
		ev.Status, ev.ZoomJoinURL, ev.SubmissionID).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := submissions.ScanEvent(r.pool.QueryRow(ctx, `SELECT `+submissions.EventColumns+` FROM events WHERE id = $1`, id))
	return ev, notFound(err)
}

// GetByMeetingID returns the event hosted in a Zoom meeting.
func (r *Repository) GetByMeetingID(ctx context.Context, meetingID string) (*models.Event, error) {
	const q = `SELECT ` + submissions.EventColumns + ` FROM events WHERE zoom_meeting_id = $1 ORDER BY created_at DESC LIMIT 1`
	ev, err := submissions.ScanEvent(r.pool.QueryRow(ctx, q, meetingID))
	return ev, notFound(err)
}

// List returns all events latest first, or only public ones in date order.
func (r *Repository) List(ctx context.Context, publicOnly bool) ([]*models.Event, error) {
	q := `SELECT ` + submissions.EventColumns + ` FROM events ORDER BY scheduled_at DESC`
	if publicOnly {
		q = `SELECT ` + submissions.EventColumns + ` FROM events WHERE status IN ('SCHEDULED', 'COMPLETED') ORDER BY scheduled_at ASC`
	}
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*models.Event{}
	for rows.Next() {
		ev, err := submissions.ScanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// Upcoming returns up to limit scheduled events starting after now.
func (r *Repository) Upcoming(ctx context.Context, limit int) ([]*models.Event, error) {
	const q = `SELECT ` + submissions.EventColumns + ` FROM events
		WHERE status = 'SCHEDULED' AND scheduled_at >= NOW() ORDER BY scheduled_at ASC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*models.Event{}
	for rows.Next() {
		ev, err := submissions.ScanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// Update applies p and mirrors schedule and completion onto the linked submission.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p Patch) (*models.Event, *models.Submission, error) {
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}

	var ev *models.Event
	var presented *models.Submission
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var prev models.EventStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&prev); err != nil {
			return notFound(err)
		}
		if p.Status != nil && !prev.CanTransition(*p.Status) {
			return apperr.InvalidTransition(string(prev), string(*p.Status))
		}

		const q = `UPDATE events SET
				title = COALESCE($2, title),
				description = COALESCE($3, description),
				scheduled_at = COALESCE($4, scheduled_at),
				duration_minutes = COALESCE($5, duration_minutes),
				status = COALESCE($6, status),
				zoom_meeting_id = COALESCE($7, zoom_meeting_id),
				zoom_join_url = COALESCE($8, zoom_join_url),
				zoom_start_url = COALESCE($9, zoom_start_url),
				zoom_password = COALESCE($10, zoom_password),
				updated_at = NOW()
			WHERE id = $1 RETURNING ` + submissions.EventColumns
		var err error
		ev, err = submissions.ScanEvent(tx.QueryRow(ctx, q, id, p.Title, p.Description, p.ScheduledAt, p.DurationMinutes, status,
			p.ZoomMeetingID, p.ZoomJoinURL, p.ZoomStartURL, p.ZoomPassword))
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if ev.SubmissionID == nil {
			return nil
		}

		if p.ScheduledAt != nil {
			const syncSchedule = `UPDATE submissions SET scheduled_at = $2, updated_at = NOW() WHERE id = $1 AND event_id = $3`
			if _, err := tx.Exec(ctx, syncSchedule, *ev.SubmissionID, ev.ScheduledAt, ev.ID); err != nil {
				return fmt.Errorf("sync submission schedule: %w", err)
			}
		}
		if ev.Status == models.EventCompleted && prev != models.EventCompleted {
			const present = `UPDATE submissions SET status = $2, updated_at = NOW()
				WHERE id = $1 AND status = $3 RETURNING ` + submissions.SubmissionColumns
			presented, err = submissions.ScanSubmission(tx.QueryRow(ctx, present, *ev.SubmissionID,
				models.SubmissionPresented, models.SubmissionScheduled))
			if errors.Is(err, pgx.ErrNoRows) {
				presented = nil
				return nil
			}
			if err != nil {
				return fmt.Errorf("mark submission presented: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ev, presented, nil
}
