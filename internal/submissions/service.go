// Package submissions owns paper intake and the submission review lifecycle.
package submissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/storage"
	"github.com/seminar-hub/backend/pkg/validator"
)

// CapWindow is the trailing window the weekly submission cap counts over.
const CapWindow = 7 * 24 * time.Hour

const defaultNotifyTimeout = 3 * time.Second

var (
	created = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seminar_submissions_created_total",
		Help: "Submissions accepted for review.",
	})
	transitioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seminar_submission_transitions_total",
		Help: "Submission status transitions applied.",
	}, []string{"from", "to"})
)

// Store persists submissions. Implementations return apperr kinds for missing rows and lost races.
type Store interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	List(ctx context.Context, status *models.SubmissionStatus) ([]*models.Submission, error)
	// UpdateStatus moves id from one status to another. Conflict if the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.SubmissionStatus, reviewedAt *time.Time) (*models.Submission, error)
	// Schedule atomically inserts ev and links it to the submission, moving it to SCHEDULED.
	Schedule(ctx context.Context, id uuid.UUID, ev *models.Event, now time.Time) (*models.Submission, error)
	// CountSince returns how many submissions arrived at or after since and the oldest of them.
	CountSince(ctx context.Context, since time.Time) (int, *time.Time, error)
	EventByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// SettingsProvider exposes the site settings that gate intake.
type SettingsProvider interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// Presigner issues download links for uploaded manuscripts.
type Presigner interface {
	PresignPaperDownload(ctx context.Context, key string) (string, error)
	PaperExists(ctx context.Context, key string) (bool, error)
}

// CreateInput is the public submission form.
type CreateInput struct {
	Title             string `json:"title" validate:"required,min=5,max=300"`
	Abstract          string `json:"abstract" validate:"required,min=50,max=5000"`
	AuthorName        string `json:"author_name" validate:"required,min=2,max=200"`
	AuthorEmail       string `json:"author_email" validate:"required,email"`
	AuthorAffiliation string `json:"author_affiliation" validate:"required,min=2,max=300"`
	AuthorBio         string `json:"author_bio" validate:"max=2000"`
	CoAuthors         string `json:"co_authors" validate:"max=1000"`
	Methodology       string `json:"methodology" validate:"max=2000"`
	Keywords          string `json:"keywords" validate:"required,min=3,max=500"`
	ResearchField     string `json:"research_field" validate:"required,min=2,max=200"`
	PaperKey          string `json:"paper_key"`
}

func (in *CreateInput) normalize() {
	for _, f := range []*string{&in.Title, &in.Abstract, &in.AuthorName, &in.AuthorAffiliation, &in.AuthorBio,
		&in.CoAuthors, &in.Methodology, &in.Keywords, &in.ResearchField, &in.PaperKey} {
		*f = strings.TrimSpace(*f)
	}
	in.AuthorEmail = strings.ToLower(strings.TrimSpace(in.AuthorEmail))
}

// ScheduleInput schedules a seminar for a submission.
type ScheduleInput struct {
	SubmissionID    uuid.UUID `json:"submission_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	ZoomJoinURL     string    `json:"zoom_join_url"`
}

// Service implements the submission lifecycle.
type Service struct {
	store     Store
	settings  SettingsProvider
	composer  *mailer.Composer
	notifier  mailer.Notifier
	presigner Presigner
	admins    []string
	logger    *zap.Logger

	now           func() time.Time
	notifyTimeout time.Duration
}

// Config carries the collaborators of a Service. Presigner may be nil when S3 is not configured.
type Config struct {
	Store           Store
	Settings        SettingsProvider
	Composer        *mailer.Composer
	Notifier        mailer.Notifier
	Presigner       Presigner
	AdminRecipients []string
	Logger          *zap.Logger
}

// NewService creates a submissions service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         cfg.Store,
		settings:      cfg.Settings,
		composer:      cfg.Composer,
		notifier:      cfg.Notifier,
		presigner:     cfg.Presigner,
		admins:        cfg.AdminRecipients,
		logger:        logger,
		now:           time.Now,
		notifyTimeout: defaultNotifyTimeout,
	}
}

// Create validates and persists a new PENDING submission. No email is sent.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Submission, error) {
	in.normalize()
	if err := validator.Struct(ctx, "invalid submission", in); err != nil {
		return nil, err
	}
	if in.PaperKey != "" && !storage.ValidPaperKey(in.PaperKey) {
		return nil, apperr.Validation("invalid submission", apperr.Issue{Field: "paper_key", Message: "is not an uploaded paper"})
	}
	if in.PaperKey != "" && s.presigner != nil {
		ok, err := s.presigner.PaperExists(ctx, in.PaperKey)
		if err != nil {
			return nil, apperr.External("check uploaded paper", err)
		}
		if !ok {
			return nil, apperr.Validation("invalid submission", apperr.Issue{Field: "paper_key", Message: "upload not found"})
		}
	}

	now := s.now()
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !st.SubmissionsOpen {
		return nil, apperr.Forbidden("submissions are currently closed")
	}
	if st.MaxSubmissionsPerWeek > 0 {
		n, oldest, err := s.store.CountSince(ctx, now.Add(-CapWindow))
		if err != nil {
			return nil, fmt.Errorf("count recent submissions: %w", err)
		}
		if n >= st.MaxSubmissionsPerWeek {
			retry := time.Hour
			if oldest != nil {
				retry = oldest.Add(CapWindow).Sub(now)
			}
			if retry < time.Second {
				retry = time.Second
			}
			return nil, apperr.RateLimited(retry)
		}
	}

	sub := &models.Submission{
		Title:             in.Title,
		Abstract:          in.Abstract,
		AuthorName:        in.AuthorName,
		AuthorEmail:       in.AuthorEmail,
		AuthorAffiliation: in.AuthorAffiliation,
		AuthorBio:         in.AuthorBio,
		CoAuthors:         in.CoAuthors,
		Methodology:       in.Methodology,
		Keywords:          in.Keywords,
		ResearchField:     in.ResearchField,
		PaperKey:          in.PaperKey,
		Status:            models.SubmissionPending,
		SubmittedAt:       now,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	created.Inc()
	return sub, nil
}

// NotifyCreated enqueues the author confirmation and one alert per admin recipient.
// Failures are logged and never returned.
func (s *Service) NotifyCreated(ctx context.Context, sub *models.Submission) {
	msgs := make([]mailer.Message, 0, len(s.admins)+1)
	if msg, err := s.composer.SubmissionReceived(sub); err == nil {
		msgs = append(msgs, msg)
	} else {
		s.logger.Error("render confirmation", zap.Error(err))
	}
	for _, to := range s.admins {
		msg, err := s.composer.SubmissionAlert(sub, to)
		if err != nil {
			s.logger.Error("render admin alert", zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	s.dispatch(ctx, msgs...)
}

// Submit creates a submission and then notifies the author and admins.
func (s *Service) Submit(ctx context.Context, in CreateInput) (*models.Submission, error) {
	sub, err := s.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.NotifyCreated(ctx, sub)
	return sub, nil
}

// SetStatus applies a review decision. Moving to the current status returns the record unchanged.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to models.SubmissionStatus) (*models.Submission, error) {
	if !to.Valid() {
		return nil, apperr.Validation("invalid status", apperr.Issue{Field: "status", Message: "is not a known status"})
	}
	cur, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == to {
		return cur, nil
	}
	if !CanTransition(cur.Status, to) {
		return nil, apperr.InvalidTransition(string(cur.Status), string(to))
	}
	if to == models.SubmissionScheduled {
		return nil, apperr.Validation("schedule a submission by creating an event with POST /events",
			apperr.Issue{Field: "status", Message: "SCHEDULED requires an event"})
	}
	if to == models.SubmissionPresented {
		return nil, apperr.Validation("a submission is presented when its event is marked COMPLETED",
			apperr.Issue{Field: "status", Message: "PRESENTED follows the event"})
	}

	var reviewedAt *time.Time
	if stampsReview(to) {
		now := s.now()
		reviewedAt = &now
	}
	updated, err := s.store.UpdateStatus(ctx, id, cur.Status, to, reviewedAt)
	if err != nil {
		return nil, err
	}
	transitioned.WithLabelValues(string(cur.Status), string(to)).Inc()
	s.logger.Info("submission status changed",
		zap.String("submission_id", id.String()),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(to)),
	)
	if notifiesAuthor(to) {
		s.notifyStatus(ctx, updated, nil)
	}
	return updated, nil
}

// ScheduleEvent creates the seminar event for a submission and moves it to SCHEDULED.
func (s *Service) ScheduleEvent(ctx context.Context, in ScheduleInput) (*models.SubmissionWithEvent, error) {
	var issues []apperr.Issue
	if in.SubmissionID == uuid.Nil {
		issues = append(issues, apperr.Issue{Field: "submission_id", Message: "is required"})
	}
	if in.ScheduledAt.IsZero() {
		issues = append(issues, apperr.Issue{Field: "scheduled_at", Message: "is required"})
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = models.DefaultEventDurationMinutes
	}
	if in.DurationMinutes < 0 || in.DurationMinutes > 600 {
		issues = append(issues, apperr.Issue{Field: "duration_minutes", Message: "must be between 1 and 600"})
	}
	if len(issues) > 0 {
		return nil, apperr.Validation("invalid schedule request", issues...)
	}

	cur, err := s.store.GetByID(ctx, in.SubmissionID)
	if err != nil {
		return nil, err
	}
	if cur.EventID != nil {
		return nil, apperr.Conflict("submission already has an event")
	}
	if !CanTransition(cur.Status, models.SubmissionScheduled) {
		return nil, apperr.InvalidTransition(string(cur.Status), string(models.SubmissionScheduled))
	}

	ev := &models.Event{
		Title:           cur.Title,
		Description:     cur.Abstract,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		PresenterName:   cur.AuthorName,
		PresenterEmail:  cur.AuthorEmail,
		Status:          models.EventScheduled,
		ZoomJoinURL:     strings.TrimSpace(in.ZoomJoinURL),
		SubmissionID:    &cur.ID,
	}
	updated, err := s.store.Schedule(ctx, cur.ID, ev, s.now())
	if err != nil {
		return nil, err
	}
	transitioned.WithLabelValues(string(cur.Status), string(models.SubmissionScheduled)).Inc()
	s.logger.Info("submission scheduled",
		zap.String("submission_id", cur.ID.String()),
		zap.String("event_id", ev.ID.String()),
		zap.Time("scheduled_at", ev.ScheduledAt),
	)
	s.notifyStatus(ctx, updated, ev)
	return &models.SubmissionWithEvent{Submission: *updated, Event: ev}, nil
}

// Get returns a submission and its linked event, if any.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.SubmissionWithEvent, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &models.SubmissionWithEvent{Submission: *sub}
	if sub.EventID != nil {
		ev, err := s.store.EventByID(ctx, *sub.EventID)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
		out.Event = ev
	}
	return out, nil
}

// List returns submissions, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, status string) ([]*models.Submission, error) {
	if status == "" {
		return s.store.List(ctx, nil)
	}
	st := models.SubmissionStatus(strings.ToUpper(status))
	if !st.Valid() {
		return nil, apperr.Validation("invalid status filter", apperr.Issue{Field: "status", Message: "is not a known status"})
	}
	return s.store.List(ctx, &st)
}

// PaperURL returns a short-lived download link for the submission's manuscript.
func (s *Service) PaperURL(ctx context.Context, id uuid.UUID) (string, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if sub.PaperKey == "" {
		return "", apperr.NotFound("submission has no uploaded paper")
	}
	if s.presigner == nil {
		return "", apperr.Unavailable("paper storage is not configured")
	}
	url, err := s.presigner.PresignPaperDownload(ctx, sub.PaperKey)
	if err != nil {
		return "", apperr.External("could not sign paper download", err)
	}
	return url, nil
}

func (s *Service) notifyStatus(ctx context.Context, sub *models.Submission, ev *models.Event) {
	msg, err := s.composer.StatusUpdate(sub, ev)
	if err != nil {
		s.logger.Error("render status update", zap.Error(err))
		return
	}
	s.dispatch(ctx, msg)
}

// dispatch hands messages to the notifier with a bounded timeout that outlives request cancellation.
func (s *Service) dispatch(ctx context.Context, msgs ...mailer.Message) {
	if s.notifier == nil || len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	for _, msg := range msgs {
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.logger.Warn("notification not queued",
				zap.String("type", msg.Type),
				zap.String("to", msg.To),
				zap.Error(err),
			)
		}
	}
}
