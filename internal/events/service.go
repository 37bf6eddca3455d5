// Package events manages seminar sessions, their Zoom meetings and registrant announcements.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/mailer"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/internal/zoom"
	"github.com/seminar-hub/backend/pkg/validator"
)

const (
	defaultSendTimeout = 10 * time.Second
	sendConcurrency    = 4
)

// Store persists events.
type Store interface {
	Create(ctx context.Context, ev *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetByMeetingID(ctx context.Context, meetingID string) (*models.Event, error)
	List(ctx context.Context, publicOnly bool) ([]*models.Event, error)
	// Update applies p in one transaction and keeps the linked submission in sync.
	// It returns the submission when completing the event moved it to PRESENTED.
	Update(ctx context.Context, id uuid.UUID, p Patch) (*models.Event, *models.Submission, error)
}

// RecipientSource lists registrations, optionally only those subscribed to a section.
type RecipientSource interface {
	Recipients(ctx context.Context, section string) ([]*models.Registration, error)
}

// DeliveryRecorder writes one email log per attempt.
type DeliveryRecorder interface {
	Record(ctx context.Context, msg mailer.Message, sendErr error) error
}

// MeetingCreator creates Zoom meetings.
type MeetingCreator interface {
	CreateMeeting(ctx context.Context, req zoom.MeetingRequest) (*zoom.Meeting, error)
}

// CreateInput is a standalone event such as a roundtable.
type CreateInput struct {
	Title           string    `json:"title" validate:"required,min=2,max=300"`
	Description     string    `json:"description" validate:"max=5000"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=1,max=600"`
	PresenterName   string    `json:"presenter_name" validate:"required,min=2,max=200"`
	PresenterEmail  string    `json:"presenter_email" validate:"required,email"`
	ZoomJoinURL     string    `json:"zoom_join_url" validate:"omitempty,url"`
}

// Patch is a partial event update. Nil fields are left unchanged.
type Patch struct {
	Title           *string             `json:"title" validate:"omitempty,min=2,max=300"`
	Description     *string             `json:"description" validate:"omitempty,max=5000"`
	ScheduledAt     *time.Time          `json:"scheduled_at"`
	DurationMinutes *int                `json:"duration_minutes" validate:"omitempty,min=1,max=600"`
	Status          *models.EventStatus `json:"status"`
	ZoomMeetingID   *string             `json:"zoom_meeting_id" validate:"omitempty,max=64"`
	ZoomJoinURL     *string             `json:"zoom_join_url" validate:"omitempty,url"`
	ZoomStartURL    *string             `json:"zoom_start_url" validate:"omitempty,url"`
	ZoomPassword    *string             `json:"zoom_password" validate:"omitempty,max=64"`
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Description == nil && p.ScheduledAt == nil && p.DurationMinutes == nil && p.Status == nil &&
		p.ZoomMeetingID == nil && p.ZoomJoinURL == nil && p.ZoomStartURL == nil && p.ZoomPassword == nil
}

// NotifyResult summarises an announcement batch.
type NotifyResult struct {
	Sent            int `json:"sent"`
	Failed          int `json:"failed"`
	TotalRecipients int `json:"total_recipients"`
}

// Service implements event operations.
type Service struct {
	store      Store
	recipients RecipientSource
	sender     mailer.Sender
	recorder   DeliveryRecorder
	notifier   mailer.Notifier
	composer   *mailer.Composer
	meetings   MeetingCreator
	logger     *zap.Logger

	sendTimeout time.Duration
}

// Config carries the collaborators of a Service. Meetings is nil when Zoom is not configured.
type Config struct {
	Store       Store
	Recipients  RecipientSource
	Sender      mailer.Sender
	Recorder    DeliveryRecorder
	Notifier    mailer.Notifier
	Composer    *mailer.Composer
	Meetings    MeetingCreator
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// NewService creates an events service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Service{
		store:       cfg.Store,
		recipients:  cfg.Recipients,
		sender:      cfg.Sender,
		recorder:    cfg.Recorder,
		notifier:    cfg.Notifier,
		composer:    cfg.Composer,
		meetings:    cfg.Meetings,
		logger:      logger,
		sendTimeout: timeout,
	}
}

// CreateStandalone creates an event that no submission backs.
func (s *Service) CreateStandalone(ctx context.Context, in CreateInput) (*models.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.PresenterName = strings.TrimSpace(in.PresenterName)
	in.PresenterEmail = strings.ToLower(strings.TrimSpace(in.PresenterEmail))
	if err := validator.Struct(ctx, "invalid event", in); err != nil {
		return nil, err
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = models.DefaultEventDurationMinutes
	}
	ev := &models.Event{
		Title:           in.Title,
		Description:     strings.TrimSpace(in.Description),
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		PresenterName:   in.PresenterName,
		PresenterEmail:  in.PresenterEmail,
		Status:          models.EventScheduled,
		ZoomJoinURL:     strings.TrimSpace(in.ZoomJoinURL),
	}
	if err := s.store.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("standalone event created", zap.String("event_id", ev.ID.String()))
	return ev, nil
}

// Update applies a partial update. Rescheduling moves the linked submission's scheduled_at with it,
// and completing the event marks a scheduled submission PRESENTED.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*models.Event, error) {
	if p.empty() {
		return nil, apperr.Validation("nothing to update")
	}
	if err := validator.Struct(ctx, "invalid event update", p); err != nil {
		return nil, err
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, apperr.Validation("invalid event update", apperr.Issue{Field: "status", Message: "is not a known event status"})
	}
	if p.ScheduledAt != nil {
		if p.ScheduledAt.IsZero() {
			return nil, apperr.Validation("invalid event update", apperr.Issue{Field: "scheduled_at", Message: "must be a valid time"})
		}
		at := p.ScheduledAt.UTC()
		p.ScheduledAt = &at
	}

	ev, presented, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if presented != nil {
		s.logger.Info("submission presented", zap.String("submission_id", presented.ID.String()), zap.String("event_id", ev.ID.String()))
		s.notifyPresented(ctx, presented, ev)
	}
	return ev, nil
}

// SetStatusByMeeting updates the event hosted in a Zoom meeting.
func (s *Service) SetStatusByMeeting(ctx context.Context, meetingID string, status models.EventStatus) error {
	ev, err := s.store.GetByMeetingID(ctx, meetingID)
	if err != nil {
		return err
	}
	if ev.Status == status || !ev.Status.CanTransition(status) {
		s.logger.Debug("zoom status ignored", zap.String("event_id", ev.ID.String()),
			zap.String("from", string(ev.Status)), zap.String("to", string(status)))
		return nil
	}
	_, err = s.Update(ctx, ev.ID, Patch{Status: &status})
	return err
}

// List returns every event, latest first.
func (s *Service) List(ctx context.Context) ([]*models.Event, error) {
	return s.store.List(ctx, false)
}

// Get returns the full event record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return s.store.GetByID(ctx, id)
}

// ListPublic returns SCHEDULED and COMPLETED events in their public shape, in date order.
func (s *Service) ListPublic(ctx context.Context) ([]models.PublicEvent, error) {
	list, err := s.store.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicEvent, 0, len(list))
	for _, ev := range list {
		if ev.Status.Public() {
			out = append(out, ev.ToPublic())
		}
	}
	return out, nil
}

// GetPublic returns a public event. Events in other statuses are reported as missing.
func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*models.PublicEvent, error) {
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ev.Status.Public() {
		return nil, apperr.NotFound("event not found")
	}
	pub := ev.ToPublic()
	return &pub, nil
}

// NotifyRegistrants emails a seminar announcement to every registrant, or to those subscribed to section.
// Sends run with a bounded timeout each; failures are counted and logged, never abort the batch.
func (s *Service) NotifyRegistrants(ctx context.Context, eventID uuid.UUID, section string) (*NotifyResult, error) {
	ev, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status == models.EventCancelled {
		return nil, apperr.Validation("cannot announce a cancelled event")
	}
	section = models.NormalizeSection(section)
	regs, err := s.recipients.Recipients(ctx, section)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	regs = dedupe(regs)
	if len(regs) == 0 {
		return nil, apperr.Validation("no recipients found")
	}

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sendConcurrency)
	for _, reg := range regs {
		g.Go(func() error {
			if s.announce(gctx, ev, reg) {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &NotifyResult{Sent: int(sent.Load()), Failed: int(failed.Load()), TotalRecipients: len(regs)}
	s.logger.Info("seminar announcement sent",
		zap.String("event_id", ev.ID.String()),
		zap.String("section", section),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) announce(ctx context.Context, ev *models.Event, reg *models.Registration) bool {
	msg, err := s.composer.SeminarAnnouncement(ev, reg.Name, reg.Email)
	if err != nil {
		s.logger.Error("render announcement", zap.Error(err))
		return false
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	sendErr := s.sender.Send(sendCtx, msg)
	cancel()
	if sendErr != nil {
		s.logger.Warn("announcement failed", zap.String("to", reg.Email), zap.Error(sendErr))
	}
	if s.recorder != nil {
		if err := s.recorder.Record(context.WithoutCancel(ctx), msg, sendErr); err != nil {
			s.logger.Error("record email log", zap.Error(err))
		}
	}
	return sendErr == nil
}

// dedupe keeps the first registration for each case-insensitive email.
func dedupe(regs []*models.Registration) []*models.Registration {
	seen := make(map[string]struct{}, len(regs))
	out := regs[:0:0]
	for _, r := range regs {
		key := strings.ToLower(strings.TrimSpace(r.Email))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CreateZoomMeeting creates the Zoom meeting for an event and stores its links.
func (s *Service) CreateZoomMeeting(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	if s.meetings == nil {
		return nil, apperr.Unavailable("zoom is not configured")
	}
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.ZoomMeetingID != "" {
		return nil, apperr.Conflict("event already has a zoom meeting")
	}
	if ev.Status != models.EventScheduled {
		return nil, apperr.Validation("only scheduled events can get a zoom meeting")
	}
	m, err := s.meetings.CreateMeeting(ctx, zoom.MeetingRequest{
		Topic:           ev.Title,
		Agenda:          ev.Description,
		StartTime:       ev.ScheduledAt,
		DurationMinutes: ev.DurationMinutes,
	})
	if err != nil {
		return nil, apperr.External("zoom meeting could not be created", err)
	}
	updated, _, err := s.store.Update(ctx, id, Patch{
		ZoomMeetingID: &m.ID,
		ZoomJoinURL:   &m.JoinURL,
		ZoomStartURL:  &m.StartURL,
		ZoomPassword:  &m.Password,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("zoom meeting linked", zap.String("event_id", id.String()), zap.String("meeting_id", m.ID))
	return updated, nil
}

func (s *Service) notifyPresented(ctx context.Context, sub *models.Submission, ev *models.Event) {
	if s.notifier == nil || s.composer == nil {
		return
	}
	msg, err := s.composer.StatusUpdate(sub, ev)
	if err != nil {
		s.logger.Error("render status update", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("notification not queued", zap.String("type", msg.Type), zap.Error(err))
	}
}
