// Package dashboard aggregates the admin overview.
package dashboard

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/response"
)

// UpcomingLimit caps the events listed in the summary.
const UpcomingLimit = 5

type SubmissionCounter interface {
	CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int, error)
}

type UpcomingEvents interface {
	Upcoming(ctx context.Context, limit int) ([]*models.Event, error)
}

type RegistrationCounter interface {
	Count(ctx context.Context) (int, error)
}

type EmailCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Summary is the JSON shape of GET /dashboard.
type Summary struct {
	Submissions        map[models.SubmissionStatus]int `json:"submissions"`
	TotalSubmissions   int                             `json:"total_submissions"`
	UpcomingEvents     []*models.Event                 `json:"upcoming_events"`
	TotalRegistrations int                             `json:"total_registrations"`
	EmailsSent         int                             `json:"emails_sent"`
	EmailsFailed       int                             `json:"emails_failed"`
	EmailsPending      int                             `json:"emails_pending"`
}

// Handler serves the admin overview.
type Handler struct {
	submissions   SubmissionCounter
	events        UpcomingEvents
	registrations RegistrationCounter
	emails        EmailCounter
	logger        *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(submissions SubmissionCounter, events UpcomingEvents, registrations RegistrationCounter, emails EmailCounter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		submissions:   submissions,
		events:        events,
		registrations: registrations,
		emails:        emails,
		logger:        logger,
	}
}

// Summary loads all counters concurrently; any failure fails the whole summary.
func (h *Handler) Summary(ctx context.Context) (*Summary, error) {
	var out Summary
	var emails map[string]int
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := h.submissions.CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count submissions: %w", err)
		}
		out.Submissions = counts
		return nil
	})
	g.Go(func() error {
		evs, err := h.events.Upcoming(ctx, UpcomingLimit)
		if err != nil {
			return fmt.Errorf("upcoming events: %w", err)
		}
		out.UpcomingEvents = evs
		return nil
	})
	g.Go(func() error {
		n, err := h.registrations.Count(ctx)
		if err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		out.TotalRegistrations = n
		return nil
	})
	g.Go(func() error {
		counts, err := h.emails.CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count emails: %w", err)
		}
		emails = counts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range out.Submissions {
		out.TotalSubmissions += n
	}
	if out.UpcomingEvents == nil {
		out.UpcomingEvents = []*models.Event{}
	}
	out.EmailsSent = emails[models.EmailLogStatusSent]
	out.EmailsFailed = emails[models.EmailLogStatusFailed]
	out.EmailsPending = emails[models.EmailLogStatusPending]
	return &out, nil
}

// Get handles GET /dashboard (admin).
func (h *Handler) Get(c *gin.Context) {
	sum, err := h.Summary(c.Request.Context())
	if err != nil {
		h.logger.Error("load dashboard failed", zap.Error(err))
		response.Internal(c, "failed to load dashboard")
		return
	}
	response.OK(c, sum)
}
