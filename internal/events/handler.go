package events

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/internal/submissions"
	"github.com/seminar-hub/backend/pkg/response"
)

// Scheduler turns a submission into an event.
type Scheduler interface {
	ScheduleEvent(ctx context.Context, in submissions.ScheduleInput) (*models.SubmissionWithEvent, error)
}

// CreateRequest is the body for POST /events. With submission_id it schedules that submission;
// without it the standalone fields are required.
type CreateRequest struct {
	SubmissionID    *uuid.UUID `json:"submission_id"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	ZoomJoinURL     string     `json:"zoom_join_url"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	PresenterName   string     `json:"presenter_name"`
	PresenterEmail  string     `json:"presenter_email"`
}

// NotifyRequest is the optional body for POST /events/:id/notify.
type NotifyRequest struct {
	Section string `json:"section"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	svc       *Service
	scheduler Scheduler
	logger    *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(svc *Service, scheduler Scheduler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, scheduler: scheduler, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		h.logger.Error("events request failed", zap.String("path", c.FullPath()), zap.Error(err))
	case apperr.KindExternal:
		h.logger.Warn("external service failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /events (admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if req.SubmissionID != nil {
		out, err := h.scheduler.ScheduleEvent(ctx, submissions.ScheduleInput{
			SubmissionID:    *req.SubmissionID,
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			ZoomJoinURL:     req.ZoomJoinURL,
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Created(c, out)
		return
	}
	ev, err := h.svc.CreateStandalone(ctx, CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		PresenterName:   req.PresenterName,
		PresenterEmail:  req.PresenterEmail,
		ZoomJoinURL:     req.ZoomJoinURL,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, ev)
}

// List handles GET /events (admin).
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id (admin).
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ev, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, ev)
}

// Update handles PATCH /events/:id (admin).
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.svc.Update(c.Request.Context(), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, ev)
}

// Notify handles POST /events/:id/notify (admin). The section may come in the body or ?section=.
func (h *Handler) Notify(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req := NotifyRequest{Section: c.Query("section")}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	res, err := h.svc.NotifyRegistrants(c.Request.Context(), id, req.Section)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// CreateZoom handles POST /events/:id/zoom (admin).
func (h *Handler) CreateZoom(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ev, err := h.svc.CreateZoomMeeting(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, ev)
}

// ListPublic handles GET /public/events.
func (h *Handler) ListPublic(c *gin.Context) {
	list, err := h.svc.ListPublic(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// GetPublic handles GET /public/events/:id.
func (h *Handler) GetPublic(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ev, err := h.svc.GetPublic(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, ev)
}
