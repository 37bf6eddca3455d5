package submissions

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/response"
)

// UpdateStatusRequest is the body for PATCH /submissions/:id.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler handles submission HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a submission handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("submissions request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid submission id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /submissions (public, rate-limited).
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, sub)
}

// List handles GET /submissions?status= (admin).
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /submissions/:id (admin).
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sub, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, sub)
}

// UpdateStatus handles PATCH /submissions/:id (admin).
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.svc.SetStatus(c.Request.Context(), id, models.SubmissionStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, sub)
}

// PaperURL handles GET /submissions/:id/paper-url (admin).
func (h *Handler) PaperURL(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	url, err := h.svc.PaperURL(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"url": url})
}
