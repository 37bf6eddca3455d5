package registrations

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/pkg/response"
)

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registration handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register handles POST /registrations (public, rate-limited).
func (h *Handler) Register(c *gin.Context) {
	var req RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("register failed", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// List handles GET /registrations (admin).
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to load registrations")
		return
	}
	response.OK(c, list)
}
