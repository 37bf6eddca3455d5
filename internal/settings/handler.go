package settings

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/pkg/response"
)

// Handler handles settings HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a settings handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Get handles GET /settings (public).
func (h *Handler) Get(c *gin.Context) {
	st, err := h.svc.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("load settings failed", zap.Error(err))
		response.Internal(c, "failed to load settings")
		return
	}
	response.OK(c, st)
}

// Update handles PATCH /settings (admin).
func (h *Handler) Update(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	st, err := h.svc.Update(c.Request.Context(), p)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("update settings failed", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}
