package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seminar-hub/backend/internal/apperr"
	"github.com/seminar-hub/backend/pkg/response"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// MagicLinkRequest is the body for POST /auth/magic-link.
type MagicLinkRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	svc    *Service
	cookie CookieConfig
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service, cookie CookieConfig, logger *zap.Logger) *Handler {
	if cookie.Name == "" {
		cookie.Name = "session"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cookie: cookie, logger: logger}
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("auth request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

func (h *Handler) start(c *gin.Context, sess *Session) {
	h.setCookie(c, sess.Token, int(h.svc.jwt.TTL().Seconds()))
	response.OK(c, sess)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.start(c, sess)
}

// RequestMagicLink handles POST /auth/magic-link. The answer does not reveal whether the email is known.
func (h *Handler) RequestMagicLink(c *gin.Context) {
	var req MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.RequestMagicLink(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("magic link request failed", zap.Error(err))
	}
	response.OK(c, gin.H{"message": "if that address belongs to an admin, a sign-in link is on its way"})
}

// VerifyMagicLink handles GET /auth/magic-link/verify?token=.
func (h *Handler) VerifyMagicLink(c *gin.Context) {
	sess, err := h.svc.VerifyMagicLink(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.start(c, sess)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	h.setCookie(c, "", -1)
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		response.Unauthorized(c, "not signed in")
		return
	}
	userID, _ := id.(uuid.UUID)
	user, err := h.svc.Me(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}
