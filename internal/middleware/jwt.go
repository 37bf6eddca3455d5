package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/seminar-hub/backend/internal/auth"
	"github.com/seminar-hub/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = auth.ContextUserRole
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = auth.ContextUserEmail
)

// Session validates the session token from cookieName, falling back to a Bearer
// Authorization header, and sets the caller's claims in context.
func Session(jwtService *auth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			response.Unauthorized(c, "not signed in")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired session")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
