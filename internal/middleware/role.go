package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/seminar-hub/backend/internal/models"
	"github.com/seminar-hub/backend/pkg/response"
)

// RequireRole allows only callers whose session carries one of roles. Must run after Session.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := models.Role(c.GetString(ContextUserRole))
		if role == "" {
			response.Unauthorized(c, "not signed in")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
