package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/pkg/jwt"
	"github.com/pilling-app/pilling-core/internal/pkg/response"
)

const (
	ContextKeyUserID  = "user_id"
	ContextKeyIsStaff = "is_staff"
)

// Auth returns a middleware that enforces JWT authentication. Tokens are
// minted by the identity service; this service only validates them.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := jwt.Parse(extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyIsStaff, claims.IsStaff)
		c.Next()
	}
}

// StaffOnly rejects authenticated requests from non-staff users. Must run
// after Auth.
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsStaff(c) {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// IsStaff reports whether the authenticated user has staff privileges.
func IsStaff(c *gin.Context) bool {
	v, _ := c.Get(ContextKeyIsStaff)
	staff, _ := v.(bool)
	return staff
}

func extractToken(c *gin.Context) string {
	token := strings.TrimSpace(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
