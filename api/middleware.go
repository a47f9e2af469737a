package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/travoya/travoya/internal/domain"
	"github.com/travoya/travoya/internal/service/auth"
)

const (
	ctxUserID = "auth_user_id"
	ctxRole   = "auth_role"
)

// RequireAuth validates the bearer token and stores the caller identity on
// the request context.
func RequireAuth(authSvc auth.AuthUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Message: "missing bearer token"})
			return
		}

		claims, err := authSvc.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Message: "invalid access token"})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, string(claims.Role))
		c.Next()
	}
}

// RequireAdmin guards the catalog and margin management routes.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != string(domain.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, envelope{Success: false, Message: "admin role required"})
			return
		}
		c.Next()
	}
}

// currentUserID returns the authenticated user id, when present.
func currentUserID(c *gin.Context) *int64 {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}
