package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

// RBAC enforces role-based access control for routes. "SELF" lets a user reach a route whose :id is
// their own id.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{})
	for _, a := range allowed {
		if a == "SELF" {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok || claims.Role == models.RoleSuperAdmin {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

type permissionResolver interface {
	Effective(ctx context.Context, userID string) (*models.EffectivePermissions, bool, error)
}

// RequirePermission admits callers whose effective permissions include permission.
func RequirePermission(resolver permissionResolver, permission models.Permission, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role == models.RoleSuperAdmin {
			c.Next()
			return
		}
		effective, _, err := resolver.Effective(c.Request.Context(), claims.UserID)
		if err != nil {
			logger.Warn("permission lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
			response.Error(c, err)
			c.Abort()
			return
		}
		if !effective.Has(permission) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission "+string(permission)))
			c.Abort()
			return
		}
		c.Next()
	}
}
