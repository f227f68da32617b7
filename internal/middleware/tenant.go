package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

const (
	contextInstitutionKey = "institution_id"
	institutionHeader     = "X-Institution-ID"
)

// Tenant resolves the institution a request acts on. Superadmins pick one through the
// X-Institution-ID header or the institution_id query parameter and may leave it empty. Every other
// role is pinned to the institution in its token.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		requested := strings.TrimSpace(c.GetHeader(institutionHeader))
		if requested == "" {
			requested = strings.TrimSpace(c.Query("institution_id"))
		}

		if claims.Role == models.RoleSuperAdmin {
			c.Set(contextInstitutionKey, requested)
			c.Next()
			return
		}
		if claims.InstitutionID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account is not bound to an institution"))
			c.Abort()
			return
		}
		if requested != "" && requested != claims.InstitutionID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "institution is outside your scope"))
			c.Abort()
			return
		}
		c.Set(contextInstitutionKey, claims.InstitutionID)
		c.Next()
	}
}

// Institution returns the institution resolved by Tenant. Empty means unrestricted.
func Institution(c *gin.Context) string {
	return c.GetString(contextInstitutionKey)
}
