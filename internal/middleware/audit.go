package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records one audit log per successful mutation. Reads and failed requests are skipped.
func Audit(repo auditWriter, resource string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		action, ok := auditAction(c.Request.Method, c.FullPath())
		if !ok || c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		entry := &models.AuditLog{
			Action:     action,
			Resource:   resource,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
			StatusCode: c.Writer.Status(),
		}
		if claims := Claims(c); claims != nil {
			userID := claims.UserID
			entry.UserID = &userID
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		if err := repo.CreateAuditLog(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn("failed to record audit log", zap.String("resource", resource), zap.Error(err))
		}
	}
}

// commandActions names POST routes that act on an existing record instead of creating one.
var commandActions = map[string]string{
	"cancel":   models.AuditActionCancel,
	"revoke":   models.AuditActionRevoke,
	"activate": models.AuditActionActivate,
	"payments": models.AuditActionPayment,
	"checkout": models.AuditActionPayment,
	"logo":     models.AuditActionUpload,
}

func auditAction(method, route string) (string, bool) {
	switch method {
	case http.MethodPost:
		if i := strings.LastIndex(route, "/"); i >= 0 && strings.Contains(route[:i], "/:") {
			if action, ok := commandActions[route[i+1:]]; ok {
				return action, true
			}
		}
		return models.AuditActionCreate, true
	case http.MethodPut, http.MethodPatch:
		return models.AuditActionUpdate, true
	case http.MethodDelete:
		return models.AuditActionDelete, true
	default:
		return "", false
	}
}
