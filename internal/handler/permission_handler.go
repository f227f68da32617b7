package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

type permissionService interface {
	Catalogue() []models.Permission
	Effective(ctx context.Context, userID string) (*models.EffectivePermissions, bool, error)
	ListRole(ctx context.Context, role models.UserRole) ([]models.RolePermission, error)
	GrantRole(ctx context.Context, role models.UserRole, permission models.Permission) error
	RevokeRole(ctx context.Context, role models.UserRole, permission models.Permission) error
	ListUser(ctx context.Context, userID string) ([]models.UserPermission, error)
	SetUser(ctx context.Context, userID string, permission models.Permission, allowed bool) error
	ClearUser(ctx context.Context, userID string, permission models.Permission) error
}

type userScopeChecker interface {
	Get(ctx context.Context, id, institutionID string) (*models.User, error)
}

// PermissionHandler exposes role grants and per-user overrides.
type PermissionHandler struct {
	service permissionService
	users   userScopeChecker
}

// NewPermissionHandler constructs the handler.
func NewPermissionHandler(svc permissionService, users userScopeChecker) *PermissionHandler {
	return &PermissionHandler{service: svc, users: users}
}

type userPermissionPayload struct {
	Permission models.Permission `json:"permission" binding:"required"`
	Allowed    bool              `json:"allowed"`
}

// Catalogue godoc
// @Summary List grantable permissions
// @Tags Permissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /permissions [get]
func (h *PermissionHandler) Catalogue(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Catalogue(), nil)
}

// Mine godoc
// @Summary Effective permissions of the caller
// @Tags Permissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /permissions/me [get]
func (h *PermissionHandler) Mine(c *gin.Context) {
	h.effective(c, actorID(c))
}

// UserEffective godoc
// @Summary Effective permissions of a user
// @Tags Permissions
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/permissions/effective [get]
func (h *PermissionHandler) UserEffective(c *gin.Context) {
	if !h.userInScope(c) {
		return
	}
	h.effective(c, c.Param("id"))
}

func (h *PermissionHandler) effective(c *gin.Context, userID string) {
	effective, hit, err := h.service.Effective(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, effective, nil, middleware.ResponseMeta(c))
}

// ListRole godoc
// @Summary List role grants
// @Tags Permissions
// @Produce json
// @Param role path string true "Role"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /roles/{role}/permissions [get]
func (h *PermissionHandler) ListRole(c *gin.Context) {
	grants, err := h.service.ListRole(c.Request.Context(), models.UserRole(c.Param("role")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grants, nil)
}

// GrantRole godoc
// @Summary Grant a permission to a role
// @Tags Permissions
// @Param role path string true "Role"
// @Param permission path string true "Permission key"
// @Success 204
// @Security BearerAuth
// @Router /roles/{role}/permissions/{permission} [put]
func (h *PermissionHandler) GrantRole(c *gin.Context) {
	err := h.service.GrantRole(c.Request.Context(), models.UserRole(c.Param("role")), models.Permission(c.Param("permission")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RevokeRole godoc
// @Summary Revoke a permission from a role
// @Tags Permissions
// @Param role path string true "Role"
// @Param permission path string true "Permission key"
// @Success 204
// @Security BearerAuth
// @Router /roles/{role}/permissions/{permission} [delete]
func (h *PermissionHandler) RevokeRole(c *gin.Context) {
	err := h.service.RevokeRole(c.Request.Context(), models.UserRole(c.Param("role")), models.Permission(c.Param("permission")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListUser godoc
// @Summary List per-user overrides
// @Tags Permissions
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/permissions [get]
func (h *PermissionHandler) ListUser(c *gin.Context) {
	if !h.userInScope(c) {
		return
	}
	overrides, err := h.service.ListUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides, nil)
}

// SetUser godoc
// @Summary Allow or deny a permission for one user
// @Tags Permissions
// @Accept json
// @Param id path string true "User ID"
// @Param payload body userPermissionPayload true "Override"
// @Success 204
// @Security BearerAuth
// @Router /users/{id}/permissions [put]
func (h *PermissionHandler) SetUser(c *gin.Context) {
	if !h.userInScope(c) {
		return
	}
	var payload userPermissionPayload
	if err := bindJSON(c, &payload); err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.SetUser(c.Request.Context(), c.Param("id"), payload.Permission, payload.Allowed); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ClearUser godoc
// @Summary Remove a per-user override
// @Tags Permissions
// @Param id path string true "User ID"
// @Param permission path string true "Permission key"
// @Success 204
// @Security BearerAuth
// @Router /users/{id}/permissions/{permission} [delete]
func (h *PermissionHandler) ClearUser(c *gin.Context) {
	if !h.userInScope(c) {
		return
	}
	if err := h.service.ClearUser(c.Request.Context(), c.Param("id"), models.Permission(c.Param("permission"))); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *PermissionHandler) userInScope(c *gin.Context) bool {
	if h.users == nil {
		response.Error(c, appErrors.ErrInternal)
		return false
	}
	if _, err := h.users.Get(c.Request.Context(), c.Param("id"), middleware.Institution(c)); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}
