package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type permissionStore interface {
	ListRolePermissions(ctx context.Context, role models.UserRole) ([]models.RolePermission, error)
	GrantRole(ctx context.Context, role models.UserRole, permission models.Permission) error
	RevokeRole(ctx context.Context, role models.UserRole, permission models.Permission) error
	ListUserPermissions(ctx context.Context, userID string) ([]models.UserPermission, error)
	SetUserPermission(ctx context.Context, grant models.UserPermission) error
	ClearUserPermission(ctx context.Context, userID string, permission models.Permission) error
}

type permissionUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// PermissionService resolves and edits role and per-user grants.
type PermissionService struct {
	store  permissionStore
	users  permissionUserReader
	cache  viewCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewPermissionService constructs the service. Effective sets are cached for ttl.
func NewPermissionService(store permissionStore, users permissionUserReader, cache viewCache, ttl time.Duration, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &PermissionService{store: store, users: users, cache: cache, ttl: ttl, logger: logger}
}

// Catalogue returns every grantable permission.
func (s *PermissionService) Catalogue() []models.Permission {
	out := make([]models.Permission, len(models.PermissionCatalogue))
	copy(out, models.PermissionCatalogue)
	return out
}

// Effective returns role grants plus allowed user grants minus denied user grants.
// The second value reports whether the set came from cache.
func (s *PermissionService) Effective(ctx context.Context, userID string) (*models.EffectivePermissions, bool, error) {
	key := cachePrefixPermissions + userID
	var cached models.EffectivePermissions
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, false, lookupError(err, "user not found", "failed to load user")
	}
	effective, err := s.resolve(ctx, user)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, key, effective, s.ttl); err != nil {
		s.logger.Warn("failed to cache permissions", zap.String("user_id", userID), zap.Error(err))
	}
	return effective, false, nil
}

func (s *PermissionService) resolve(ctx context.Context, user *models.User) (*models.EffectivePermissions, error) {
	effective := &models.EffectivePermissions{UserID: user.ID, Role: user.Role, Permissions: []models.Permission{}}
	if user.Role == models.RoleSuperAdmin {
		effective.Permissions = s.Catalogue()
		return effective, nil
	}
	granted := map[models.Permission]bool{}
	roleGrants, err := s.store.ListRolePermissions(ctx, user.Role)
	if err != nil {
		return nil, internalError(err, "failed to load role permissions")
	}
	for _, g := range roleGrants {
		granted[g.Permission] = true
	}
	overrides, err := s.store.ListUserPermissions(ctx, user.ID)
	if err != nil {
		return nil, internalError(err, "failed to load user permissions")
	}
	for _, o := range overrides {
		granted[o.Permission] = o.Allowed
	}
	for _, p := range models.PermissionCatalogue {
		if granted[p] {
			effective.Permissions = append(effective.Permissions, p)
		}
	}
	return effective, nil
}

// ListRole returns the grants of role.
func (s *PermissionService) ListRole(ctx context.Context, role models.UserRole) ([]models.RolePermission, error) {
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	grants, err := s.store.ListRolePermissions(ctx, role)
	if err != nil {
		return nil, internalError(err, "failed to list role permissions")
	}
	return grants, nil
}

// GrantRole adds permission to role.
func (s *PermissionService) GrantRole(ctx context.Context, role models.UserRole, permission models.Permission) error {
	if err := checkGrant(role, permission); err != nil {
		return err
	}
	if err := s.store.GrantRole(ctx, role, permission); err != nil {
		return internalError(err, "failed to grant role permission")
	}
	s.invalidate(ctx, cachePrefixPermissions+"*")
	return nil
}

// RevokeRole removes permission from role.
func (s *PermissionService) RevokeRole(ctx context.Context, role models.UserRole, permission models.Permission) error {
	if err := checkGrant(role, permission); err != nil {
		return err
	}
	if err := s.store.RevokeRole(ctx, role, permission); err != nil {
		return internalError(err, "failed to revoke role permission")
	}
	s.invalidate(ctx, cachePrefixPermissions+"*")
	return nil
}

// ListUser returns the per-user overrides.
func (s *PermissionService) ListUser(ctx context.Context, userID string) ([]models.UserPermission, error) {
	overrides, err := s.store.ListUserPermissions(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to list user permissions")
	}
	return overrides, nil
}

// SetUser grants (allowed) or denies a permission for one user.
func (s *PermissionService) SetUser(ctx context.Context, userID string, permission models.Permission, allowed bool) error {
	if !permission.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown permission")
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return lookupError(err, "user not found", "failed to load user")
	}
	if err := s.store.SetUserPermission(ctx, models.UserPermission{UserID: userID, Permission: permission, Allowed: allowed}); err != nil {
		return internalError(err, "failed to set user permission")
	}
	s.InvalidateUser(ctx, userID)
	return nil
}

// ClearUser drops a per-user override.
func (s *PermissionService) ClearUser(ctx context.Context, userID string, permission models.Permission) error {
	if !permission.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown permission")
	}
	if err := s.store.ClearUserPermission(ctx, userID, permission); err != nil {
		return internalError(err, "failed to clear user permission")
	}
	s.InvalidateUser(ctx, userID)
	return nil
}

// InvalidateUser drops the cached set of one user.
func (s *PermissionService) InvalidateUser(ctx context.Context, userID string) {
	s.invalidate(ctx, cachePrefixPermissions+userID)
}

func (s *PermissionService) invalidate(ctx context.Context, pattern string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidationTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, pattern); err != nil {
		s.logger.Warn("permission cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func checkGrant(role models.UserRole, permission models.Permission) error {
	if !role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	if role == models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrPolicy, "superadmin permissions are implicit")
	}
	if !permission.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown permission")
	}
	return nil
}
