package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

// PermissionRepository persists role and user permission grants.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs the repository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// ListRolePermissions returns the grants of a role.
func (r *PermissionRepository) ListRolePermissions(ctx context.Context, role models.UserRole) ([]models.RolePermission, error) {
	var grants []models.RolePermission
	if err := r.db.SelectContext(ctx, &grants, "SELECT role, permission, created_at FROM role_permissions WHERE role = $1 ORDER BY permission", role); err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return grants, nil
}

// GrantRole adds a permission to a role. Granting twice is a no-op.
func (r *PermissionRepository) GrantRole(ctx context.Context, role models.UserRole, permission models.Permission) error {
	const query = `INSERT INTO role_permissions (role, permission, created_at) VALUES ($1, $2, $3) ON CONFLICT (role, permission) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, role, permission, time.Now().UTC()); err != nil {
		return fmt.Errorf("grant role permission: %w", err)
	}
	return nil
}

// RevokeRole removes a permission from a role.
func (r *PermissionRepository) RevokeRole(ctx context.Context, role models.UserRole, permission models.Permission) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM role_permissions WHERE role = $1 AND permission = $2", role, permission); err != nil {
		return fmt.Errorf("revoke role permission: %w", err)
	}
	return nil
}

// ListUserPermissions returns the overrides of a user.
func (r *PermissionRepository) ListUserPermissions(ctx context.Context, userID string) ([]models.UserPermission, error) {
	var grants []models.UserPermission
	if err := r.db.SelectContext(ctx, &grants, "SELECT user_id, permission, allowed, created_at FROM user_permissions WHERE user_id = $1 ORDER BY permission", userID); err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return grants, nil
}

// SetUserPermission upserts a user override.
func (r *PermissionRepository) SetUserPermission(ctx context.Context, grant models.UserPermission) error {
	const query = `INSERT INTO user_permissions (user_id, permission, allowed, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, permission) DO UPDATE SET allowed = EXCLUDED.allowed`
	if _, err := r.db.ExecContext(ctx, query, grant.UserID, grant.Permission, grant.Allowed, time.Now().UTC()); err != nil {
		return fmt.Errorf("set user permission: %w", err)
	}
	return nil
}

// ClearUserPermission removes a user override.
func (r *PermissionRepository) ClearUserPermission(ctx context.Context, userID string, permission models.Permission) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM user_permissions WHERE user_id = $1 AND permission = $2", userID, permission); err != nil {
		return fmt.Errorf("clear user permission: %w", err)
	}
	return nil
}
