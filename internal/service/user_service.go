package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type permissionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	InstitutionID *string         `json:"institution_id"`
	Username      string          `json:"username" validate:"required,min=3,max=64"`
	Email         string          `json:"email" validate:"required,email"`
	FullName      string          `json:"full_name" validate:"required"`
	Role          models.UserRole `json:"role" validate:"required,role"`
	Active        bool            `json:"active"`
	Password      string          `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,role"`
	Active   *bool           `json:"active"`
}

// AuditMeta identifies who performs a user mutation. A non-empty InstitutionID scopes the
// actor to that institution.
type AuditMeta struct {
	ActorID       string
	ActorRole     models.UserRole
	InstitutionID string
	IP            string
	UserAgent     string
}

// UserService handles user management workflows.
type UserService struct {
	repo        userRepository
	permissions permissionInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	hashCost    int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, permissions permissionInvalidator, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, permissions: permissions, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid role")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID. A non-empty institutionID hides users of other institutions.
func (s *UserService) Get(ctx context.Context, id, institutionID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user not found", "failed to load user")
	}
	if !visibleTo(user, institutionID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, meta AuditMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create user payload")
	}
	institutionID := nonEmpty(req.InstitutionID)
	if err := checkRoleAssignment(req.Role, institutionID, meta); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	for _, login := range []string{username, email} {
		if err := s.ensureLoginFree(ctx, login, ""); err != nil {
			return nil, err
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	user := &models.User{
		InstitutionID: institutionID,
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(req.FullName),
		Role:          req.Role,
		Active:        req.Active,
		PasswordHash:  string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, persistError(err, "failed to create user", "username or email already exists")
	}

	s.audit(ctx, models.AuditActionCreate, user.ID, meta)
	return user, nil
}

// Update modifies the user attributes.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, meta AuditMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update payload")
	}

	user, err := s.Get(ctx, id, meta.InstitutionID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleSuperAdmin && meta.ActorRole != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmin can manage superadmin accounts")
	}
	if err := checkRoleAssignment(req.Role, user.InstitutionID, meta); err != nil {
		return nil, err
	}
	if user.ID == meta.ActorID && req.Active != nil && !*req.Active {
		return nil, appErrors.Clone(appErrors.ErrPolicy, "cannot deactivate your own account")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != user.Email {
		if err := s.ensureLoginFree(ctx, email, user.ID); err != nil {
			return nil, err
		}
	}

	roleChanged := user.Role != req.Role
	user.Email = email
	user.FullName = strings.TrimSpace(req.FullName)
	user.Role = req.Role
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, persistError(err, "failed to update user", "email already exists")
	}
	if roleChanged && s.permissions != nil {
		s.permissions.InvalidateUser(ctx, user.ID)
	}

	s.audit(ctx, models.AuditActionUpdate, user.ID, meta)
	return user, nil
}

// Delete performs a soft delete (inactive) on a user.
func (s *UserService) Delete(ctx context.Context, id string, meta AuditMeta) error {
	user, err := s.Get(ctx, id, meta.InstitutionID)
	if err != nil {
		return err
	}
	if user.ID == meta.ActorID {
		return appErrors.Clone(appErrors.ErrPolicy, "cannot delete your own account")
	}
	if user.Role == models.RoleSuperAdmin && meta.ActorRole != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only superadmin can manage superadmin accounts")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete user")
	}
	if s.permissions != nil {
		s.permissions.InvalidateUser(ctx, user.ID)
	}

	s.audit(ctx, models.AuditActionDelete, user.ID, meta)
	return nil
}

func (s *UserService) ensureLoginFree(ctx context.Context, login, selfID string) error {
	existing, err := s.repo.FindByLogin(ctx, login)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return internalError(err, "failed to check login uniqueness")
	case existing.ID == selfID:
		return nil
	default:
		return appErrors.Clone(appErrors.ErrConflict, "username or email already exists")
	}
}

func (s *UserService) audit(ctx context.Context, action, userID string, meta AuditMeta) {
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "users",
		ResourceID: &userID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		entry.UserID = &actor
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}

func checkRoleAssignment(role models.UserRole, institutionID *string, meta AuditMeta) error {
	if role == models.RoleSuperAdmin {
		if meta.ActorRole != models.RoleSuperAdmin {
			return appErrors.Clone(appErrors.ErrForbidden, "only superadmin can manage superadmin accounts")
		}
		return nil
	}
	if institutionID == nil {
		return appErrors.Clone(appErrors.ErrValidation, "institution_id is required for this role")
	}
	if meta.InstitutionID != "" && *institutionID != meta.InstitutionID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot manage users of another institution")
	}
	return nil
}

func visibleTo(user *models.User, institutionID string) bool {
	if institutionID == "" {
		return true
	}
	return user.InstitutionID != nil && *user.InstitutionID == institutionID
}
