package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementViewer identifies who is reading the board.
type AnnouncementViewer struct {
	Role              models.UserRole
	LevelAssignmentID *string
}

// AnnouncementListRequest describes filters for listing announcements.
type AnnouncementListRequest struct {
	InstitutionID string
	Audience      string
	ActiveOnly    bool
	Page          int
	PageSize      int
}

// AnnouncementRequest describes create and update payloads.
type AnnouncementRequest struct {
	InstitutionID     string     `json:"institution_id" validate:"required"`
	Title             string     `json:"title" validate:"required,max=200"`
	Content           string     `json:"content" validate:"required"`
	Audience          string     `json:"audience" validate:"required,audience"`
	LevelAssignmentID *string    `json:"level_assignment_id"`
	Priority          string     `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	Pinned            bool       `json:"pinned"`
	PublishedAt       *time.Time `json:"published_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns the announcements visible to viewer. Students only see ALL, STUDENTS and
// their own section. Staff and teachers see ALL, STAFF and every section.
func (s *AnnouncementService) List(ctx context.Context, viewer AnnouncementViewer, req AnnouncementListRequest) ([]models.Announcement, *models.Pagination, error) {
	filter := models.AnnouncementFilter{InstitutionID: req.InstitutionID, Page: req.Page, PageSize: req.PageSize}
	if req.Audience != "" {
		audience := models.Audience(strings.ToUpper(req.Audience))
		if !audience.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid audience")
		}
		filter.Audiences = []models.Audience{audience}
	}
	if req.ActiveOnly || viewer.Role == models.RoleStudent {
		now := s.now().UTC()
		filter.ActiveAt = &now
	}

	switch viewer.Role {
	case models.RoleStudent:
		filter.Audiences = intersectAudiences(filter.Audiences, models.AudienceAll, models.AudienceStudents, models.AudienceSection)
		filter.LevelAssignmentIDs = []string{}
		if viewer.LevelAssignmentID != nil {
			filter.LevelAssignmentIDs = []string{*viewer.LevelAssignmentID}
		}
	case models.RoleTeacher, models.RoleStaff:
		filter.Audiences = intersectAudiences(filter.Audiences, models.AudienceAll, models.AudienceStaff, models.AudienceSection)
	}
	if filter.Audiences != nil && len(filter.Audiences) == 0 {
		return []models.Announcement{}, models.NewPagination(req.Page, req.PageSize, 0), nil
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list announcements")
	}
	return rows, models.NewPagination(req.Page, req.PageSize, total), nil
}

// Get returns an announcement by id.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "announcement not found", "failed to load announcement")
	}
	return announcement, nil
}

// Create publishes a new announcement.
func (s *AnnouncementService) Create(ctx context.Context, req AnnouncementRequest, createdBy string) (*models.Announcement, error) {
	announcement, err := s.build(req)
	if err != nil {
		return nil, err
	}
	if createdBy != "" {
		announcement.CreatedBy = &createdBy
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, persistError(err, "failed to create announcement", "announcement already exists")
	}
	return announcement, nil
}

// Update modifies an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req AnnouncementRequest) (*models.Announcement, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "announcement belongs to another institution")
	}
	if req.PublishedAt == nil {
		req.PublishedAt = &existing.PublishedAt
	}
	announcement, err := s.build(req)
	if err != nil {
		return nil, err
	}
	announcement.ID = existing.ID
	announcement.CreatedBy = existing.CreatedBy
	announcement.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, persistError(err, "failed to update announcement", "announcement already exists")
	}
	return announcement, nil
}

// Delete removes an announcement by id.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete announcement")
	}
	return nil
}

func (s *AnnouncementService) build(req AnnouncementRequest) (*models.Announcement, error) {
	req.Audience = strings.ToUpper(req.Audience)
	req.Priority = strings.ToUpper(req.Priority)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid announcement payload")
	}
	audience := models.Audience(req.Audience)
	section := nonEmpty(req.LevelAssignmentID)
	if (audience == models.AudienceSection) != (section != nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level_assignment_id is required exactly for SECTION audience")
	}
	publishedAt := s.now().UTC()
	if req.PublishedAt != nil && !req.PublishedAt.IsZero() {
		publishedAt = req.PublishedAt.UTC()
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(publishedAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
	}
	priority := models.AnnouncementPriority(req.Priority)
	if priority == "" {
		priority = models.AnnouncementPriorityNormal
	}
	return &models.Announcement{
		InstitutionID:     req.InstitutionID,
		Title:             strings.TrimSpace(req.Title),
		Content:           req.Content,
		Audience:          audience,
		LevelAssignmentID: section,
		Priority:          priority,
		Pinned:            req.Pinned,
		PublishedAt:       publishedAt,
		ExpiresAt:         req.ExpiresAt,
	}, nil
}

// intersectAudiences narrows requested to allowed. A nil request means every allowed audience.
func intersectAudiences(requested []models.Audience, allowed ...models.Audience) []models.Audience {
	if requested == nil {
		return allowed
	}
	out := []models.Audience{}
	for _, r := range requested {
		for _, a := range allowed {
			if r == a {
				out = append(out, r)
			}
		}
	}
	return out
}
