package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/media"
)

type institutionStore interface {
	List(ctx context.Context) ([]models.Institution, error)
	FindByID(ctx context.Context, id string) (*models.Institution, error)
	Create(ctx context.Context, institution *models.Institution) error
	Update(ctx context.Context, institution *models.Institution) error
	SetLogo(ctx context.Context, id, path string) error
}

type academicStore interface {
	ListLevels(ctx context.Context, institutionID string) ([]models.Level, error)
	FindLevel(ctx context.Context, id string) (*models.Level, error)
	CreateLevel(ctx context.Context, level *models.Level) error
	UpdateLevel(ctx context.Context, level *models.Level) error
	DeleteLevel(ctx context.Context, id string) error
	ListGradeLevels(ctx context.Context, levelID string) ([]models.GradeLevel, error)
	FindGradeLevel(ctx context.Context, id string) (*models.GradeLevel, error)
	CreateGradeLevel(ctx context.Context, grade *models.GradeLevel) error
	DeleteGradeLevel(ctx context.Context, id string) error
	ListAreas(ctx context.Context, institutionID string) ([]models.CurricularArea, error)
	FindArea(ctx context.Context, id string) (*models.CurricularArea, error)
	CreateArea(ctx context.Context, area *models.CurricularArea) error
	DeleteArea(ctx context.Context, id string) error
}

type levelAssignmentStore interface {
	List(ctx context.Context, filter models.LevelAssignmentFilter) ([]models.LevelAssignmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.LevelAssignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.LevelAssignmentDetail, error)
	Create(ctx context.Context, assignment *models.LevelAssignment) error
	Update(ctx context.Context, assignment *models.LevelAssignment) error
	Delete(ctx context.Context, id string) error
}

type courseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListApplicable(ctx context.Context, criteria models.CourseScopeCriteria) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type assignmentUsage interface {
	CountByAssignment(ctx context.Context, assignmentID string) (int, error)
}

type blobWriter interface {
	Save(relPath string, data []byte) (string, error)
}

// InstitutionRequest creates or updates an institution.
type InstitutionRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Code    string `json:"code" validate:"required,max=32"`
	Address string `json:"address" validate:"max=500"`
	Active  *bool  `json:"active"`
}

// LevelRequest creates or updates an academic level.
type LevelRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	Code          string `json:"code" validate:"required,max=32"`
	Name          string `json:"name" validate:"required,max=120"`
	SortOrder     int    `json:"sort_order" validate:"gte=0"`
}

// GradeLevelRequest creates a grade inside a level.
type GradeLevelRequest struct {
	LevelID string `json:"level_id" validate:"required"`
	Number  int    `json:"number" validate:"required,gte=1,lte=12"`
	Name    string `json:"name" validate:"required,max=120"`
}

// AreaRequest creates a curricular area.
type AreaRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	Code          string `json:"code" validate:"required,max=32"`
	Name          string `json:"name" validate:"required,max=120"`
}

// LevelAssignmentRequest creates or updates a level assignment.
type LevelAssignmentRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	LevelID       string `json:"level_id" validate:"required"`
	GradeLevelID  string `json:"grade_level_id" validate:"required"`
	Section       string `json:"section" validate:"required,len=1,alpha"`
	AcademicYear  int    `json:"academic_year" validate:"required,gte=2000,lte=2100"`
	Capacity      int    `json:"capacity" validate:"gte=0,lte=200"`
}

// CourseRequest creates or updates a course. Only the key selected by Scope may be set.
type CourseRequest struct {
	InstitutionID     string  `json:"institution_id" validate:"required"`
	AreaID            string  `json:"area_id" validate:"required"`
	Code              string  `json:"code" validate:"required,max=32"`
	Name              string  `json:"name" validate:"required,max=200"`
	Scope             string  `json:"scope" validate:"required,course_scope"`
	LevelAssignmentID *string `json:"level_assignment_id"`
	GradeLevelID      *string `json:"grade_level_id"`
	LevelID           *string `json:"level_id"`
	AcademicYear      int     `json:"academic_year" validate:"required,gte=2000,lte=2100"`
	WeeklyHours       int     `json:"weekly_hours" validate:"gte=0,lte=60"`
	Active            *bool   `json:"active"`
}

// AcademicService manages institutions and the academic structure courses are scoped against.
type AcademicService struct {
	institutions institutionStore
	structure    academicStore
	assignments  levelAssignmentStore
	courses      courseStore
	usage        assignmentUsage
	files        blobWriter
	validator    *validator.Validate
	logger       *zap.Logger
	logoMaxDim   int
}

// NewAcademicService constructs AcademicService. files may be nil when logo uploads are disabled.
func NewAcademicService(
	institutions institutionStore,
	structure academicStore,
	assignments levelAssignmentStore,
	courses courseStore,
	usage assignmentUsage,
	files blobWriter,
	validate *validator.Validate,
	logger *zap.Logger,
	logoMaxDim int,
) *AcademicService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicService{
		institutions: institutions,
		structure:    structure,
		assignments:  assignments,
		courses:      courses,
		usage:        usage,
		files:        files,
		validator:    validate,
		logger:       logger,
		logoMaxDim:   logoMaxDim,
	}
}

// ListInstitutions returns every institution.
func (s *AcademicService) ListInstitutions(ctx context.Context) ([]models.Institution, error) {
	items, err := s.institutions.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list institutions")
	}
	return items, nil
}

// GetInstitution returns one institution.
func (s *AcademicService) GetInstitution(ctx context.Context, id string) (*models.Institution, error) {
	institution, err := s.institutions.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "institution not found", "failed to load institution")
	}
	return institution, nil
}

// CreateInstitution registers a tenant.
func (s *AcademicService) CreateInstitution(ctx context.Context, req InstitutionRequest) (*models.Institution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid institution payload")
	}
	institution := &models.Institution{
		Name:    strings.TrimSpace(req.Name),
		Code:    strings.ToUpper(strings.TrimSpace(req.Code)),
		Address: req.Address,
		Active:  req.Active == nil || *req.Active,
	}
	if err := s.institutions.Create(ctx, institution); err != nil {
		return nil, persistError(err, "failed to create institution", "institution code already exists")
	}
	return institution, nil
}

// UpdateInstitution rewrites an institution.
func (s *AcademicService) UpdateInstitution(ctx context.Context, id string, req InstitutionRequest) (*models.Institution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid institution payload")
	}
	institution, err := s.GetInstitution(ctx, id)
	if err != nil {
		return nil, err
	}
	institution.Name = strings.TrimSpace(req.Name)
	institution.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	institution.Address = req.Address
	if req.Active != nil {
		institution.Active = *req.Active
	}
	if err := s.institutions.Update(ctx, institution); err != nil {
		return nil, persistError(err, "failed to update institution", "institution code already exists")
	}
	return institution, nil
}

// UploadInstitutionLogo normalises the image to PNG, stores it and records its path.
func (s *AcademicService) UploadInstitutionLogo(ctx context.Context, id string, file io.Reader) (*models.Institution, error) {
	if s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "logo storage is not configured")
	}
	institution, err := s.GetInstitution(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := media.NormalizeLogo(file, s.logoMaxDim)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedImage) {
			return nil, validationError(err, "logo must be a PNG, JPEG or GIF image")
		}
		return nil, internalError(err, "failed to process logo")
	}
	path := fmt.Sprintf("logos/%s.png", institution.ID)
	if _, err := s.files.Save(path, data); err != nil {
		s.logger.Error("store logo failed", zap.String("institution_id", id), zap.Error(err))
		return nil, internalError(err, "failed to store logo")
	}
	if err := s.institutions.SetLogo(ctx, institution.ID, path); err != nil {
		return nil, internalError(err, "failed to save logo path")
	}
	institution.LogoPath = &path
	return institution, nil
}

// ListLevels returns the levels of an institution ordered by sort order.
func (s *AcademicService) ListLevels(ctx context.Context, institutionID string) ([]models.Level, error) {
	levels, err := s.structure.ListLevels(ctx, institutionID)
	if err != nil {
		return nil, internalError(err, "failed to list levels")
	}
	return levels, nil
}

// CreateLevel adds a level to an institution.
func (s *AcademicService) CreateLevel(ctx context.Context, req LevelRequest) (*models.Level, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid level payload")
	}
	if _, err := s.GetInstitution(ctx, req.InstitutionID); err != nil {
		return nil, err
	}
	level := &models.Level{
		InstitutionID: req.InstitutionID,
		Code:          strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:          strings.TrimSpace(req.Name),
		SortOrder:     req.SortOrder,
	}
	if err := s.structure.CreateLevel(ctx, level); err != nil {
		return nil, persistError(err, "failed to create level", "level code already exists")
	}
	return level, nil
}

// UpdateLevel renames or reorders a level. The owning institution cannot change.
func (s *AcademicService) UpdateLevel(ctx context.Context, id string, req LevelRequest) (*models.Level, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid level payload")
	}
	level, err := s.structure.FindLevel(ctx, id)
	if err != nil {
		return nil, lookupError(err, "level not found", "failed to load level")
	}
	if level.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level belongs to another institution")
	}
	level.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	level.Name = strings.TrimSpace(req.Name)
	level.SortOrder = req.SortOrder
	if err := s.structure.UpdateLevel(ctx, level); err != nil {
		return nil, persistError(err, "failed to update level", "level code already exists")
	}
	return level, nil
}

// DeleteLevel removes a level that nothing references.
func (s *AcademicService) DeleteLevel(ctx context.Context, id string) error {
	if _, err := s.structure.FindLevel(ctx, id); err != nil {
		return lookupError(err, "level not found", "failed to load level")
	}
	if err := s.structure.DeleteLevel(ctx, id); err != nil {
		return persistError(err, "failed to delete level", "level in use")
	}
	return nil
}

// ListGradeLevels returns the grades of a level.
func (s *AcademicService) ListGradeLevels(ctx context.Context, levelID string) ([]models.GradeLevel, error) {
	grades, err := s.structure.ListGradeLevels(ctx, levelID)
	if err != nil {
		return nil, internalError(err, "failed to list grade levels")
	}
	return grades, nil
}

// CreateGradeLevel adds a numbered grade to a level.
func (s *AcademicService) CreateGradeLevel(ctx context.Context, req GradeLevelRequest) (*models.GradeLevel, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade level payload")
	}
	if _, err := s.structure.FindLevel(ctx, req.LevelID); err != nil {
		return nil, lookupError(err, "level not found", "failed to load level")
	}
	grade := &models.GradeLevel{LevelID: req.LevelID, Number: req.Number, Name: strings.TrimSpace(req.Name)}
	if err := s.structure.CreateGradeLevel(ctx, grade); err != nil {
		return nil, persistError(err, "failed to create grade level", "grade number already exists in level")
	}
	return grade, nil
}

// DeleteGradeLevel removes a grade.
func (s *AcademicService) DeleteGradeLevel(ctx context.Context, id string) error {
	if _, err := s.structure.FindGradeLevel(ctx, id); err != nil {
		return lookupError(err, "grade level not found", "failed to load grade level")
	}
	if err := s.structure.DeleteGradeLevel(ctx, id); err != nil {
		return persistError(err, "failed to delete grade level", "grade level in use")
	}
	return nil
}

// ListAreas returns the curricular areas of an institution.
func (s *AcademicService) ListAreas(ctx context.Context, institutionID string) ([]models.CurricularArea, error) {
	areas, err := s.structure.ListAreas(ctx, institutionID)
	if err != nil {
		return nil, internalError(err, "failed to list areas")
	}
	return areas, nil
}

// CreateArea adds a curricular area.
func (s *AcademicService) CreateArea(ctx context.Context, req AreaRequest) (*models.CurricularArea, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid area payload")
	}
	if _, err := s.GetInstitution(ctx, req.InstitutionID); err != nil {
		return nil, err
	}
	area := &models.CurricularArea{
		InstitutionID: req.InstitutionID,
		Code:          strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:          strings.TrimSpace(req.Name),
	}
	if err := s.structure.CreateArea(ctx, area); err != nil {
		return nil, persistError(err, "failed to create area", "area code already exists")
	}
	return area, nil
}

// DeleteArea removes an area without courses.
func (s *AcademicService) DeleteArea(ctx context.Context, id string) error {
	if _, err := s.structure.FindArea(ctx, id); err != nil {
		return lookupError(err, "area not found", "failed to load area")
	}
	if err := s.structure.DeleteArea(ctx, id); err != nil {
		return persistError(err, "failed to delete area", "area in use")
	}
	return nil
}

// ListLevelAssignments returns level assignments with pagination metadata.
func (s *AcademicService) ListLevelAssignments(ctx context.Context, filter models.LevelAssignmentFilter) ([]models.LevelAssignmentDetail, *models.Pagination, error) {
	items, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list level assignments")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetLevelAssignment returns a level assignment with labels.
func (s *AcademicService) GetLevelAssignment(ctx context.Context, id string) (*models.LevelAssignmentDetail, error) {
	detail, err := s.assignments.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "level assignment not found", "failed to load level assignment")
	}
	return detail, nil
}

// CreateLevelAssignment opens a section of a grade for a year.
func (s *AcademicService) CreateLevelAssignment(ctx context.Context, req LevelAssignmentRequest) (*models.LevelAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid level assignment payload")
	}
	if err := s.checkPlacement(ctx, req); err != nil {
		return nil, err
	}
	assignment := &models.LevelAssignment{
		InstitutionID: req.InstitutionID,
		LevelID:       req.LevelID,
		GradeLevelID:  req.GradeLevelID,
		Section:       strings.ToUpper(req.Section),
		AcademicYear:  req.AcademicYear,
		Capacity:      req.Capacity,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, persistError(err, "failed to create level assignment", "section already exists for this grade and year")
	}
	return assignment, nil
}

// UpdateLevelAssignment changes a level assignment. Once enrollments reference it only the capacity
// may change.
func (s *AcademicService) UpdateLevelAssignment(ctx context.Context, id string, req LevelAssignmentRequest) (*models.LevelAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid level assignment payload")
	}
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "level assignment not found", "failed to load level assignment")
	}
	if assignment.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level assignment belongs to another institution")
	}
	section := strings.ToUpper(req.Section)
	slotChanged := assignment.LevelID != req.LevelID || assignment.GradeLevelID != req.GradeLevelID ||
		assignment.Section != section || assignment.AcademicYear != req.AcademicYear
	if slotChanged {
		inUse, err := s.usage.CountByAssignment(ctx, id)
		if err != nil {
			return nil, internalError(err, "failed to check level assignment usage")
		}
		if inUse > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "level assignment in use")
		}
		if err := s.checkPlacement(ctx, req); err != nil {
			return nil, err
		}
	}
	assignment.LevelID = req.LevelID
	assignment.GradeLevelID = req.GradeLevelID
	assignment.Section = section
	assignment.AcademicYear = req.AcademicYear
	assignment.Capacity = req.Capacity
	if err := s.assignments.Update(ctx, assignment); err != nil {
		return nil, persistError(err, "failed to update level assignment", "section already exists for this grade and year")
	}
	return assignment, nil
}

// DeleteLevelAssignment removes an unused level assignment.
func (s *AcademicService) DeleteLevelAssignment(ctx context.Context, id string) error {
	if _, err := s.assignments.FindByID(ctx, id); err != nil {
		return lookupError(err, "level assignment not found", "failed to load level assignment")
	}
	inUse, err := s.usage.CountByAssignment(ctx, id)
	if err != nil {
		return internalError(err, "failed to check level assignment usage")
	}
	if inUse > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "level assignment in use")
	}
	if err := s.assignments.Delete(ctx, id); err != nil {
		return persistError(err, "failed to delete level assignment", "level assignment in use")
	}
	return nil
}

// checkPlacement verifies the grade belongs to the level and the level to the institution.
func (s *AcademicService) checkPlacement(ctx context.Context, req LevelAssignmentRequest) error {
	level, err := s.structure.FindLevel(ctx, req.LevelID)
	if err != nil {
		return lookupError(err, "level not found", "failed to load level")
	}
	if level.InstitutionID != req.InstitutionID {
		return appErrors.Clone(appErrors.ErrValidation, "level belongs to another institution")
	}
	grade, err := s.structure.FindGradeLevel(ctx, req.GradeLevelID)
	if err != nil {
		return lookupError(err, "grade level not found", "failed to load grade level")
	}
	if grade.LevelID != level.ID {
		return appErrors.Clone(appErrors.ErrValidation, "grade level does not belong to level")
	}
	return nil
}

// ListCourses returns courses with pagination metadata.
func (s *AcademicService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	if filter.Scope != "" && !filter.Scope.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid course scope")
	}
	items, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list courses")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetCourse returns one course.
func (s *AcademicService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "course not found", "failed to load course")
	}
	return course, nil
}

// CreateCourse adds a course after checking its scope keys.
func (s *AcademicService) CreateCourse(ctx context.Context, req CourseRequest) (*models.Course, error) {
	course, err := s.buildCourse(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, persistError(err, "failed to create course", "course code already exists for this year")
	}
	return course, nil
}

// UpdateCourse rewrites a course. Existing enrollment links are not recomputed.
func (s *AcademicService) UpdateCourse(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	current, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course belongs to another institution")
	}
	course, err := s.buildCourse(ctx, req)
	if err != nil {
		return nil, err
	}
	course.ID = current.ID
	course.CreatedAt = current.CreatedAt
	if req.Active == nil {
		course.Active = current.Active
	}
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, persistError(err, "failed to update course", "course code already exists for this year")
	}
	return course, nil
}

// DeleteCourse removes a course that no enrollment links to.
func (s *AcademicService) DeleteCourse(ctx context.Context, id string) error {
	if _, err := s.GetCourse(ctx, id); err != nil {
		return err
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		return persistError(err, "failed to delete course", "course in use")
	}
	return nil
}

// ApplicableCourses lists the courses an enrollment in the assignment would receive for year.
// A zero year uses the assignment's own academic year.
func (s *AcademicService) ApplicableCourses(ctx context.Context, assignmentID string, year int) ([]models.Course, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, lookupError(err, "invalid level assignment", "failed to load level assignment")
	}
	if year == 0 {
		year = assignment.AcademicYear
	}
	courses, err := s.courses.ListApplicable(ctx, assignment.ScopeCriteria(year))
	if err != nil {
		return nil, internalError(err, "failed to resolve courses")
	}
	return courses, nil
}

func (s *AcademicService) buildCourse(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	course := &models.Course{
		InstitutionID:     req.InstitutionID,
		AreaID:            req.AreaID,
		Code:              strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:              strings.TrimSpace(req.Name),
		Scope:             models.CourseScope(req.Scope),
		LevelAssignmentID: nonEmpty(req.LevelAssignmentID),
		GradeLevelID:      nonEmpty(req.GradeLevelID),
		LevelID:           nonEmpty(req.LevelID),
		AcademicYear:      req.AcademicYear,
		WeeklyHours:       req.WeeklyHours,
		Active:            req.Active == nil || *req.Active,
	}
	if !course.ScopeKeysConsistent() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid course scope keys")
	}

	area, err := s.structure.FindArea(ctx, req.AreaID)
	if err != nil {
		return nil, lookupError(err, "area not found", "failed to load area")
	}
	if area.InstitutionID != course.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "area belongs to another institution")
	}

	switch course.Scope {
	case models.CourseScopeSection:
		assignment, err := s.assignments.FindByID(ctx, *course.LevelAssignmentID)
		if err != nil {
			return nil, lookupError(err, "invalid level assignment", "failed to load level assignment")
		}
		if assignment.InstitutionID != course.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "level assignment belongs to another institution")
		}
	case models.CourseScopeGrade:
		grade, err := s.structure.FindGradeLevel(ctx, *course.GradeLevelID)
		if err != nil {
			return nil, lookupError(err, "grade level not found", "failed to load grade level")
		}
		level, err := s.structure.FindLevel(ctx, grade.LevelID)
		if err != nil {
			return nil, lookupError(err, "level not found", "failed to load level")
		}
		if level.InstitutionID != course.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grade level belongs to another institution")
		}
	case models.CourseScopeLevel:
		level, err := s.structure.FindLevel(ctx, *course.LevelID)
		if err != nil {
			return nil, lookupError(err, "level not found", "failed to load level")
		}
		if level.InstitutionID != course.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "level belongs to another institution")
		}
	}
	return course, nil
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

// Academic structure kinds accepted by Owner.
const (
	KindLevel           = "level"
	KindGradeLevel      = "grade_level"
	KindArea            = "area"
	KindLevelAssignment = "level_assignment"
	KindCourse          = "course"
)

// Owner returns the institution that owns the academic structure record kind/id.
func (s *AcademicService) Owner(ctx context.Context, kind, id string) (string, error) {
	switch kind {
	case KindLevel:
		level, err := s.structure.FindLevel(ctx, id)
		if err != nil {
			return "", lookupError(err, "level not found", "failed to load level")
		}
		return level.InstitutionID, nil
	case KindGradeLevel:
		grade, err := s.structure.FindGradeLevel(ctx, id)
		if err != nil {
			return "", lookupError(err, "grade level not found", "failed to load grade level")
		}
		return s.Owner(ctx, KindLevel, grade.LevelID)
	case KindArea:
		area, err := s.structure.FindArea(ctx, id)
		if err != nil {
			return "", lookupError(err, "area not found", "failed to load area")
		}
		return area.InstitutionID, nil
	case KindLevelAssignment:
		assignment, err := s.assignments.FindByID(ctx, id)
		if err != nil {
			return "", lookupError(err, "level assignment not found", "failed to load level assignment")
		}
		return assignment.InstitutionID, nil
	case KindCourse:
		course, err := s.GetCourse(ctx, id)
		if err != nil {
			return "", err
		}
		return course.InstitutionID, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown academic record kind %q", kind))
	}
}
