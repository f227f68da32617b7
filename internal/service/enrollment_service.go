package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/repository"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/export"
)

const (
	enrollmentOpCreate = "create"
	enrollmentOpUpdate = "update"
	enrollmentOpDelete = "delete"

	invalidationTimeout = 2 * time.Second
)

type enrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsForStudentYear(ctx context.Context, studentID string, year int, excludeID string) (bool, error)
	Roster(ctx context.Context, assignmentID string, year int) ([]models.EnrollmentDetail, error)
}

type levelAssignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.LevelAssignment, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentTransactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.EnrollmentTx) error) error
}

// viewCache is the read cache plus the invalidation hook notified after committed writes.
type viewCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, patterns ...string) error
}

// CreateEnrollmentRequest is the payload for enrolling a student.
type CreateEnrollmentRequest struct {
	StudentID         string `json:"student_id" validate:"required"`
	LevelAssignmentID string `json:"level_assignment_id" validate:"required"`
	AcademicYear      int    `json:"academic_year" validate:"required,gte=2000,lte=2100"`
	Status            string `json:"status" validate:"omitempty,enrollment_status"`
	Notes             string `json:"notes" validate:"max=1000"`
}

// UpdateEnrollmentRequest is the payload for moving or re-labelling an enrollment.
// An empty Status keeps the stored one; a nil Notes keeps the stored notes.
type UpdateEnrollmentRequest struct {
	LevelAssignmentID string  `json:"level_assignment_id" validate:"required"`
	AcademicYear      int     `json:"academic_year" validate:"required,gte=2000,lte=2100"`
	Status            string  `json:"status" validate:"omitempty,enrollment_status"`
	Notes             *string `json:"notes" validate:"omitempty,max=1000"`
}

// EnrollmentOutcome is the committed result of a create or update.
type EnrollmentOutcome struct {
	Enrollment        models.Enrollment `json:"enrollment"`
	Courses           []models.Course   `json:"courses,omitempty"`
	CoursesRecomputed bool              `json:"courses_recomputed"`
	LinksRemoved      int64             `json:"links_removed"`
	LinksCreated      int               `json:"links_created"`
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// EnrollmentServiceConfig tunes optional behaviour.
type EnrollmentServiceConfig struct {
	ListCacheTTL time.Duration
}

// EnrollmentService resolves the courses of a student's yearly enrollment and keeps them consistent.
type EnrollmentService struct {
	enrollments enrollmentReader
	assignments levelAssignmentReader
	students    studentReader
	tx          enrollmentTransactor
	cache       viewCache
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         EnrollmentServiceConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	enrollments enrollmentReader,
	assignments levelAssignmentReader,
	students studentReader,
	tx enrollmentTransactor,
	cache viewCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg EnrollmentServiceConfig,
) *EnrollmentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &EnrollmentService{
		enrollments: enrollments,
		assignments: assignments,
		students:    students,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns enrollments with pagination metadata. Results are cached per filter.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" {
		status, ok := models.ParseEnrollmentStatus(string(filter.Status))
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment status")
		}
		filter.Status = status
	}

	key := enrollmentListCacheKey(filter)
	var cached enrollmentListPage
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Items, cached.Pagination, nil
	}

	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list enrollments")
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, total)
	_ = s.cache.Set(ctx, key, enrollmentListPage{Items: items, Pagination: pagination}, s.cfg.ListCacheTTL)
	return items, pagination, nil
}

// Get returns an enrollment with its linked courses.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return detail, nil
}

// Create enrolls a student for a year and links every course applicable to the level assignment.
// The enrollment row, its course links and the student's current assignment pointer are written in
// one transaction; an empty course set rejects the enrollment.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (out *EnrollmentOutcome, err error) {
	defer func() { s.record(enrollmentOpCreate, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	status := models.EnrollmentStatusPending
	if req.Status != "" {
		status, _ = models.ParseEnrollmentStatus(req.Status)
	}

	assignment, err := s.loadAssignment(ctx, req.LevelAssignmentID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, internalError(err, "failed to load student")
	}
	if student.InstitutionID != assignment.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and level assignment belong to different institutions")
	}

	exists, err := s.enrollments.ExistsForStudentYear(ctx, req.StudentID, req.AcademicYear, "")
	if err != nil {
		return nil, internalError(err, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate enrollment")
	}

	enrollment := models.Enrollment{
		InstitutionID:     assignment.InstitutionID,
		StudentID:         req.StudentID,
		LevelAssignmentID: assignment.ID,
		AcademicYear:      req.AcademicYear,
		Status:            status,
		Notes:             req.Notes,
	}
	outcome := &EnrollmentOutcome{CoursesRecomputed: true}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		courses, err := s.resolveCourses(ctx, tx, assignment, req.AcademicYear)
		if err != nil {
			return err
		}
		if err := tx.CreateEnrollment(ctx, &enrollment); err != nil {
			return err
		}
		if err := tx.InsertCourseLinks(ctx, enrollment.ID, courseIDs(courses)); err != nil {
			return err
		}
		assignmentID := assignment.ID
		if err := tx.SetStudentLevelAssignment(ctx, enrollment.StudentID, &assignmentID); err != nil {
			return err
		}
		outcome.Courses = courses
		outcome.LinksCreated = len(courses)
		return nil
	})
	if err != nil {
		return nil, s.translateTxError(err, "failed to create enrollment")
	}

	outcome.Enrollment = enrollment
	s.invalidateViews(ctx)
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.Int("courses", outcome.LinksCreated))
	return outcome, nil
}

// Update changes the placement, status or notes of an enrollment. Course links are recomputed only
// when the level assignment or the academic year changes, and the replacement happens atomically.
// The student's current assignment pointer is rewritten on every update.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (out *EnrollmentOutcome, err error) {
	defer func() { s.record(enrollmentOpUpdate, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}

	current, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	assignment, err := s.loadAssignment(ctx, req.LevelAssignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.InstitutionID != current.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level assignment belongs to a different institution")
	}

	if req.AcademicYear != current.AcademicYear {
		exists, err := s.enrollments.ExistsForStudentYear(ctx, current.StudentID, req.AcademicYear, current.ID)
		if err != nil {
			return nil, internalError(err, "failed to check existing enrollment")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate enrollment")
		}
	}

	updated := *current
	updated.LevelAssignmentID = assignment.ID
	updated.AcademicYear = req.AcademicYear
	if req.Status != "" {
		updated.Status, _ = models.ParseEnrollmentStatus(req.Status)
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}
	recompute := updated.LevelAssignmentID != current.LevelAssignmentID || updated.AcademicYear != current.AcademicYear
	outcome := &EnrollmentOutcome{CoursesRecomputed: recompute}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		if recompute {
			removed, err := tx.DeleteCourseLinks(ctx, updated.ID)
			if err != nil {
				return err
			}
			courses, err := s.resolveCourses(ctx, tx, assignment, updated.AcademicYear)
			if err != nil {
				return err
			}
			if err := tx.InsertCourseLinks(ctx, updated.ID, courseIDs(courses)); err != nil {
				return err
			}
			outcome.Courses = courses
			outcome.LinksRemoved = removed
			outcome.LinksCreated = len(courses)
		}
		if err := tx.UpdateEnrollment(ctx, &updated); err != nil {
			return err
		}
		assignmentID := updated.LevelAssignmentID
		return tx.SetStudentLevelAssignment(ctx, updated.StudentID, &assignmentID)
	})
	if err != nil {
		return nil, s.translateTxError(err, "failed to update enrollment")
	}

	outcome.Enrollment = updated
	s.invalidateViews(ctx)
	s.logger.Info("enrollment updated",
		zap.String("enrollment_id", updated.ID),
		zap.Bool("courses_recomputed", recompute),
		zap.Int64("links_removed", outcome.LinksRemoved),
		zap.Int("links_created", outcome.LinksCreated))
	return outcome, nil
}

// Delete removes an enrollment and its course links. The student's pointer is cleared when it still
// references the enrollment's level assignment.
func (s *EnrollmentService) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.record(enrollmentOpDelete, err) }()

	current, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return internalError(err, "failed to load enrollment")
	}
	student, err := s.students.FindByID(ctx, current.StudentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to load student")
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, tx repository.EnrollmentTx) error {
		if _, err := tx.DeleteCourseLinks(ctx, current.ID); err != nil {
			return err
		}
		if err := tx.DeleteEnrollment(ctx, current.ID); err != nil {
			return err
		}
		if student != nil && student.CurrentLevelAssignmentID != nil && *student.CurrentLevelAssignmentID == current.LevelAssignmentID {
			return tx.SetStudentLevelAssignment(ctx, student.ID, nil)
		}
		return nil
	})
	if err != nil {
		return s.translateTxError(err, "failed to delete enrollment")
	}
	s.invalidateViews(ctx)
	return nil
}

// ExportRoster renders the enrollments of a level assignment for a year as CSV or PDF.
func (s *EnrollmentService) ExportRoster(ctx context.Context, assignmentID string, year int, format string) (*ExportFile, error) {
	var renderer interface {
		Render(export.Table) ([]byte, error)
		ContentType() string
		Extension() string
	}
	switch format {
	case "", "csv":
		renderer = export.NewCSVExporter()
	case "pdf":
		renderer = export.NewPDFExporter()
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if year <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academic_year is required")
	}
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	roster, err := s.enrollments.Roster(ctx, assignment.ID, year)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}

	table := export.Table{
		Title:    "Enrollment roster",
		Subtitle: fmt.Sprintf("Academic year %d, section %s", year, assignment.Section),
		Columns: []export.Column{
			{Key: "code", Label: "Code"},
			{Key: "student", Label: "Student", Width: 3},
			{Key: "level", Label: "Level"},
			{Key: "grade", Label: "Grade"},
			{Key: "section", Label: "Section"},
			{Key: "status", Label: "Status"},
			{Key: "courses", Label: "Courses"},
		},
	}
	for _, row := range roster {
		table.Rows = append(table.Rows, map[string]string{
			"code":    row.StudentCode,
			"student": row.StudentName,
			"level":   row.LevelCode,
			"grade":   strconv.Itoa(row.GradeNumber),
			"section": row.Section,
			"status":  string(row.Status),
			"courses": strconv.Itoa(row.CourseCount),
		})
	}
	data, err := renderer.Render(table)
	if err != nil {
		return nil, internalError(err, "failed to render roster")
	}
	return &ExportFile{
		Name:        fmt.Sprintf("roster-%s-%d.%s", assignment.ID, year, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func (s *EnrollmentService) loadAssignment(ctx context.Context, id string) (*models.LevelAssignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid level assignment")
		}
		return nil, internalError(err, "failed to load level assignment")
	}
	return assignment, nil
}

// resolveCourses returns the union of section, grade, level and institution scoped courses that are
// active in year. Every returned course is checked against the placement and must appear once.
func (s *EnrollmentService) resolveCourses(ctx context.Context, tx repository.EnrollmentTx, assignment *models.LevelAssignment, year int) ([]models.Course, error) {
	criteria := assignment.ScopeCriteria(year)
	courses, err := tx.ListApplicableCourses(ctx, criteria)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(courses))
	for _, course := range courses {
		if _, dup := seen[course.ID]; dup {
			return nil, fmt.Errorf("course %s resolved more than once", course.ID)
		}
		seen[course.ID] = struct{}{}
		if !course.MatchesScope(criteria) {
			return nil, fmt.Errorf("course %s does not match scope %s", course.ID, course.Scope)
		}
	}
	if len(courses) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPolicy, "no courses available for this assignment/year")
	}
	return courses, nil
}

// translateTxError keeps typed business errors and maps the rest to conflicts or internal errors.
func (s *EnrollmentService) translateTxError(err error, message string) error {
	if errors.Is(err, repository.ErrDuplicateEnrollment) {
		return appErrors.Clone(appErrors.ErrConflict, "duplicate enrollment")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.Error(message, zap.Error(err))
	return internalError(err, message)
}

// invalidateViews notifies the cache after a committed write. Failures never fail the operation.
func (s *EnrollmentService) invalidateViews(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidationTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, cachePrefixEnrollments+"*", cachePrefixDashboard+"*"); err != nil {
		s.logger.Warn("view invalidation failed", zap.Error(err))
	}
}

func (s *EnrollmentService) record(op string, err error) {
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case appErrors.IsInternal(err):
		outcome = OutcomeError
	default:
		outcome = OutcomeRejected
	}
	s.metrics.RecordEnrollmentOperation(op, outcome)
}

type enrollmentListPage struct {
	Items      []models.EnrollmentDetail `json:"items"`
	Pagination *models.Pagination        `json:"pagination"`
}

func enrollmentListCacheKey(f models.EnrollmentFilter) string {
	return fmt.Sprintf("%sinst=%s:student=%s:la=%s:year=%d:status=%s:q=%s:p=%d:s=%d:sort=%s:%s",
		cachePrefixEnrollments, f.InstitutionID, f.StudentID, f.LevelAssignmentID, f.AcademicYear, f.Status,
		f.Search, f.Page, f.PageSize, f.SortBy, f.SortOrder)
}

func courseIDs(courses []models.Course) []string {
	ids := make([]string, len(courses))
	for i, course := range courses {
		ids[i] = course.ID
	}
	return ids
}
