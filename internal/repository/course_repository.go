package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const courseColumns = `c.id, c.institution_id, c.area_id, c.code, c.name, c.scope, c.level_assignment_id, c.grade_level_id,
        c.level_id, c.academic_year, c.weekly_hours, c.active, c.created_at, c.updated_at`

// applicableCoursesQuery is the union of the four scope sets. A course carries exactly one scope so the
// branches are disjoint.
const applicableCoursesQuery = `SELECT ` + courseColumns + `
        FROM courses c
        WHERE c.academic_year = $1 AND c.active = TRUE AND (
            (c.scope = 'SECTION_SPECIFIC' AND c.level_assignment_id = $2) OR
            (c.scope = 'WHOLE_GRADE' AND c.grade_level_id = $3) OR
            (c.scope = 'WHOLE_LEVEL' AND c.level_id = $4) OR
            (c.scope = 'WHOLE_INSTITUTION' AND c.institution_id = $5)
        )
        ORDER BY c.code`

func listApplicableCourses(ctx context.Context, q sqlx.QueryerContext, criteria models.CourseScopeCriteria) ([]models.Course, error) {
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, q, &courses, applicableCoursesQuery,
		criteria.AcademicYear, criteria.LevelAssignmentID, criteria.GradeLevelID, criteria.LevelID, criteria.InstitutionID); err != nil {
		return nil, fmt.Errorf("list applicable courses: %w", err)
	}
	return courses, nil
}

// CourseRepository persists courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses with their area name.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := "FROM courses c JOIN curricular_areas a ON a.id = c.area_id"
	var where whereBuilder
	if filter.InstitutionID != "" {
		where.add("c.institution_id = ?", filter.InstitutionID)
	}
	if filter.AreaID != "" {
		where.add("c.area_id = ?", filter.AreaID)
	}
	if filter.Scope != "" {
		where.add("c.scope = ?", filter.Scope)
	}
	if filter.AcademicYear > 0 {
		where.add("c.academic_year = ?", filter.AcademicYear)
	}
	if filter.LevelAssignmentID != "" {
		where.add("c.level_assignment_id = ?", filter.LevelAssignmentID)
	}
	if filter.Active != nil {
		where.add("c.active = ?", *filter.Active)
	}
	if filter.Search != "" {
		where.add("(LOWER(c.name) LIKE ? OR LOWER(c.code) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s, a.name AS area_name %s%s ORDER BY c.academic_year DESC, c.code ASC LIMIT %d OFFSET %d",
		courseColumns, base, where.clause(), limit, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses c WHERE c.id = $1"
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListApplicable returns the active courses of year that apply to a placement.
func (r *CourseRepository) ListApplicable(ctx context.Context, criteria models.CourseScopeCriteria) ([]models.Course, error) {
	return listApplicableCourses(ctx, r.db, criteria)
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, institution_id, area_id, code, name, scope, level_assignment_id, grade_level_id, level_id, academic_year, weekly_hours, active, created_at, updated_at)
        VALUES (:id, :institution_id, :area_id, :code, :name, :scope, :level_assignment_id, :grade_level_id, :level_id, :academic_year, :weekly_hours, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET area_id = :area_id, code = :code, name = :name, scope = :scope, level_assignment_id = :level_assignment_id,
        grade_level_id = :grade_level_id, level_id = :level_id, academic_year = :academic_year, weekly_hours = :weekly_hours, active = :active,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course. Linked courses fail with a foreign key violation.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}
