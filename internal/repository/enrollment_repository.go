package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/pkg/database"
)

// ErrDuplicateEnrollment is returned when a student already has an enrollment for the academic year.
var ErrDuplicateEnrollment = errors.New("duplicate enrollment")

const enrollmentStudentYearKey = "enrollments_student_year_key"

const enrollmentColumns = `e.id, e.institution_id, e.student_id, e.level_assignment_id, e.academic_year, e.status, e.notes, e.enrolled_at, e.updated_at`

const enrollmentDetailColumns = enrollmentColumns + `,
        s.code AS student_code, s.last_name || ', ' || s.first_name AS student_name,
        l.code AS level_code, g.number AS grade_number, la.section,
        (SELECT COUNT(*) FROM enrollment_courses ec WHERE ec.enrollment_id = e.id) AS course_count`

const enrollmentDetailFrom = `FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN level_assignments la ON la.id = e.level_assignment_id
        JOIN levels l ON l.id = la.level_id
        JOIN grade_levels g ON g.id = la.grade_level_id`

// EnrollmentRepository handles read access to enrollments. Writes go through EnrollmentTransactor.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var where whereBuilder
	if filter.InstitutionID != "" {
		where.add("e.institution_id = ?", filter.InstitutionID)
	}
	if filter.StudentID != "" {
		where.add("e.student_id = ?", filter.StudentID)
	}
	if filter.LevelAssignmentID != "" {
		where.add("e.level_assignment_id = ?", filter.LevelAssignmentID)
	}
	if filter.AcademicYear > 0 {
		where.add("e.academic_year = ?", filter.AcademicYear)
	}
	if filter.Status != "" {
		where.add("e.status = ?", filter.Status)
	}
	if filter.Search != "" {
		where.add("(LOWER(s.first_name) LIKE ? OR LOWER(s.last_name) LIKE ? OR LOWER(s.code) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}

	sorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.last_name",
		"status":       "e.status",
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s%s ORDER BY %s LIMIT %d OFFSET %d",
		enrollmentDetailColumns, enrollmentDetailFrom, where.clause(), orderBy(sorts, filter.SortBy, "enrolled_at", filter.SortOrder), limit, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+enrollmentDetailFrom+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments e WHERE e.id = $1"
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info and its linked courses.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := "SELECT " + enrollmentDetailColumns + " " + enrollmentDetailFrom + " WHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	courses, err := r.ListCourses(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Courses = courses
	return &detail, nil
}

// ListCourses returns the courses linked to an enrollment.
func (r *EnrollmentRepository) ListCourses(ctx context.Context, enrollmentID string) ([]models.EnrollmentCourse, error) {
	const query = `SELECT ec.id AS link_id, c.id AS course_id, c.code, c.name, c.scope, a.name AS area_name
        FROM enrollment_courses ec
        JOIN courses c ON c.id = ec.course_id
        JOIN curricular_areas a ON a.id = c.area_id
        WHERE ec.enrollment_id = $1
        ORDER BY c.code`
	var courses []models.EnrollmentCourse
	if err := r.db.SelectContext(ctx, &courses, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment courses: %w", err)
	}
	return courses, nil
}

// ExistsForStudentYear reports whether the student already has an enrollment in year, ignoring excludeID.
func (r *EnrollmentRepository) ExistsForStudentYear(ctx context.Context, studentID string, year int, excludeID string) (bool, error) {
	query := "SELECT 1 FROM enrollments WHERE student_id = $1 AND academic_year = $2"
	args := []interface{}{studentID, year}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// CountByAssignment returns how many enrollments reference a level assignment.
func (r *EnrollmentRepository) CountByAssignment(ctx context.Context, assignmentID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments WHERE level_assignment_id = $1", assignmentID); err != nil {
		return 0, fmt.Errorf("count assignment enrollments: %w", err)
	}
	return total, nil
}

// Roster returns the enrollments of a level assignment for a year ordered by student name.
func (r *EnrollmentRepository) Roster(ctx context.Context, assignmentID string, year int) ([]models.EnrollmentDetail, error) {
	query := "SELECT " + enrollmentDetailColumns + " " + enrollmentDetailFrom +
		" WHERE e.level_assignment_id = $1 AND e.academic_year = $2 ORDER BY s.last_name, s.first_name"
	var roster []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &roster, query, assignmentID, year); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return roster, nil
}

// translateEnrollmentError maps the student/year unique violation to ErrDuplicateEnrollment.
func translateEnrollmentError(op string, err error) error {
	if database.IsUniqueViolation(err, enrollmentStudentYearKey) {
		return ErrDuplicateEnrollment
	}
	return fmt.Errorf("%s: %w", op, err)
}
