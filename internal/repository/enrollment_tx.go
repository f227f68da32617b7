package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

// EnrollmentTx is the set of writes the enrollment resolver performs inside one transaction.
type EnrollmentTx interface {
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	DeleteEnrollment(ctx context.Context, id string) error
	DeleteCourseLinks(ctx context.Context, enrollmentID string) (int64, error)
	InsertCourseLinks(ctx context.Context, enrollmentID string, courseIDs []string) error
	ListApplicableCourses(ctx context.Context, criteria models.CourseScopeCriteria) ([]models.Course, error)
	SetStudentLevelAssignment(ctx context.Context, studentID string, assignmentID *string) error
}

// EnrollmentTransactor opens database transactions for the enrollment resolver.
type EnrollmentTransactor struct {
	db *sqlx.DB
}

// NewEnrollmentTransactor constructs the transactor.
func NewEnrollmentTransactor(db *sqlx.DB) *EnrollmentTransactor {
	return &EnrollmentTransactor{db: db}
}

// WithinTransaction runs fn in a read-committed transaction. Any error returned by fn rolls back every write.
func (t *EnrollmentTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx EnrollmentTx) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &sqlEnrollmentTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

type sqlEnrollmentTx struct {
	tx *sqlx.Tx
}

func (s *sqlEnrollmentTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, institution_id, student_id, level_assignment_id, academic_year, status, notes, enrolled_at, updated_at)
        VALUES (:id, :institution_id, :student_id, :level_assignment_id, :academic_year, :status, :notes, :enrolled_at, :updated_at)`
	if _, err := s.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return translateEnrollmentError("create enrollment", err)
	}
	return nil
}

func (s *sqlEnrollmentTx) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET level_assignment_id = :level_assignment_id, academic_year = :academic_year, status = :status,
        notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := s.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return translateEnrollmentError("update enrollment", err)
	}
	return nil
}

func (s *sqlEnrollmentTx) DeleteEnrollment(ctx context.Context, id string) error {
	if _, err := s.tx.ExecContext(ctx, "DELETE FROM enrollments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

func (s *sqlEnrollmentTx) DeleteCourseLinks(ctx context.Context, enrollmentID string) (int64, error) {
	res, err := s.tx.ExecContext(ctx, "DELETE FROM enrollment_courses WHERE enrollment_id = $1", enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("delete enrollment courses: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete enrollment courses: %w", err)
	}
	return deleted, nil
}

func (s *sqlEnrollmentTx) InsertCourseLinks(ctx context.Context, enrollmentID string, courseIDs []string) error {
	if len(courseIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	links := make([]models.EnrollmentCourseLink, len(courseIDs))
	for i, courseID := range courseIDs {
		links[i] = models.EnrollmentCourseLink{ID: uuid.NewString(), EnrollmentID: enrollmentID, CourseID: courseID, CreatedAt: now}
	}
	const query = `INSERT INTO enrollment_courses (id, enrollment_id, course_id, created_at) VALUES (:id, :enrollment_id, :course_id, :created_at)`
	if _, err := s.tx.NamedExecContext(ctx, query, links); err != nil {
		return fmt.Errorf("insert enrollment courses: %w", err)
	}
	return nil
}

func (s *sqlEnrollmentTx) ListApplicableCourses(ctx context.Context, criteria models.CourseScopeCriteria) ([]models.Course, error) {
	return listApplicableCourses(ctx, s.tx, criteria)
}

func (s *sqlEnrollmentTx) SetStudentLevelAssignment(ctx context.Context, studentID string, assignmentID *string) error {
	res, err := s.tx.ExecContext(ctx, "UPDATE students SET current_level_assignment_id = $2, updated_at = $3 WHERE id = $1",
		studentID, assignmentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set student level assignment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set student level assignment: student %s not found", studentID)
	}
	return nil
}
