package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var courseRowColumns = []string{"id", "institution_id", "area_id", "code", "name", "scope", "level_assignment_id", "grade_level_id",
	"level_id", "academic_year", "weekly_hours", "active", "created_at", "updated_at"}

func TestEnrollmentRepositoryExistsForStudentYear(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND academic_year = $2 LIMIT 1")).
		WithArgs("stu-1", 2025).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND academic_year = $2 AND id <> $3 LIMIT 1")).
		WithArgs("stu-1", 2025, "enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsForStudentYear(context.Background(), "stu-1", 2025, "")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForStudentYear(context.Background(), "stu-1", 2025, "enr-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersAndPaginates(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "institution_id", "student_id", "level_assignment_id", "academic_year", "status", "notes", "enrolled_at", "updated_at",
		"student_code", "student_name", "level_code", "grade_number", "section", "course_count"}).
		AddRow("enr-1", "inst-1", "stu-1", "la-1", 2025, "ACTIVE", "", now, now, "S-001", "Quispe, Ana", "PRIMARIA", 3, "B", 7)
	mock.ExpectQuery(`SELECT e\.id, .* WHERE e\.institution_id = \$1 AND e\.academic_year = \$2 AND e\.status = \$3 ORDER BY s\.last_name ASC LIMIT 10 OFFSET 10`).
		WithArgs("inst-1", 2025, models.EnrollmentStatusActive).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments e`).
		WithArgs("inst-1", 2025, models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	list, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		InstitutionID: "inst-1", AcademicYear: 2025, Status: models.EnrollmentStatusActive,
		Page: 2, PageSize: 10, SortBy: "student_name", SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, 7, list[0].CourseCount)
	assert.Equal(t, "Quispe, Ana", list[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentTransactorCommitsAllWrites(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	transactor := NewEnrollmentTransactor(db)

	la := "la-1"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT c\.id, .* FROM courses c\s+WHERE c\.academic_year = \$1 AND c\.active = TRUE`).
		WithArgs(2025, "la-1", "grade-3", "level-p", "inst-1").
		WillReturnRows(sqlmock.NewRows(courseRowColumns).
			AddRow("c-1", "inst-1", "area-1", "MAT3B", "Math", "SECTION_SPECIFIC", la, nil, nil, 2025, 5, true, time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO enrollment_courses").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET current_level_assignment_id = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("stu-1", "la-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := transactor.WithinTransaction(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		enrollment := &models.Enrollment{InstitutionID: "inst-1", StudentID: "stu-1", LevelAssignmentID: la, AcademicYear: 2025, Status: models.EnrollmentStatusPending}
		if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		courses, err := tx.ListApplicableCourses(ctx, models.CourseScopeCriteria{
			LevelAssignmentID: la, GradeLevelID: "grade-3", LevelID: "level-p", InstitutionID: "inst-1", AcademicYear: 2025,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertCourseLinks(ctx, enrollment.ID, []string{courses[0].ID}); err != nil {
			return err
		}
		return tx.SetStudentLevelAssignment(ctx, "stu-1", &la)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentTransactorRollsBackOnLinkFailure(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	transactor := NewEnrollmentTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollment_courses WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec("INSERT INTO enrollment_courses").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	var deleted int64
	err := transactor.WithinTransaction(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		var err error
		if deleted, err = tx.DeleteCourseLinks(ctx, "enr-1"); err != nil {
			return err
		}
		return tx.InsertCourseLinks(ctx, "enr-1", []string{"c-1", "c-2"})
	})
	require.Error(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentTransactorTranslatesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	transactor := NewEnrollmentTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_student_year_key"})
	mock.ExpectRollback()

	err := transactor.WithinTransaction(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		return tx.CreateEnrollment(ctx, &models.Enrollment{StudentID: "stu-1", AcademicYear: 2025, Status: models.EnrollmentStatusPending})
	})
	assert.ErrorIs(t, err, ErrDuplicateEnrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentTransactorReportsMissingStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	transactor := NewEnrollmentTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE students SET current_level_assignment_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := transactor.WithinTransaction(context.Background(), func(ctx context.Context, tx EnrollmentTx) error {
		return tx.SetStudentLevelAssignment(ctx, "ghost", nil)
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
