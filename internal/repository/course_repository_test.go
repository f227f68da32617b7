package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
)

func TestCourseRepositoryListApplicableUsesFourScopeBranches(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	la, grade, level := "la-1", "grade-3", "level-p"
	mock.ExpectQuery(regexp.QuoteMeta(`(c.scope = 'SECTION_SPECIFIC' AND c.level_assignment_id = $2) OR
            (c.scope = 'WHOLE_GRADE' AND c.grade_level_id = $3) OR
            (c.scope = 'WHOLE_LEVEL' AND c.level_id = $4) OR
            (c.scope = 'WHOLE_INSTITUTION' AND c.institution_id = $5)`)).
		WithArgs(2025, la, grade, level, "inst-1").
		WillReturnRows(sqlmock.NewRows(courseRowColumns).
			AddRow("c-1", "inst-1", "area-1", "COM", "Communication", "WHOLE_GRADE", nil, grade, nil, 2025, 4, true, now, now).
			AddRow("c-2", "inst-1", "area-1", "MAT", "Mathematics", "SECTION_SPECIFIC", la, nil, nil, 2025, 5, true, now, now))

	criteria := models.CourseScopeCriteria{LevelAssignmentID: la, GradeLevelID: grade, LevelID: level, InstitutionID: "inst-1", AcademicYear: 2025}
	courses, err := repo.ListApplicable(context.Background(), criteria)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	for _, course := range courses {
		assert.True(t, course.MatchesScope(criteria), course.Code)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLevelAssignmentRepositoryFindDetail(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewLevelAssignmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM level_assignments la\s+JOIN levels l .* WHERE la\.id = \$1`).
		WithArgs("la-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "institution_id", "level_id", "grade_level_id", "section", "academic_year", "capacity", "created_at", "updated_at",
			"level_code", "level_name", "grade_number", "grade_name", "enrolled_count"}).
			AddRow("la-1", "inst-1", "level-p", "grade-3", "B", 2025, 30, now, now, "PRIMARIA", "Primaria", 3, "Tercero", 12))

	detail, err := repo.FindDetailByID(context.Background(), "la-1")
	require.NoError(t, err)
	assert.Equal(t, "PRIMARIA 3B", detail.Label())
	assert.Equal(t, 12, detail.EnrolledCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
