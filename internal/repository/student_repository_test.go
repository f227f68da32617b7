package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
)

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "institution_id", "code", "first_name", "last_name", "document_number", "birth_date", "gender",
		"guardian_name", "guardian_phone", "address", "active", "current_level_assignment_id", "created_at", "updated_at",
		"current_level_code", "current_grade", "current_section"}).
		AddRow("stu-1", "inst-1", "S-001", "Ana", "Quispe", "12345678", now, "F", "Rosa", "999", "Street", true, "la-1", now, now, "PRIMARIA", 3, "B")
	mock.ExpectQuery(`SELECT s\.id, .* WHERE s\.institution_id = \$1 AND \(LOWER\(s\.first_name\) LIKE \$2 OR LOWER\(s\.last_name\) LIKE \$2 OR LOWER\(s\.code\) LIKE \$2\) ORDER BY s\.created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs("inst-1", "%ana%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE s.institution_id = $1")).
		WithArgs("inst-1", "%ana%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{InstitutionID: "inst-1", Search: "Ana"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, 1, total)
	require.NotNil(t, students[0].CurrentSection)
	assert.Equal(t, "B", *students[0].CurrentSection)
	assert.Equal(t, "Quispe, Ana", students[0].FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "inst-1", "S-002", "Luis", "Mamani", "", nil, "M", "", "", "", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{InstitutionID: "inst-1", Code: "S-002", FirstName: "Luis", LastName: "Mamani", Gender: "M", Active: true}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE institution_id = $1 AND code = $2 AND id <> $3 LIMIT 1")).
		WithArgs("inst-1", "S-001", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByCode(context.Background(), "inst-1", "S-001", "stu-2")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
