package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
)

func TestDocumentRepositoryCreateTranslatesCodeCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_verification_code_key"})

	err := repo.Create(context.Background(), &models.Document{VerificationCode: "ABCD-EFGH-JKLM", Status: models.DocumentStatusIssued})
	assert.ErrorIs(t, err, ErrDuplicateVerificationCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	path := "documents/inst-1/doc-1.pdf"
	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.verification_code = $1")).
		WithArgs("ABCD-EFGH-JKLM").
		WillReturnRows(sqlmock.NewRows([]string{"id", "institution_id", "student_id", "type", "title", "body", "verification_code", "status", "file_path",
			"issued_by", "issued_at", "revoked_at", "revoke_reason", "student_code", "student_name", "institution_name", "institution_logo"}).
			AddRow("doc-1", "inst-1", "stu-1", "STUDY_CERTIFICATE", "Certificate of Studies", "", "ABCD-EFGH-JKLM", "ISSUED", path,
				nil, now, nil, nil, "S-001", "Ana Quispe", "Colegio San Martin", nil))

	doc, err := repo.FindByCode(context.Background(), "ABCD-EFGH-JKLM")
	require.NoError(t, err)
	assert.True(t, doc.Rendered)
	assert.Equal(t, "Colegio San Martin", doc.InstitutionName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
