package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/pkg/database"
)

// ErrDuplicateVerificationCode is returned when a generated code collides with an existing document.
var ErrDuplicateVerificationCode = errors.New("verification code already in use")

const documentVerificationCodeKey = "documents_verification_code_key"

const documentColumns = `d.id, d.institution_id, d.student_id, d.type, d.title, d.body, d.verification_code, d.status, d.file_path,
        d.issued_by, d.issued_at, d.revoked_at, d.revoke_reason`

const documentDetailSelect = `SELECT ` + documentColumns + `,
        s.code AS student_code, s.first_name || ' ' || s.last_name AS student_name,
        i.name AS institution_name, i.logo_path AS institution_logo
        FROM documents d
        JOIN students s ON s.id = d.student_id
        JOIN institutions i ON i.id = d.institution_id`

// DocumentRepository persists issued certificates.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// List returns documents with labels, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.DocumentDetail, int, error) {
	var where whereBuilder
	if filter.InstitutionID != "" {
		where.add("d.institution_id = ?", filter.InstitutionID)
	}
	if filter.StudentID != "" {
		where.add("d.student_id = ?", filter.StudentID)
	}
	if filter.Type != "" {
		where.add("d.type = ?", filter.Type)
	}
	if filter.Status != "" {
		where.add("d.status = ?", filter.Status)
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY d.issued_at DESC LIMIT %d OFFSET %d", documentDetailSelect, where.clause(), limit, offset)
	var documents []models.DocumentDetail
	if err := r.db.SelectContext(ctx, &documents, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	for i := range documents {
		documents[i].Rendered = documents[i].FilePath != nil
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents d"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return documents, total, nil
}

// FindDetailByID returns a document with labels.
func (r *DocumentRepository) FindDetailByID(ctx context.Context, id string) (*models.DocumentDetail, error) {
	return r.findDetail(ctx, "d.id", id)
}

// FindByCode returns the document carrying a verification code.
func (r *DocumentRepository) FindByCode(ctx context.Context, code string) (*models.DocumentDetail, error) {
	return r.findDetail(ctx, "d.verification_code", code)
}

func (r *DocumentRepository) findDetail(ctx context.Context, column, value string) (*models.DocumentDetail, error) {
	var detail models.DocumentDetail
	if err := r.db.GetContext(ctx, &detail, documentDetailSelect+" WHERE "+column+" = $1", value); err != nil {
		return nil, err
	}
	detail.Rendered = detail.FilePath != nil
	return &detail, nil
}

// Create inserts a document. A verification code collision yields ErrDuplicateVerificationCode.
func (r *DocumentRepository) Create(ctx context.Context, document *models.Document) error {
	if document.ID == "" {
		document.ID = uuid.NewString()
	}
	if document.IssuedAt.IsZero() {
		document.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, institution_id, student_id, type, title, body, verification_code, status, issued_by, issued_at)
        VALUES (:id, :institution_id, :student_id, :type, :title, :body, :verification_code, :status, :issued_by, :issued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, document); err != nil {
		if database.IsUniqueViolation(err, documentVerificationCodeKey) {
			return ErrDuplicateVerificationCode
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// SetFilePath records where the rendered PDF lives.
func (r *DocumentRepository) SetFilePath(ctx context.Context, id, path string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE documents SET file_path = $2 WHERE id = $1", id, path); err != nil {
		return fmt.Errorf("set document file: %w", err)
	}
	return nil
}

// Revoke marks a document revoked.
func (r *DocumentRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	const query = `UPDATE documents SET status = 'REVOKED', revoked_at = $2, revoke_reason = $3 WHERE id = $1 AND status = 'ISSUED'`
	if _, err := r.db.ExecContext(ctx, query, id, at, reason); err != nil {
		return fmt.Errorf("revoke document: %w", err)
	}
	return nil
}
