package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const studentColumns = `s.id, s.institution_id, s.code, s.first_name, s.last_name, s.document_number, s.birth_date, s.gender,
        s.guardian_name, s.guardian_phone, s.address, s.active, s.current_level_assignment_id, s.created_at, s.updated_at`

const studentDetailFrom = `FROM students s
        LEFT JOIN level_assignments la ON la.id = s.current_level_assignment_id
        LEFT JOIN levels l ON l.id = la.level_id
        LEFT JOIN grade_levels g ON g.id = la.grade_level_id`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var where whereBuilder
	if filter.InstitutionID != "" {
		where.add("s.institution_id = ?", filter.InstitutionID)
	}
	if filter.LevelAssignmentID != "" {
		where.add("s.current_level_assignment_id = ?", filter.LevelAssignmentID)
	}
	if filter.Active != nil {
		where.add("s.active = ?", *filter.Active)
	}
	if filter.Search != "" {
		where.add("(LOWER(s.first_name) LIKE ? OR LOWER(s.last_name) LIKE ? OR LOWER(s.code) LIKE ?)", "%"+strings.ToLower(filter.Search)+"%")
	}

	sorts := map[string]string{
		"last_name":  "s.last_name",
		"code":       "s.code",
		"created_at": "s.created_at",
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s,
        l.code AS current_level_code, g.number AS current_grade, la.section AS current_section
        %s%s ORDER BY %s LIMIT %d OFFSET %d`, studentColumns, studentDetailFrom, where.clause(),
		orderBy(sorts, filter.SortBy, "created_at", filter.SortOrder), limit, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students s WHERE s.id = $1"
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindDetailByID fetches a student with its current placement labels.
func (r *StudentRepository) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        l.code AS current_level_code, g.number AS current_grade, la.section AS current_section
        %s WHERE s.id = $1`, studentColumns, studentDetailFrom)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByCode checks if a student code is taken inside an institution, optionally excluding an ID.
func (r *StudentRepository) ExistsByCode(ctx context.Context, institutionID, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE institution_id = $1 AND code = $2"
	args := []interface{}{institutionID, code}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check student code: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, institution_id, code, first_name, last_name, document_number, birth_date, gender, guardian_name, guardian_phone, address, active, created_at, updated_at)
        VALUES (:id, :institution_id, :code, :first_name, :last_name, :document_number, :birth_date, :gender, :guardian_name, :guardian_phone, :address, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student. The current level assignment is owned by enrollments and left untouched.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET code = :code, first_name = :first_name, last_name = :last_name, document_number = :document_number,
        birth_date = :birth_date, gender = :gender, guardian_name = :guardian_name, guardian_phone = :guardian_phone, address = :address,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate marks a student as inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
