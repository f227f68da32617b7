package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const levelAssignmentColumns = `la.id, la.institution_id, la.level_id, la.grade_level_id, la.section, la.academic_year, la.capacity, la.created_at, la.updated_at`

const levelAssignmentDetailSelect = `SELECT ` + levelAssignmentColumns + `,
        l.code AS level_code, l.name AS level_name, g.number AS grade_number, g.name AS grade_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.level_assignment_id = la.id) AS enrolled_count
        FROM level_assignments la
        JOIN levels l ON l.id = la.level_id
        JOIN grade_levels g ON g.id = la.grade_level_id`

// LevelAssignmentRepository persists (level, grade, section, year) slots.
type LevelAssignmentRepository struct {
	db *sqlx.DB
}

// NewLevelAssignmentRepository constructs the repository.
func NewLevelAssignmentRepository(db *sqlx.DB) *LevelAssignmentRepository {
	return &LevelAssignmentRepository{db: db}
}

// List returns level assignments with labels and enrollment counts.
func (r *LevelAssignmentRepository) List(ctx context.Context, filter models.LevelAssignmentFilter) ([]models.LevelAssignmentDetail, int, error) {
	var where whereBuilder
	if filter.InstitutionID != "" {
		where.add("la.institution_id = ?", filter.InstitutionID)
	}
	if filter.LevelID != "" {
		where.add("la.level_id = ?", filter.LevelID)
	}
	if filter.GradeLevelID != "" {
		where.add("la.grade_level_id = ?", filter.GradeLevelID)
	}
	if filter.AcademicYear > 0 {
		where.add("la.academic_year = ?", filter.AcademicYear)
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY la.academic_year DESC, l.sort_order, g.number, la.section LIMIT %d OFFSET %d",
		levelAssignmentDetailSelect, where.clause(), limit, offset)
	var assignments []models.LevelAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list level assignments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM level_assignments la"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count level assignments: %w", err)
	}
	return assignments, total, nil
}

// FindByID returns a level assignment by id.
func (r *LevelAssignmentRepository) FindByID(ctx context.Context, id string) (*models.LevelAssignment, error) {
	var assignment models.LevelAssignment
	if err := r.db.GetContext(ctx, &assignment, "SELECT "+levelAssignmentColumns+" FROM level_assignments la WHERE la.id = $1", id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindDetailByID returns a level assignment with labels.
func (r *LevelAssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.LevelAssignmentDetail, error) {
	var detail models.LevelAssignmentDetail
	if err := r.db.GetContext(ctx, &detail, levelAssignmentDetailSelect+" WHERE la.id = $1", id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a level assignment.
func (r *LevelAssignmentRepository) Create(ctx context.Context, assignment *models.LevelAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt, assignment.UpdatedAt = now, now
	const query = `INSERT INTO level_assignments (id, institution_id, level_id, grade_level_id, section, academic_year, capacity, created_at, updated_at)
        VALUES (:id, :institution_id, :level_id, :grade_level_id, :section, :academic_year, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create level assignment: %w", err)
	}
	return nil
}

// Update rewrites a level assignment.
func (r *LevelAssignmentRepository) Update(ctx context.Context, assignment *models.LevelAssignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE level_assignments SET level_id = :level_id, grade_level_id = :grade_level_id, section = :section,
        academic_year = :academic_year, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("update level assignment: %w", err)
	}
	return nil
}

// Delete removes a level assignment.
func (r *LevelAssignmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM level_assignments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete level assignment: %w", err)
	}
	return nil
}
