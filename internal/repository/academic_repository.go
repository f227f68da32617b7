package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

// AcademicRepository persists levels, grade levels and curricular areas.
type AcademicRepository struct {
	db *sqlx.DB
}

// NewAcademicRepository constructs the repository.
func NewAcademicRepository(db *sqlx.DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

// ListLevels returns the levels of an institution in display order.
func (r *AcademicRepository) ListLevels(ctx context.Context, institutionID string) ([]models.Level, error) {
	const query = `SELECT id, institution_id, code, name, sort_order, created_at, updated_at FROM levels WHERE institution_id = $1 ORDER BY sort_order, code`
	var levels []models.Level
	if err := r.db.SelectContext(ctx, &levels, query, institutionID); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}

// FindLevel returns a level by id.
func (r *AcademicRepository) FindLevel(ctx context.Context, id string) (*models.Level, error) {
	const query = `SELECT id, institution_id, code, name, sort_order, created_at, updated_at FROM levels WHERE id = $1`
	var level models.Level
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		return nil, err
	}
	return &level, nil
}

// CreateLevel inserts a level.
func (r *AcademicRepository) CreateLevel(ctx context.Context, level *models.Level) error {
	if level.ID == "" {
		level.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	level.CreatedAt, level.UpdatedAt = now, now
	const query = `INSERT INTO levels (id, institution_id, code, name, sort_order, created_at, updated_at)
        VALUES (:id, :institution_id, :code, :name, :sort_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("create level: %w", err)
	}
	return nil
}

// UpdateLevel rewrites a level.
func (r *AcademicRepository) UpdateLevel(ctx context.Context, level *models.Level) error {
	level.UpdatedAt = time.Now().UTC()
	const query = `UPDATE levels SET code = :code, name = :name, sort_order = :sort_order, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, level); err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	return nil
}

// DeleteLevel removes a level and its grades.
func (r *AcademicRepository) DeleteLevel(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM levels WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete level: %w", err)
	}
	return nil
}

// ListGradeLevels returns the grades of a level.
func (r *AcademicRepository) ListGradeLevels(ctx context.Context, levelID string) ([]models.GradeLevel, error) {
	const query = `SELECT id, level_id, number, name, created_at, updated_at FROM grade_levels WHERE level_id = $1 ORDER BY number`
	var grades []models.GradeLevel
	if err := r.db.SelectContext(ctx, &grades, query, levelID); err != nil {
		return nil, fmt.Errorf("list grade levels: %w", err)
	}
	return grades, nil
}

// FindGradeLevel returns a grade level by id.
func (r *AcademicRepository) FindGradeLevel(ctx context.Context, id string) (*models.GradeLevel, error) {
	const query = `SELECT id, level_id, number, name, created_at, updated_at FROM grade_levels WHERE id = $1`
	var grade models.GradeLevel
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// CreateGradeLevel inserts a grade level.
func (r *AcademicRepository) CreateGradeLevel(ctx context.Context, grade *models.GradeLevel) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.CreatedAt, grade.UpdatedAt = now, now
	const query = `INSERT INTO grade_levels (id, level_id, number, name, created_at, updated_at) VALUES (:id, :level_id, :number, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade level: %w", err)
	}
	return nil
}

// DeleteGradeLevel removes a grade level.
func (r *AcademicRepository) DeleteGradeLevel(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM grade_levels WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete grade level: %w", err)
	}
	return nil
}

// ListAreas returns the curricular areas of an institution.
func (r *AcademicRepository) ListAreas(ctx context.Context, institutionID string) ([]models.CurricularArea, error) {
	const query = `SELECT id, institution_id, code, name, created_at, updated_at FROM curricular_areas WHERE institution_id = $1 ORDER BY name`
	var areas []models.CurricularArea
	if err := r.db.SelectContext(ctx, &areas, query, institutionID); err != nil {
		return nil, fmt.Errorf("list curricular areas: %w", err)
	}
	return areas, nil
}

// FindArea returns a curricular area by id.
func (r *AcademicRepository) FindArea(ctx context.Context, id string) (*models.CurricularArea, error) {
	const query = `SELECT id, institution_id, code, name, created_at, updated_at FROM curricular_areas WHERE id = $1`
	var area models.CurricularArea
	if err := r.db.GetContext(ctx, &area, query, id); err != nil {
		return nil, err
	}
	return &area, nil
}

// CreateArea inserts a curricular area.
func (r *AcademicRepository) CreateArea(ctx context.Context, area *models.CurricularArea) error {
	if area.ID == "" {
		area.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	area.CreatedAt, area.UpdatedAt = now, now
	const query = `INSERT INTO curricular_areas (id, institution_id, code, name, created_at, updated_at) VALUES (:id, :institution_id, :code, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, area); err != nil {
		return fmt.Errorf("create curricular area: %w", err)
	}
	return nil
}

// DeleteArea removes a curricular area.
func (r *AcademicRepository) DeleteArea(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM curricular_areas WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete curricular area: %w", err)
	}
	return nil
}
