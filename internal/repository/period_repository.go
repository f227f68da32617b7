package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const periodColumns = `id, institution_id, academic_year, type, number, name, start_date, end_date, is_active, created_at, updated_at`

// PeriodRepository persists academic periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs the repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// List returns periods ordered by year and number.
func (r *PeriodRepository) List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, error) {
	var where whereBuilder
	where.add("institution_id = ?", filter.InstitutionID)
	if filter.AcademicYear > 0 {
		where.add("academic_year = ?", filter.AcademicYear)
	}
	if filter.Type != "" {
		where.add("type = ?", filter.Type)
	}
	if filter.Active != nil {
		where.add("is_active = ?", *filter.Active)
	}
	query := "SELECT " + periodColumns + " FROM academic_periods" + where.clause() + " ORDER BY academic_year DESC, number ASC"
	var periods []models.AcademicPeriod
	if err := r.db.SelectContext(ctx, &periods, query, where.args...); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// FindByID returns a period by id.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.AcademicPeriod, error) {
	var period models.AcademicPeriod
	if err := r.db.GetContext(ctx, &period, "SELECT "+periodColumns+" FROM academic_periods WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &period, nil
}

// FindCurrent returns the period of an institution containing day.
func (r *PeriodRepository) FindCurrent(ctx context.Context, institutionID string, day time.Time) (*models.AcademicPeriod, error) {
	const query = `SELECT ` + periodColumns + ` FROM academic_periods
        WHERE institution_id = $1 AND start_date <= $2 AND end_date >= $2
        ORDER BY is_active DESC, start_date DESC LIMIT 1`
	var period models.AcademicPeriod
	if err := r.db.GetContext(ctx, &period, query, institutionID, day.UTC().Format("2006-01-02")); err != nil {
		return nil, err
	}
	return &period, nil
}

// Create inserts a period.
func (r *PeriodRepository) Create(ctx context.Context, period *models.AcademicPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	period.CreatedAt, period.UpdatedAt = now, now
	const query = `INSERT INTO academic_periods (id, institution_id, academic_year, type, number, name, start_date, end_date, is_active, created_at, updated_at)
        VALUES (:id, :institution_id, :academic_year, :type, :number, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

// Update rewrites a period.
func (r *PeriodRepository) Update(ctx context.Context, period *models.AcademicPeriod) error {
	period.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_periods SET type = :type, number = :number, name = :name, start_date = :start_date, end_date = :end_date,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	return nil
}

// Delete removes a period.
func (r *PeriodRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM academic_periods WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	return nil
}

// SetActive marks one period active and deactivates its siblings of the same institution and year.
func (r *PeriodRepository) SetActive(ctx context.Context, period *models.AcademicPeriod) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active period: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE academic_periods SET is_active = FALSE, updated_at = $3
        WHERE institution_id = $1 AND academic_year = $2 AND is_active = TRUE`, period.InstitutionID, period.AcademicYear, now); err != nil {
		return fmt.Errorf("deactivate periods: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "UPDATE academic_periods SET is_active = TRUE, updated_at = $2 WHERE id = $1", period.ID, now); err != nil {
		return fmt.Errorf("activate period: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active period: %w", err)
	}
	period.IsActive = true
	period.UpdatedAt = now
	return nil
}
