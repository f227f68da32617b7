package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const institutionColumns = `id, name, code, address, logo_path, active, created_at, updated_at`

// InstitutionRepository persists tenants.
type InstitutionRepository struct {
	db *sqlx.DB
}

// NewInstitutionRepository constructs the repository.
func NewInstitutionRepository(db *sqlx.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// List returns every institution ordered by name.
func (r *InstitutionRepository) List(ctx context.Context) ([]models.Institution, error) {
	var institutions []models.Institution
	if err := r.db.SelectContext(ctx, &institutions, "SELECT "+institutionColumns+" FROM institutions ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	return institutions, nil
}

// FindByID returns an institution by id.
func (r *InstitutionRepository) FindByID(ctx context.Context, id string) (*models.Institution, error) {
	var institution models.Institution
	if err := r.db.GetContext(ctx, &institution, "SELECT "+institutionColumns+" FROM institutions WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &institution, nil
}

// Create inserts an institution.
func (r *InstitutionRepository) Create(ctx context.Context, institution *models.Institution) error {
	if institution.ID == "" {
		institution.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	institution.CreatedAt = now
	institution.UpdatedAt = now
	const query = `INSERT INTO institutions (id, name, code, address, logo_path, active, created_at, updated_at)
        VALUES (:id, :name, :code, :address, :logo_path, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, institution); err != nil {
		return fmt.Errorf("create institution: %w", err)
	}
	return nil
}

// Update rewrites name, code, address and active flag.
func (r *InstitutionRepository) Update(ctx context.Context, institution *models.Institution) error {
	institution.UpdatedAt = time.Now().UTC()
	const query = `UPDATE institutions SET name = :name, code = :code, address = :address, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, institution); err != nil {
		return fmt.Errorf("update institution: %w", err)
	}
	return nil
}

// SetLogo stores the relative path of the normalised logo.
func (r *InstitutionRepository) SetLogo(ctx context.Context, id, path string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE institutions SET logo_path = $2, updated_at = $3 WHERE id = $1", id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("set institution logo: %w", err)
	}
	return nil
}
