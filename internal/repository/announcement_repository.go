package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const announcementColumns = `id, institution_id, title, content, audience, level_assignment_id, priority, pinned, published_at, expires_at, created_by, created_at, updated_at`

// AnnouncementRepository provides persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements matching the filter, pinned and high priority first.
// SECTION announcements are only returned for the level assignments in the filter.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	var where whereBuilder
	where.add("institution_id = ?", filter.InstitutionID)
	if filter.ActiveAt != nil {
		where.add("published_at <= ?", *filter.ActiveAt)
		where.add("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
	}
	if len(filter.Audiences) > 0 {
		audiences := make([]string, len(filter.Audiences))
		for i, a := range filter.Audiences {
			audiences[i] = string(a)
		}
		where.add("audience = ANY(?)", pq.StringArray(audiences))
	}
	if filter.LevelAssignmentIDs != nil {
		where.add("(audience <> 'SECTION' OR level_assignment_id = ANY(?))", pq.StringArray(filter.LevelAssignmentIDs))
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM announcements%s
        ORDER BY pinned DESC, CASE priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END, published_at DESC
        LIMIT %d OFFSET %d`, announcementColumns, where.clause(), limit, offset)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM announcements"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// FindByID returns an announcement by id.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, "SELECT "+announcementColumns+" FROM announcements WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create inserts an announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.PublishedAt.IsZero() {
		announcement.PublishedAt = now
	}
	announcement.CreatedAt, announcement.UpdatedAt = now, now
	const query = `INSERT INTO announcements (id, institution_id, title, content, audience, level_assignment_id, priority, pinned, published_at, expires_at, created_by, created_at, updated_at)
        VALUES (:id, :institution_id, :title, :content, :audience, :level_assignment_id, :priority, :pinned, :published_at, :expires_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update rewrites an announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, audience = :audience, level_assignment_id = :level_assignment_id,
        priority = :priority, pinned = :pinned, published_at = :published_at, expires_at = :expires_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
