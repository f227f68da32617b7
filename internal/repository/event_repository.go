package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
)

const eventColumns = `id, institution_id, title, description, start_at, end_at, location, audience, level_assignment_id, created_by, created_at, updated_at`

// EventRepository persists calendar events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events overlapping the filter range ordered by start.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var where whereBuilder
	where.add("institution_id = ?", filter.InstitutionID)
	if filter.From != nil {
		where.add("end_at >= ?", *filter.From)
	}
	if filter.To != nil {
		where.add("start_at <= ?", *filter.To)
	}
	if filter.Audience != "" {
		where.add("audience = ?", filter.Audience)
	}

	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM events%s ORDER BY start_at ASC LIMIT %d OFFSET %d", eventColumns, where.clause(), limit, offset)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM events"+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// FindByID returns an event by id.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.GetContext(ctx, &event, "SELECT "+eventColumns+" FROM events WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	event.CreatedAt, event.UpdatedAt = now, now
	const query = `INSERT INTO events (id, institution_id, title, description, start_at, end_at, location, audience, level_assignment_id, created_by, created_at, updated_at)
        VALUES (:id, :institution_id, :title, :description, :start_at, :end_at, :location, :audience, :level_assignment_id, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update rewrites an event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, start_at = :start_at, end_at = :end_at, location = :location,
        audience = :audience, level_assignment_id = :level_assignment_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
