package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

// EventRequest creates or updates a calendar event.
type EventRequest struct {
	InstitutionID     string    `json:"institution_id" validate:"required"`
	Title             string    `json:"title" validate:"required,max=200"`
	Description       string    `json:"description" validate:"max=4000"`
	StartAt           time.Time `json:"start_at" validate:"required"`
	EndAt             time.Time `json:"end_at" validate:"required"`
	Location          string    `json:"location" validate:"max=200"`
	Audience          string    `json:"audience" validate:"omitempty,audience"`
	LevelAssignmentID *string   `json:"level_assignment_id"`
}

// EventService manages institution calendar events.
type EventService struct {
	repo      eventRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs EventService.
func NewEventService(repo eventRepository, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, validator: validate, logger: logger}
}

// List returns events overlapping the filter window.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list events")
	}
	return events, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "event not found", "failed to load event")
	}
	return event, nil
}

// Create schedules an event.
func (s *EventService) Create(ctx context.Context, req EventRequest, createdBy string) (*models.Event, error) {
	event, err := s.build(req)
	if err != nil {
		return nil, err
	}
	if createdBy != "" {
		event.CreatedBy = &createdBy
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, persistError(err, "failed to create event", "event already exists")
	}
	return event, nil
}

// Update rewrites an event.
func (s *EventService) Update(ctx context.Context, id string, req EventRequest) (*models.Event, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event belongs to another institution")
	}
	event, err := s.build(req)
	if err != nil {
		return nil, err
	}
	event.ID = current.ID
	event.CreatedBy = current.CreatedBy
	event.CreatedAt = current.CreatedAt
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, persistError(err, "failed to update event", "event already exists")
	}
	return event, nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return internalError(err, "failed to delete event")
	}
	return nil
}

func (s *EventService) build(req EventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid event payload")
	}
	if req.EndAt.Before(req.StartAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_at must not be before start_at")
	}
	audience := models.Audience(req.Audience)
	if audience == "" {
		audience = models.AudienceAll
	}
	section := nonEmpty(req.LevelAssignmentID)
	if (audience == models.AudienceSection) != (section != nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "level_assignment_id is required exactly for SECTION audience")
	}
	return &models.Event{
		InstitutionID:     req.InstitutionID,
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		StartAt:           req.StartAt.UTC(),
		EndAt:             req.EndAt.UTC(),
		Location:          req.Location,
		Audience:          audience,
		LevelAssignmentID: section,
	}, nil
}
