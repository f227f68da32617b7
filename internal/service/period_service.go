package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type periodRepository interface {
	List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, error)
	FindByID(ctx context.Context, id string) (*models.AcademicPeriod, error)
	FindCurrent(ctx context.Context, institutionID string, day time.Time) (*models.AcademicPeriod, error)
	Create(ctx context.Context, period *models.AcademicPeriod) error
	Update(ctx context.Context, period *models.AcademicPeriod) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, period *models.AcademicPeriod) error
}

// PeriodRequest describes payload for creating or updating academic periods.
type PeriodRequest struct {
	InstitutionID string    `json:"institution_id" validate:"required"`
	AcademicYear  int       `json:"academic_year" validate:"required,gte=2000,lte=2100"`
	Type          string    `json:"type" validate:"required,period_type"`
	Number        int       `json:"number" validate:"required,gte=1"`
	Name          string    `json:"name" validate:"max=120"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	EndDate       time.Time `json:"end_date" validate:"required"`
	IsActive      bool      `json:"is_active"`
}

// PeriodService orchestrates academic period workflows.
type PeriodService struct {
	repo      periodRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPeriodService creates a new period service instance.
func NewPeriodService(repo periodRepository, validate *validator.Validate, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns periods ordered by start date.
func (s *PeriodService) List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, error) {
	if filter.Type != "" && filter.Type.PeriodsPerYear() == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid period type")
	}
	periods, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list periods")
	}
	return periods, nil
}

// Get returns a period by ID.
func (s *PeriodService) Get(ctx context.Context, id string) (*models.AcademicPeriod, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "period not found", "failed to load period")
	}
	return period, nil
}

// Current returns the period covering day, today when day is zero.
func (s *PeriodService) Current(ctx context.Context, institutionID string, day time.Time) (*models.AcademicPeriod, error) {
	if institutionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institution_id is required")
	}
	if day.IsZero() {
		day = s.now()
	}
	period, err := s.repo.FindCurrent(ctx, institutionID, day)
	if err != nil {
		return nil, lookupError(err, "no period covers this date", "failed to load current period")
	}
	return period, nil
}

// Create adds a period after checking numbering, type consistency and overlaps.
func (s *PeriodService) Create(ctx context.Context, req PeriodRequest) (*models.AcademicPeriod, error) {
	period, err := s.buildPeriod(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkSiblings(ctx, period); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, persistError(err, "failed to create period", "period number already exists")
	}
	if req.IsActive {
		if err := s.repo.SetActive(ctx, period); err != nil {
			s.logger.Error("failed to activate period after create", zap.Error(err))
			return nil, internalError(err, "failed to activate period")
		}
	}
	return period, nil
}

// Update modifies a period. Institution and year are fixed once created.
func (s *PeriodService) Update(ctx context.Context, id string, req PeriodRequest) (*models.AcademicPeriod, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.InstitutionID != req.InstitutionID || current.AcademicYear != req.AcademicYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institution and academic year cannot change")
	}
	period, err := s.buildPeriod(req)
	if err != nil {
		return nil, err
	}
	period.ID = current.ID
	period.IsActive = current.IsActive
	period.CreatedAt = current.CreatedAt
	if err := s.checkSiblings(ctx, period); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, period); err != nil {
		return nil, persistError(err, "failed to update period", "period number already exists")
	}
	if req.IsActive && !current.IsActive {
		if err := s.repo.SetActive(ctx, period); err != nil {
			return nil, internalError(err, "failed to activate period")
		}
	}
	return period, nil
}

// SetActive marks the period as the active one of its year.
func (s *PeriodService) SetActive(ctx context.Context, id string) (*models.AcademicPeriod, error) {
	period, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, period); err != nil {
		return nil, internalError(err, "failed to activate period")
	}
	return period, nil
}

// Delete removes a period.
func (s *PeriodService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return persistError(err, "failed to delete period", "period in use")
	}
	return nil
}

func (s *PeriodService) buildPeriod(req PeriodRequest) (*models.AcademicPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid period payload")
	}
	periodType := models.PeriodType(req.Type)
	if req.Number > periodType.PeriodsPerYear() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a %s year has at most %d periods", strings.ToLower(req.Type), periodType.PeriodsPerYear()))
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	if req.StartDate.Year() != req.AcademicYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must fall in the academic year")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("%s %d", strings.ToLower(req.Type), req.Number)
	}
	return &models.AcademicPeriod{
		InstitutionID: req.InstitutionID,
		AcademicYear:  req.AcademicYear,
		Type:          periodType,
		Number:        req.Number,
		Name:          name,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}, nil
}

// checkSiblings enforces one period type per year, unique numbers and non overlapping ranges.
func (s *PeriodService) checkSiblings(ctx context.Context, period *models.AcademicPeriod) error {
	siblings, err := s.repo.List(ctx, models.PeriodFilter{InstitutionID: period.InstitutionID, AcademicYear: period.AcademicYear})
	if err != nil {
		return internalError(err, "failed to load sibling periods")
	}
	for _, other := range siblings {
		if other.ID == period.ID {
			continue
		}
		if other.Type != period.Type {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("academic year %d already uses %s periods", period.AcademicYear, other.Type))
		}
		if other.Number == period.Number {
			return appErrors.Clone(appErrors.ErrConflict, "period number already exists")
		}
		if !period.StartDate.After(other.EndDate) && !other.StartDate.After(period.EndDate) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("period overlaps %s", other.Name))
		}
	}
	return nil
}
