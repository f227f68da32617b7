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

type attendanceStore interface {
	Upsert(ctx context.Context, records []models.AttendanceRecord) error
	ListByEnrollment(ctx context.Context, enrollmentID string, from, to time.Time) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error)
}

// AttendanceMark is the status of one enrollment on the sheet date.
type AttendanceMark struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	Status       string `json:"status" validate:"required,attendance_status"`
	Notes        string `json:"notes" validate:"max=500"`
}

// RecordAttendanceRequest is a daily attendance sheet.
type RecordAttendanceRequest struct {
	InstitutionID string           `json:"institution_id" validate:"required"`
	Date          time.Time        `json:"date" validate:"required"`
	Marks         []AttendanceMark `json:"marks" validate:"required,min=1,dive"`
}

// AttendanceService coordinates attendance workflows.
type AttendanceService struct {
	records     attendanceStore
	enrollments enrollmentFinder
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the service.
func NewAttendanceService(records attendanceStore, enrollments enrollmentFinder, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{records: records, enrollments: enrollments, validator: validate, logger: logger, now: time.Now}
}

// Record upserts a daily sheet. Only ACTIVE enrollments take attendance and future dates are rejected.
func (s *AttendanceService) Record(ctx context.Context, req RecordAttendanceRequest, recordedBy string) ([]models.AttendanceRecord, error) {
	marks := make([]AttendanceMark, len(req.Marks))
	for i, mark := range req.Marks {
		mark.Status = strings.ToUpper(strings.TrimSpace(mark.Status))
		marks[i] = mark
	}
	req.Marks = marks
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	date := truncateDay(req.Date)
	if date.After(truncateDay(s.now())) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "attendance date cannot be in the future")
	}

	var recorder *string
	if recordedBy != "" {
		recorder = &recordedBy
	}
	seen := make(map[string]bool, len(req.Marks))
	records := make([]models.AttendanceRecord, 0, len(req.Marks))
	for _, mark := range req.Marks {
		if seen[mark.EnrollmentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate enrollment in request")
		}
		seen[mark.EnrollmentID] = true
		if err := s.checkActive(ctx, mark.EnrollmentID, req.InstitutionID); err != nil {
			return nil, err
		}
		records = append(records, models.AttendanceRecord{
			EnrollmentID: mark.EnrollmentID,
			Date:         date,
			Status:       models.AttendanceStatus(mark.Status),
			Notes:        strings.TrimSpace(mark.Notes),
			RecordedBy:   recorder,
		})
	}
	if err := s.records.Upsert(ctx, records); err != nil {
		return nil, persistError(err, "failed to record attendance", "attendance already recorded")
	}
	return records, nil
}

// History lists the attendance of an enrollment between from and to. A zero to means today.
func (s *AttendanceService) History(ctx context.Context, enrollmentID, institutionID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	if _, err := s.scoped(ctx, enrollmentID, institutionID); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	from, to = truncateDay(from), truncateDay(to)
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	records, err := s.records.ListByEnrollment(ctx, enrollmentID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to list attendance")
	}
	return records, nil
}

// Summary counts statuses of an enrollment.
func (s *AttendanceService) Summary(ctx context.Context, enrollmentID, institutionID string) (*models.AttendanceSummary, error) {
	if _, err := s.scoped(ctx, enrollmentID, institutionID); err != nil {
		return nil, err
	}
	summary, err := s.records.Summary(ctx, enrollmentID)
	if err != nil {
		return nil, internalError(err, "failed to summarise attendance")
	}
	return summary, nil
}

func (s *AttendanceService) checkActive(ctx context.Context, enrollmentID, institutionID string) error {
	enrollment, err := s.scoped(ctx, enrollmentID, institutionID)
	if err != nil {
		return err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrPolicy, fmt.Sprintf("enrollment %s is %s", enrollment.ID, enrollment.Status))
	}
	return nil
}

func (s *AttendanceService) scoped(ctx context.Context, enrollmentID, institutionID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if institutionID != "" && enrollment.InstitutionID != institutionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return enrollment, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
