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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByCode(ctx context.Context, institutionID, code, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	InstitutionID  string     `json:"institution_id" validate:"required"`
	Code           string     `json:"code" validate:"required,max=32"`
	FirstName      string     `json:"first_name" validate:"required,max=120"`
	LastName       string     `json:"last_name" validate:"required,max=120"`
	DocumentNumber string     `json:"document_number" validate:"max=32"`
	BirthDate      *time.Time `json:"birth_date"`
	Gender         string     `json:"gender" validate:"required,oneof=M F"`
	GuardianName   string     `json:"guardian_name" validate:"max=200"`
	GuardianPhone  string     `json:"guardian_phone" validate:"max=32"`
	Address        string     `json:"address" validate:"max=500"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	Code           string     `json:"code" validate:"required,max=32"`
	FirstName      string     `json:"first_name" validate:"required,max=120"`
	LastName       string     `json:"last_name" validate:"required,max=120"`
	DocumentNumber string     `json:"document_number" validate:"max=32"`
	BirthDate      *time.Time `json:"birth_date"`
	Gender         string     `json:"gender" validate:"required,oneof=M F"`
	GuardianName   string     `json:"guardian_name" validate:"max=200"`
	GuardianPhone  string     `json:"guardian_phone" validate:"max=32"`
	Address        string     `json:"address" validate:"max=500"`
	Active         *bool      `json:"active"`
}

// StudentService handles student use-cases. The current level assignment is only written by enrollments.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureCodeFree(ctx, req.InstitutionID, code, ""); err != nil {
		return nil, err
	}
	student := &models.Student{
		InstitutionID:  req.InstitutionID,
		Code:           code,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		DocumentNumber: req.DocumentNumber,
		BirthDate:      req.BirthDate,
		Gender:         req.Gender,
		GuardianName:   req.GuardianName,
		GuardianPhone:  req.GuardianPhone,
		Address:        req.Address,
		Active:         true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, persistError(err, "failed to create student", "student code already used")
	}
	return student, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.ensureCodeFree(ctx, student.InstitutionID, code, id); err != nil {
		return nil, err
	}
	student.Code = code
	student.FirstName = strings.TrimSpace(req.FirstName)
	student.LastName = strings.TrimSpace(req.LastName)
	student.DocumentNumber = req.DocumentNumber
	student.BirthDate = req.BirthDate
	student.Gender = req.Gender
	student.GuardianName = req.GuardianName
	student.GuardianPhone = req.GuardianPhone
	student.Address = req.Address
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, persistError(err, "failed to update student", "student code already used")
	}
	return student, nil
}

// Deactivate marks the student inactive. Enrollments are kept.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return lookupError(err, "student not found", "failed to load student")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return internalError(err, "failed to deactivate student")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}

func (s *StudentService) ensureCodeFree(ctx context.Context, institutionID, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, institutionID, code, excludeID)
	if err != nil {
		return internalError(err, "failed to validate student code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "student code already used")
	}
	return nil
}
