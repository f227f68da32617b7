package service

import (
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/pkg/database"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

// NewValidator returns a validator with the domain enum tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	register := func(tag string, ok func(string) bool) {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return ok(fl.Field().String())
		})
	}
	register("enrollment_status", func(raw string) bool {
		_, ok := models.ParseEnrollmentStatus(raw)
		return ok
	})
	register("course_scope", func(raw string) bool { return models.CourseScope(raw).Valid() })
	register("period_type", func(raw string) bool { return models.PeriodType(raw).PeriodsPerYear() > 0 })
	register("payment_method", func(raw string) bool { return models.PaymentMethod(raw).Valid() })
	register("document_type", func(raw string) bool { return models.DocumentType(raw).Valid() })
	register("audience", func(raw string) bool { return models.Audience(raw).Valid() })
	register("attendance_status", func(raw string) bool { return models.AttendanceStatus(raw).Valid() })
	register("role", func(raw string) bool { return models.UserRole(raw).Valid() })
	register("permission", func(raw string) bool { return models.Permission(raw).Valid() })
	return v
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// persistError maps constraint violations raised by a write to typed errors. conflict is the message
// used for unique violations.
func persistError(err error, message, conflict string) error {
	switch {
	case database.IsUniqueViolation(err):
		return appErrors.Clone(appErrors.ErrConflict, conflict)
	case database.IsForeignKeyViolation(err):
		return appErrors.Clone(appErrors.ErrConflict, "record is referenced by other records")
	case database.IsCheckViolation(err):
		return appErrors.Clone(appErrors.ErrValidation, "value violates a data constraint")
	}
	return internalError(err, message)
}

// lookupError turns sql.ErrNoRows into a not found error carrying notFound.
func lookupError(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, message)
}
