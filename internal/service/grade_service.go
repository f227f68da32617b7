package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type gradeStore interface {
	FindCourseRefs(ctx context.Context, linkIDs []string) ([]models.EnrollmentCourseRef, error)
	Upsert(ctx context.Context, entries []models.GradeEntry) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeRow, error)
}

type enrollmentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type periodFinder interface {
	FindByID(ctx context.Context, id string) (*models.AcademicPeriod, error)
}

// GradeEntryInput is one score of a grade sheet.
type GradeEntryInput struct {
	EnrollmentCourseID string  `json:"enrollment_course_id" validate:"required"`
	Score              float64 `json:"score" validate:"gte=0,lte=20"`
	Comment            string  `json:"comment" validate:"max=500"`
}

// RecordGradesRequest is a grade sheet for one period.
type RecordGradesRequest struct {
	InstitutionID string            `json:"institution_id" validate:"required"`
	PeriodID      string            `json:"period_id" validate:"required"`
	Entries       []GradeEntryInput `json:"entries" validate:"required,min=1,dive"`
}

// GradeService records period scores against enrolled courses.
type GradeService struct {
	grades      gradeStore
	enrollments enrollmentFinder
	periods     periodFinder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the service.
func NewGradeService(grades gradeStore, enrollments enrollmentFinder, periods periodFinder, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{grades: grades, enrollments: enrollments, periods: periods, validator: validate, logger: logger}
}

// Record upserts the scores of a grade sheet. Every referenced enrollment must be ACTIVE and
// belong to the period's academic year.
func (s *GradeService) Record(ctx context.Context, req RecordGradesRequest, recordedBy string) ([]models.GradeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grade payload")
	}
	period, err := s.periods.FindByID(ctx, req.PeriodID)
	if err != nil {
		return nil, lookupError(err, "period not found", "failed to load period")
	}
	if period.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period belongs to another institution")
	}

	ids := make([]string, 0, len(req.Entries))
	seen := make(map[string]bool, len(req.Entries))
	for _, entry := range req.Entries {
		if seen[entry.EnrollmentCourseID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate enrollment course in request")
		}
		seen[entry.EnrollmentCourseID] = true
		ids = append(ids, entry.EnrollmentCourseID)
	}

	refs, err := s.grades.FindCourseRefs(ctx, ids)
	if err != nil {
		return nil, internalError(err, "failed to load enrollment courses")
	}
	if len(refs) != len(ids) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment course not found")
	}
	checkedYears := map[string]bool{}
	byLink := make(map[string]models.EnrollmentCourseRef, len(refs))
	for _, ref := range refs {
		byLink[ref.ID] = ref
		if ref.InstitutionID != req.InstitutionID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment course belongs to another institution")
		}
		if ref.EnrollmentStatus != models.EnrollmentStatusActive {
			return nil, appErrors.Clone(appErrors.ErrPolicy, fmt.Sprintf("enrollment %s is %s", ref.EnrollmentID, ref.EnrollmentStatus))
		}
		if checkedYears[ref.EnrollmentID] {
			continue
		}
		enrollment, err := s.enrollments.FindByID(ctx, ref.EnrollmentID)
		if err != nil {
			return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
		}
		if enrollment.AcademicYear != period.AcademicYear {
			return nil, appErrors.Clone(appErrors.ErrValidation, "period does not match enrollment academic year")
		}
		checkedYears[ref.EnrollmentID] = true
	}

	var recorder *string
	if recordedBy != "" {
		recorder = &recordedBy
	}
	entries := make([]models.GradeEntry, 0, len(req.Entries))
	for _, input := range req.Entries {
		ref := byLink[input.EnrollmentCourseID]
		entries = append(entries, models.GradeEntry{
			EnrollmentID:       ref.EnrollmentID,
			CourseID:           ref.CourseID,
			EnrollmentCourseID: input.EnrollmentCourseID,
			PeriodID:           period.ID,
			Score:              roundScore(input.Score),
			Comment:            strings.TrimSpace(input.Comment),
			RecordedBy:         recorder,
		})
	}
	if err := s.grades.Upsert(ctx, entries); err != nil {
		return nil, persistError(err, "failed to record grades", "grade entry already exists")
	}
	s.logger.Info("grades recorded", zap.String("period_id", period.ID), zap.Int("entries", len(entries)))
	return entries, nil
}

// ReportCard groups the scores of an enrollment by course. Averages cover recorded periods only.
func (s *GradeService) ReportCard(ctx context.Context, enrollmentID, institutionID string) (*models.ReportCard, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, lookupError(err, "enrollment not found", "failed to load enrollment")
	}
	if institutionID != "" && enrollment.InstitutionID != institutionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	rows, err := s.grades.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, internalError(err, "failed to load grades")
	}
	return buildReportCard(enrollment, rows), nil
}

func buildReportCard(enrollment *models.Enrollment, rows []models.GradeRow) *models.ReportCard {
	card := &models.ReportCard{EnrollmentID: enrollment.ID, AcademicYear: enrollment.AcademicYear, Courses: []models.ReportCardCourse{}}
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.CourseID]
		if !ok {
			i = len(card.Courses)
			index[row.CourseID] = i
			card.Courses = append(card.Courses, models.ReportCardCourse{
				CourseID:   row.CourseID,
				CourseCode: row.CourseCode,
				CourseName: row.CourseName,
				Scores:     map[int]float64{},
			})
		}
		card.Courses[i].Scores[row.PeriodNumber] = row.Score
	}
	sort.SliceStable(card.Courses, func(i, j int) bool { return card.Courses[i].CourseCode < card.Courses[j].CourseCode })

	var courseAverages []float64
	for i := range card.Courses {
		scores := make([]float64, 0, len(card.Courses[i].Scores))
		for _, score := range card.Courses[i].Scores {
			scores = append(scores, score)
		}
		if avg, ok := mean(scores); ok {
			card.Courses[i].Average = &avg
			courseAverages = append(courseAverages, avg)
		}
	}
	if avg, ok := mean(courseAverages); ok {
		card.Average = &avg
	}
	return card
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return roundScore(sum / float64(len(values))), true
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
