package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type memGradeStore struct {
	refs    map[string]models.EnrollmentCourseRef
	rows    []models.GradeRow
	saved   []models.GradeEntry
	scores  map[string]float64
	upserts int
}

func (m *memGradeStore) FindCourseRefs(ctx context.Context, linkIDs []string) ([]models.EnrollmentCourseRef, error) {
	var out []models.EnrollmentCourseRef
	for _, id := range linkIDs {
		if ref, ok := m.refs[id]; ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (m *memGradeStore) Upsert(ctx context.Context, entries []models.GradeEntry) error {
	m.upserts++
	m.saved = append(m.saved, entries...)
	if m.scores == nil {
		m.scores = map[string]float64{}
	}
	for _, e := range entries {
		m.scores[e.EnrollmentID+"|"+e.CourseID+"|"+e.PeriodID] = e.Score
	}
	return nil
}

func (m *memGradeStore) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.GradeRow, error) {
	return m.rows, nil
}

type memEnrollmentFinder map[string]models.Enrollment

func (m memEnrollmentFinder) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func newGradeFixture() (*GradeService, *memGradeStore) {
	store := &memGradeStore{refs: map[string]models.EnrollmentCourseRef{
		"ec-1": {ID: "ec-1", EnrollmentID: "enr-1", CourseID: "c-math", EnrollmentStatus: models.EnrollmentStatusActive, InstitutionID: "inst-1"},
		"ec-2": {ID: "ec-2", EnrollmentID: "enr-1", CourseID: "c-art", EnrollmentStatus: models.EnrollmentStatusActive, InstitutionID: "inst-1"},
		"ec-3": {ID: "ec-3", EnrollmentID: "enr-2", CourseID: "c-math", EnrollmentStatus: models.EnrollmentStatusWithdrawn, InstitutionID: "inst-1"},
		"ec-4": {ID: "ec-4", EnrollmentID: "enr-3", CourseID: "c-math", EnrollmentStatus: models.EnrollmentStatusActive, InstitutionID: "inst-1"},
	}}
	enrollments := memEnrollmentFinder{
		"enr-1": {ID: "enr-1", InstitutionID: "inst-1", AcademicYear: 2025, Status: models.EnrollmentStatusActive},
		"enr-2": {ID: "enr-2", InstitutionID: "inst-1", AcademicYear: 2025, Status: models.EnrollmentStatusWithdrawn},
		"enr-3": {ID: "enr-3", InstitutionID: "inst-1", AcademicYear: 2024, Status: models.EnrollmentStatusActive},
	}
	periods := &memPeriodRepo{periods: map[string]models.AcademicPeriod{
		"p-1":     {ID: "p-1", InstitutionID: "inst-1", AcademicYear: 2025, Number: 1},
		"p-other": {ID: "p-other", InstitutionID: "inst-2", AcademicYear: 2025, Number: 1},
	}}
	return NewGradeService(store, enrollments, periods, nil, nil), store
}

func TestGradeRecord(t *testing.T) {
	svc, store := newGradeFixture()
	ctx := context.Background()

	entries, err := svc.Record(ctx, RecordGradesRequest{InstitutionID: "inst-1", PeriodID: "p-1", Entries: []GradeEntryInput{
		{EnrollmentCourseID: "ec-1", Score: 15.456, Comment: " good "},
		{EnrollmentCourseID: "ec-2", Score: 18},
	}}, "teacher-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 15.46, entries[0].Score)
	assert.Equal(t, "good", entries[0].Comment)
	assert.Equal(t, "teacher-1", *entries[0].RecordedBy)
	assert.Equal(t, "enr-1", entries[0].EnrollmentID)
	assert.Equal(t, "c-math", entries[0].CourseID)
	assert.Equal(t, 1, store.upserts)
}

func TestGradeRecordSurvivesSectionMove(t *testing.T) {
	svc, store := newGradeFixture()
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordGradesRequest{InstitutionID: "inst-1", PeriodID: "p-1", Entries: []GradeEntryInput{
		{EnrollmentCourseID: "ec-1", Score: 14},
	}}, "")
	require.NoError(t, err)

	// Moving sections recreates the math link under a new id for the same enrollment and course.
	delete(store.refs, "ec-1")
	store.refs["ec-1b"] = models.EnrollmentCourseRef{ID: "ec-1b", EnrollmentID: "enr-1", CourseID: "c-math", EnrollmentStatus: models.EnrollmentStatusActive, InstitutionID: "inst-1"}

	_, err = svc.Record(ctx, RecordGradesRequest{InstitutionID: "inst-1", PeriodID: "p-1", Entries: []GradeEntryInput{
		{EnrollmentCourseID: "ec-1b", Score: 16},
	}}, "")
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"enr-1|c-math|p-1": 16}, store.scores)
}

func TestGradeRecordRejections(t *testing.T) {
	svc, store := newGradeFixture()
	ctx := context.Background()
	sheet := func(period string, ids ...string) RecordGradesRequest {
		req := RecordGradesRequest{InstitutionID: "inst-1", PeriodID: period}
		for _, id := range ids {
			req.Entries = append(req.Entries, GradeEntryInput{EnrollmentCourseID: id, Score: 12})
		}
		return req
	}

	_, err := svc.Record(ctx, sheet("p-1", "ec-3"), "")
	assertAppError(t, err, appErrors.ErrPolicy, "enrollment enr-2 is WITHDRAWN")

	_, err = svc.Record(ctx, sheet("p-1", "ec-4"), "")
	assertAppError(t, err, appErrors.ErrValidation, "period does not match enrollment academic year")

	_, err = svc.Record(ctx, sheet("p-1", "ec-1", "ec-1"), "")
	assertAppError(t, err, appErrors.ErrValidation, "duplicate enrollment course in request")

	_, err = svc.Record(ctx, sheet("p-1", "ec-9"), "")
	assertAppError(t, err, appErrors.ErrNotFound, "enrollment course not found")

	_, err = svc.Record(ctx, sheet("p-other", "ec-1"), "")
	assertAppError(t, err, appErrors.ErrValidation, "period belongs to another institution")

	_, err = svc.Record(ctx, RecordGradesRequest{InstitutionID: "inst-1", PeriodID: "p-1", Entries: []GradeEntryInput{{EnrollmentCourseID: "ec-1", Score: 21}}}, "")
	assertAppError(t, err, appErrors.ErrValidation, "invalid grade payload")

	assert.Zero(t, store.upserts)
}

func TestGradeReportCard(t *testing.T) {
	svc, store := newGradeFixture()
	store.rows = []models.GradeRow{
		{CourseID: "c-math", CourseCode: "MAT", CourseName: "Math", PeriodNumber: 1, Score: 14},
		{CourseID: "c-math", CourseCode: "MAT", CourseName: "Math", PeriodNumber: 2, Score: 17},
		{CourseID: "c-art", CourseCode: "ART", CourseName: "Art", PeriodNumber: 1, Score: 19},
	}

	card, err := svc.ReportCard(context.Background(), "enr-1", "inst-1")
	require.NoError(t, err)
	require.Len(t, card.Courses, 2)
	assert.Equal(t, "ART", card.Courses[0].CourseCode)
	assert.Equal(t, 15.5, *card.Courses[1].Average)
	assert.Equal(t, map[int]float64{1: 14, 2: 17}, card.Courses[1].Scores)
	assert.Equal(t, 17.25, *card.Average)

	_, err = svc.ReportCard(context.Background(), "enr-1", "inst-2")
	assertAppError(t, err, appErrors.ErrNotFound, "enrollment not found")

	store.rows = nil
	card, err = svc.ReportCard(context.Background(), "enr-1", "")
	require.NoError(t, err)
	assert.Empty(t, card.Courses)
	assert.Nil(t, card.Average)
}
