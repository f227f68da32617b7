package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/repository"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

// memEnrollmentStore is an in-memory transactional store. WithinTransaction snapshots state and restores
// it when the unit of work fails, so partial writes are never observable.
type memEnrollmentStore struct {
	mu          sync.Mutex
	enrollments map[string]models.Enrollment
	links       map[string][]string
	students    map[string]models.Student
	assignments map[string]models.LevelAssignment
	courses     []models.Course

	failNext      map[string]error
	skipPreCheck  bool
	linksDeleted  int64
	linksInserted int
	seq           int
}

func newMemEnrollmentStore() *memEnrollmentStore {
	return &memEnrollmentStore{
		enrollments: map[string]models.Enrollment{},
		links:       map[string][]string{},
		students:    map[string]models.Student{},
		assignments: map[string]models.LevelAssignment{},
		failNext:    map[string]error{},
	}
}

func (m *memEnrollmentStore) fail(op string, err error) { m.failNext[op] = err }

func (m *memEnrollmentStore) injected(op string) error {
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		return err
	}
	return nil
}

func (m *memEnrollmentStore) linkedCourses(enrollmentID string) []string {
	ids := append([]string(nil), m.links[enrollmentID]...)
	sort.Strings(ids)
	return ids
}

// enrollmentReader

func (m *memEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.AcademicYear > 0 && e.AcademicYear != filter.AcademicYear {
			continue
		}
		out = append(out, models.EnrollmentDetail{Enrollment: e, CourseCount: len(m.links[e.ID])})
	}
	return out, len(out), nil
}

func (m *memEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.EnrollmentDetail{Enrollment: e, CourseCount: len(m.links[id])}
	for _, courseID := range m.links[id] {
		detail.Courses = append(detail.Courses, models.EnrollmentCourse{CourseID: courseID})
	}
	return detail, nil
}

func (m *memEnrollmentStore) ExistsForStudentYear(ctx context.Context, studentID string, year int, excludeID string) (bool, error) {
	if m.skipPreCheck {
		return false, nil
	}
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.AcademicYear == year && e.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEnrollmentStore) Roster(ctx context.Context, assignmentID string, year int) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if e.LevelAssignmentID == assignmentID && e.AcademicYear == year {
			student := m.students[e.StudentID]
			out = append(out, models.EnrollmentDetail{
				Enrollment:  e,
				StudentCode: student.Code,
				StudentName: student.FullName(),
				Section:     m.assignments[assignmentID].Section,
				CourseCount: len(m.links[e.ID]),
			})
		}
	}
	return out, nil
}

type memAssignments struct{ store *memEnrollmentStore }

func (a memAssignments) FindByID(ctx context.Context, id string) (*models.LevelAssignment, error) {
	la, ok := a.store.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &la, nil
}

type memStudents struct{ store *memEnrollmentStore }

func (s memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	st, ok := s.store.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

// enrollmentTransactor

func (m *memEnrollmentStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.EnrollmentTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	enrollments := make(map[string]models.Enrollment, len(m.enrollments))
	for k, v := range m.enrollments {
		enrollments[k] = v
	}
	links := make(map[string][]string, len(m.links))
	for k, v := range m.links {
		links[k] = append([]string(nil), v...)
	}
	students := make(map[string]models.Student, len(m.students))
	for k, v := range m.students {
		students[k] = v
	}
	deleted, inserted := m.linksDeleted, m.linksInserted

	if err := fn(ctx, &memEnrollmentTx{store: m}); err != nil {
		m.enrollments, m.links, m.students = enrollments, links, students
		m.linksDeleted, m.linksInserted = deleted, inserted
		return err
	}
	return nil
}

type memEnrollmentTx struct{ store *memEnrollmentStore }

func (t *memEnrollmentTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if err := t.store.injected("CreateEnrollment"); err != nil {
		return err
	}
	for _, e := range t.store.enrollments {
		if e.StudentID == enrollment.StudentID && e.AcademicYear == enrollment.AcademicYear {
			return repository.ErrDuplicateEnrollment
		}
	}
	t.store.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", t.store.seq)
	t.store.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *memEnrollmentTx) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if err := t.store.injected("UpdateEnrollment"); err != nil {
		return err
	}
	for _, e := range t.store.enrollments {
		if e.ID != enrollment.ID && e.StudentID == enrollment.StudentID && e.AcademicYear == enrollment.AcademicYear {
			return repository.ErrDuplicateEnrollment
		}
	}
	t.store.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *memEnrollmentTx) DeleteEnrollment(ctx context.Context, id string) error {
	delete(t.store.enrollments, id)
	return nil
}

func (t *memEnrollmentTx) DeleteCourseLinks(ctx context.Context, enrollmentID string) (int64, error) {
	if err := t.store.injected("DeleteCourseLinks"); err != nil {
		return 0, err
	}
	n := int64(len(t.store.links[enrollmentID]))
	delete(t.store.links, enrollmentID)
	t.store.linksDeleted += n
	return n, nil
}

func (t *memEnrollmentTx) InsertCourseLinks(ctx context.Context, enrollmentID string, courseIDs []string) error {
	if err := t.store.injected("InsertCourseLinks"); err != nil {
		return err
	}
	t.store.links[enrollmentID] = append(t.store.links[enrollmentID], courseIDs...)
	t.store.linksInserted += len(courseIDs)
	return nil
}

// ListApplicableCourses evaluates the four scope sets independently of Course.MatchesScope.
func (t *memEnrollmentTx) ListApplicableCourses(ctx context.Context, criteria models.CourseScopeCriteria) ([]models.Course, error) {
	if err := t.store.injected("ListApplicableCourses"); err != nil {
		return nil, err
	}
	eq := func(p *string, v string) bool { return p != nil && *p == v }
	var out []models.Course
	for _, c := range t.store.courses {
		if !c.Active || c.AcademicYear != criteria.AcademicYear {
			continue
		}
		switch {
		case c.Scope == models.CourseScopeSection && eq(c.LevelAssignmentID, criteria.LevelAssignmentID),
			c.Scope == models.CourseScopeGrade && eq(c.GradeLevelID, criteria.GradeLevelID),
			c.Scope == models.CourseScopeLevel && eq(c.LevelID, criteria.LevelID),
			c.Scope == models.CourseScopeInstitution && c.InstitutionID == criteria.InstitutionID:
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memEnrollmentTx) SetStudentLevelAssignment(ctx context.Context, studentID string, assignmentID *string) error {
	if err := t.store.injected("SetStudentLevelAssignment"); err != nil {
		return err
	}
	st, ok := t.store.students[studentID]
	if !ok {
		return fmt.Errorf("student %s not found", studentID)
	}
	st.CurrentLevelAssignmentID = assignmentID
	t.store.students[studentID] = st
	return nil
}

type recordingCache struct {
	invalidated [][]string
	err         error
}

func (c *recordingCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}

func (c *recordingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context, patterns ...string) error {
	c.invalidated = append(c.invalidated, patterns)
	return c.err
}

func strPtr(s string) *string { return &s }

// seedSchool builds institution I with PRIMARIA grade 3 sections A and B, grade 4 section A and a
// second institution J. Assignment "la-3b" has 4 section, 2 grade and 1 level course in 2025;
// "la-4a" has 5 section courses in 2025.
func seedSchool() *memEnrollmentStore {
	m := newMemEnrollmentStore()
	m.assignments["la-3b"] = models.LevelAssignment{ID: "la-3b", InstitutionID: "inst-i", LevelID: "lvl-pri", GradeLevelID: "gr-3", Section: "B", AcademicYear: 2025}
	m.assignments["la-3a"] = models.LevelAssignment{ID: "la-3a", InstitutionID: "inst-i", LevelID: "lvl-pri", GradeLevelID: "gr-3", Section: "A", AcademicYear: 2025}
	m.assignments["la-4a"] = models.LevelAssignment{ID: "la-4a", InstitutionID: "inst-i", LevelID: "lvl-sec", GradeLevelID: "gr-4", Section: "A", AcademicYear: 2025}
	m.assignments["la-empty"] = models.LevelAssignment{ID: "la-empty", InstitutionID: "inst-i", LevelID: "lvl-ini", GradeLevelID: "gr-1", Section: "A", AcademicYear: 2025}
	m.assignments["la-j"] = models.LevelAssignment{ID: "la-j", InstitutionID: "inst-j", LevelID: "lvl-j", GradeLevelID: "gr-j", Section: "A", AcademicYear: 2025}

	m.students["stu-s"] = models.Student{ID: "stu-s", InstitutionID: "inst-i", Code: "S-001", FirstName: "Ana", LastName: "Quispe", Active: true}
	m.students["stu-t"] = models.Student{ID: "stu-t", InstitutionID: "inst-i", Code: "S-002", FirstName: "Luis", LastName: "Rojas", Active: true}

	add := func(id string, scope models.CourseScope, year int, active bool, set func(*models.Course)) {
		c := models.Course{ID: id, InstitutionID: "inst-i", Code: strings.ToUpper(id), Scope: scope, AcademicYear: year, Active: active}
		if set != nil {
			set(&c)
		}
		m.courses = append(m.courses, c)
	}
	section := func(la string) func(*models.Course) { return func(c *models.Course) { c.LevelAssignmentID = strPtr(la) } }
	grade := func(g string) func(*models.Course) { return func(c *models.Course) { c.GradeLevelID = strPtr(g) } }
	level := func(l string) func(*models.Course) { return func(c *models.Course) { c.LevelID = strPtr(l) } }

	for i := 1; i <= 4; i++ {
		add(fmt.Sprintf("c-sec-b-%d", i), models.CourseScopeSection, 2025, true, section("la-3b"))
	}
	add("c-gr3-1", models.CourseScopeGrade, 2025, true, grade("gr-3"))
	add("c-gr3-2", models.CourseScopeGrade, 2025, true, grade("gr-3"))
	add("c-pri-1", models.CourseScopeLevel, 2025, true, level("lvl-pri"))
	for i := 1; i <= 5; i++ {
		add(fmt.Sprintf("c-sec-4a-%d", i), models.CourseScopeSection, 2025, true, section("la-4a"))
	}

	// Courses that must never be linked to la-3b in 2025.
	add("c-sec-a", models.CourseScopeSection, 2025, true, section("la-3a"))
	add("c-gr3-inactive", models.CourseScopeGrade, 2025, false, grade("gr-3"))
	add("c-gr3-2024", models.CourseScopeGrade, 2024, true, grade("gr-3"))
	add("c-j-wide", models.CourseScopeInstitution, 2025, true, func(c *models.Course) { c.InstitutionID = "inst-j" })
	return m
}

func newResolver(store *memEnrollmentStore, cache viewCache, metrics *MetricsService) *EnrollmentService {
	return NewEnrollmentService(store, memAssignments{store}, memStudents{store}, store, cache, metrics, nil, nil, EnrollmentServiceConfig{})
}

func expectedCourses(store *memEnrollmentStore, la string, year int) []string {
	assignment := store.assignments[la]
	criteria := models.CourseScopeCriteria{
		LevelAssignmentID: assignment.ID,
		GradeLevelID:      assignment.GradeLevelID,
		LevelID:           assignment.LevelID,
		InstitutionID:     assignment.InstitutionID,
		AcademicYear:      year,
	}
	var ids []string
	for _, c := range store.courses {
		if c.MatchesScope(criteria) {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func assertAppError(t *testing.T, err error, want *appErrors.Error, message string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, want.Code, appErr.Code)
	assert.Equal(t, want.Status, appErr.Status)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestEnrollmentCreateLinksEveryApplicableCourse(t *testing.T) {
	store := seedSchool()
	cache := &recordingCache{}
	metrics := NewMetricsService()
	svc := newResolver(store, cache, metrics)

	out, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusPending, out.Enrollment.Status)
	assert.Equal(t, "inst-i", out.Enrollment.InstitutionID)
	assert.Equal(t, 7, out.LinksCreated)
	assert.Len(t, out.Courses, 7)
	assert.True(t, out.CoursesRecomputed)

	linked := store.linkedCourses(out.Enrollment.ID)
	assert.Equal(t, expectedCourses(store, "la-3b", 2025), linked)
	assert.NotContains(t, linked, "c-sec-a")
	assert.NotContains(t, linked, "c-gr3-inactive")
	assert.NotContains(t, linked, "c-gr3-2024")
	assert.NotContains(t, linked, "c-j-wide")

	require.NotNil(t, store.students["stu-s"].CurrentLevelAssignmentID)
	assert.Equal(t, "la-3b", *store.students["stu-s"].CurrentLevelAssignmentID)

	require.Len(t, cache.invalidated, 1)
	assert.Equal(t, []string{"enrollments:*", "dash:*"}, cache.invalidated[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollmentOps.WithLabelValues("create", OutcomeSuccess)))
}

func TestEnrollmentCreateIncludesInstitutionWideCourses(t *testing.T) {
	store := seedSchool()
	store.courses = append(store.courses, models.Course{ID: "c-inst", InstitutionID: "inst-i", Scope: models.CourseScopeInstitution, AcademicYear: 2025, Active: true})
	svc := newResolver(store, nil, nil)

	out, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025, Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, 8, out.LinksCreated)
	assert.Equal(t, models.EnrollmentStatusActive, out.Enrollment.Status)
	assert.Contains(t, store.linkedCourses(out.Enrollment.ID), "c-inst")
}

func TestEnrollmentCreateDuplicateIsConflict(t *testing.T) {
	store := seedSchool()
	metrics := NewMetricsService()
	svc := newResolver(store, nil, metrics)
	req := CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025}

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req)
	assertAppError(t, err, appErrors.ErrConflict, "duplicate enrollment")
	assert.Len(t, store.enrollments, 1)
	assert.Equal(t, 7, store.linksInserted)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollmentOps.WithLabelValues("create", OutcomeRejected)))
}

func TestEnrollmentCreateConstraintViolationIsConflict(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	req := CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025}
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	// A concurrent request that passed the pre-check still loses on the unique constraint.
	store.skipPreCheck = true
	req.LevelAssignmentID = "la-3a"
	_, err = svc.Create(context.Background(), req)
	assertAppError(t, err, appErrors.ErrConflict, "duplicate enrollment")
	assert.Len(t, store.enrollments, 1)
	assert.Equal(t, "la-3b", *store.students["stu-s"].CurrentLevelAssignmentID)
}

func TestEnrollmentCreateWithoutCoursesIsPolicyError(t *testing.T) {
	store := seedSchool()
	cache := &recordingCache{}
	svc := newResolver(store, cache, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-empty", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrPolicy, "no courses available for this assignment/year")
	assert.Empty(t, store.enrollments)
	assert.Empty(t, store.links)
	assert.Nil(t, store.students["stu-s"].CurrentLevelAssignmentID)
	assert.Empty(t, cache.invalidated)
}

func TestEnrollmentCreateWrongYearHasNoCourses(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-4a", AcademicYear: 2026})
	assertAppError(t, err, appErrors.ErrPolicy, "")
	assert.Empty(t, store.enrollments)
}

func TestEnrollmentCreateRollsBackOnLateFailure(t *testing.T) {
	for _, op := range []string{"InsertCourseLinks", "SetStudentLevelAssignment"} {
		t.Run(op, func(t *testing.T) {
			store := seedSchool()
			store.fail(op, errors.New("connection reset"))
			metrics := NewMetricsService()
			svc := newResolver(store, nil, metrics)

			_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
			assertAppError(t, err, appErrors.ErrInternal, "failed to create enrollment")
			assert.Empty(t, store.enrollments)
			assert.Empty(t, store.links)
			assert.Nil(t, store.students["stu-s"].CurrentLevelAssignmentID)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollmentOps.WithLabelValues("create", OutcomeError)))
		})
	}
}

func TestEnrollmentCreateRejectsInvalidInput(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateEnrollmentRequest{LevelAssignmentID: "la-3b", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrValidation, "invalid enrollment payload")

	_, err = svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025, Status: "ENROLLED"})
	assertAppError(t, err, appErrors.ErrValidation, "invalid enrollment payload")

	_, err = svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-missing", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrNotFound, "invalid level assignment")

	_, err = svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-missing", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrNotFound, "student not found")

	_, err = svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-j", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrValidation, "")

	assert.Empty(t, store.enrollments)
}

func TestEnrollmentUpdateRejectsInvalidInput(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	id := created.Enrollment.ID
	deletedBefore, insertedBefore := store.linksDeleted, store.linksInserted

	cases := []struct {
		name    string
		req     UpdateEnrollmentRequest
		kind    *appErrors.Error
		message string
	}{
		{"unknown status", UpdateEnrollmentRequest{LevelAssignmentID: "la-4a", AcademicYear: 2025, Status: "ENROLLED"}, appErrors.ErrValidation, "invalid enrollment payload"},
		{"missing level assignment", UpdateEnrollmentRequest{AcademicYear: 2025, Status: "ACTIVE"}, appErrors.ErrValidation, "invalid enrollment payload"},
		{"missing academic year", UpdateEnrollmentRequest{LevelAssignmentID: "la-4a"}, appErrors.ErrValidation, "invalid enrollment payload"},
		{"unknown level assignment", UpdateEnrollmentRequest{LevelAssignmentID: "la-missing", AcademicYear: 2025}, appErrors.ErrNotFound, "invalid level assignment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(ctx, id, tc.req)
			assertAppError(t, err, tc.kind, tc.message)
		})
	}

	stored := store.enrollments[id]
	assert.Equal(t, "la-3b", stored.LevelAssignmentID)
	assert.Equal(t, models.EnrollmentStatusPending, stored.Status)
	assert.Equal(t, deletedBefore, store.linksDeleted)
	assert.Equal(t, insertedBefore, store.linksInserted)
}

func TestEnrollmentCreateSurvivesInvalidationFailure(t *testing.T) {
	store := seedSchool()
	cache := &recordingCache{err: errors.New("redis down")}
	svc := newResolver(store, cache, nil)

	out, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	assert.Len(t, cache.invalidated, 1)
	assert.Len(t, store.linkedCourses(out.Enrollment.ID), 7)
}

func TestEnrollmentUpdateRecomputesOnAssignmentChange(t *testing.T) {
	store := seedSchool()
	cache := &recordingCache{}
	svc := newResolver(store, cache, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	deletedBefore, insertedBefore := store.linksDeleted, store.linksInserted

	out, err := svc.Update(ctx, created.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-4a", AcademicYear: 2025})
	require.NoError(t, err)

	assert.True(t, out.CoursesRecomputed)
	assert.EqualValues(t, 7, out.LinksRemoved)
	assert.Equal(t, 5, out.LinksCreated)
	assert.EqualValues(t, 7, store.linksDeleted-deletedBefore)
	assert.Equal(t, 5, store.linksInserted-insertedBefore)
	assert.Equal(t, expectedCourses(store, "la-4a", 2025), store.linkedCourses(created.Enrollment.ID))
	assert.Equal(t, "la-4a", store.enrollments[created.Enrollment.ID].LevelAssignmentID)
	assert.Equal(t, "la-4a", *store.students["stu-s"].CurrentLevelAssignmentID)
	assert.Len(t, cache.invalidated, 2)
}

func TestEnrollmentUpdateSamePlacementKeepsLinks(t *testing.T) {
	store := seedSchool()
	metrics := NewMetricsService()
	svc := newResolver(store, nil, metrics)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	before := store.linkedCourses(created.Enrollment.ID)
	deletedBefore, insertedBefore := store.linksDeleted, store.linksInserted

	// Drift the pointer to show it is rewritten even without recomputation.
	st := store.students["stu-s"]
	st.CurrentLevelAssignmentID = strPtr("la-3a")
	store.students["stu-s"] = st

	notes := "moved to evening shift"
	out, err := svc.Update(ctx, created.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-3b", AcademicYear: 2025, Status: "WITHDRAWN", Notes: &notes})
	require.NoError(t, err)

	assert.False(t, out.CoursesRecomputed)
	assert.Zero(t, out.LinksRemoved)
	assert.Zero(t, out.LinksCreated)
	assert.Equal(t, deletedBefore, store.linksDeleted)
	assert.Equal(t, insertedBefore, store.linksInserted)
	assert.Equal(t, before, store.linkedCourses(created.Enrollment.ID))

	stored := store.enrollments[created.Enrollment.ID]
	assert.Equal(t, models.EnrollmentStatusWithdrawn, stored.Status)
	assert.Equal(t, notes, stored.Notes)
	assert.Equal(t, "la-3b", *store.students["stu-s"].CurrentLevelAssignmentID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollmentOps.WithLabelValues("update", OutcomeSuccess)))
}

func TestEnrollmentUpdateFailureKeepsOriginalLinks(t *testing.T) {
	for _, op := range []string{"ListApplicableCourses", "InsertCourseLinks", "UpdateEnrollment", "SetStudentLevelAssignment"} {
		t.Run(op, func(t *testing.T) {
			store := seedSchool()
			svc := newResolver(store, nil, nil)
			ctx := context.Background()

			created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
			require.NoError(t, err)
			original := store.linkedCourses(created.Enrollment.ID)
			require.Len(t, original, 7)

			store.fail(op, errors.New("deadlock detected"))
			_, err = svc.Update(ctx, created.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-4a", AcademicYear: 2025})
			assertAppError(t, err, appErrors.ErrInternal, "failed to update enrollment")

			assert.Equal(t, original, store.linkedCourses(created.Enrollment.ID))
			assert.Equal(t, "la-3b", store.enrollments[created.Enrollment.ID].LevelAssignmentID)
			assert.Equal(t, "la-3b", *store.students["stu-s"].CurrentLevelAssignmentID)
		})
	}
}

func TestEnrollmentUpdateToEmptyPlacementIsPolicyError(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-empty", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrPolicy, "no courses available for this assignment/year")
	assert.Len(t, store.linkedCourses(created.Enrollment.ID), 7)
	assert.Equal(t, "la-3b", store.enrollments[created.Enrollment.ID].LevelAssignmentID)
}

func TestEnrollmentUpdateIntoTakenYearIsConflict(t *testing.T) {
	store := seedSchool()
	store.courses = append(store.courses, models.Course{ID: "c-2026", InstitutionID: "inst-i", Scope: models.CourseScopeInstitution, AcademicYear: 2026, Active: true})
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2026})
	require.NoError(t, err)

	_, err = svc.Update(ctx, first.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-3b", AcademicYear: 2026})
	assertAppError(t, err, appErrors.ErrConflict, "duplicate enrollment")
	assert.Equal(t, 2025, store.enrollments[first.Enrollment.ID].AcademicYear)
}

func TestEnrollmentUpdateNotFound(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "enr-missing", UpdateEnrollmentRequest{LevelAssignmentID: "la-3b", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrNotFound, "enrollment not found")

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-gone", AcademicYear: 2025})
	assertAppError(t, err, appErrors.ErrNotFound, "invalid level assignment")

	_, err = svc.Update(ctx, created.Enrollment.ID, UpdateEnrollmentRequest{LevelAssignmentID: "la-3b", AcademicYear: 2025, Status: "LOST"})
	assertAppError(t, err, appErrors.ErrValidation, "")
}

func TestEnrollmentDeleteClearsPointer(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.Enrollment.ID))
	assert.Empty(t, store.enrollments)
	assert.Empty(t, store.links)
	assert.Nil(t, store.students["stu-s"].CurrentLevelAssignmentID)

	err = svc.Delete(ctx, created.Enrollment.ID)
	assertAppError(t, err, appErrors.ErrNotFound, "enrollment not found")
}

func TestEnrollmentGetAndList(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)

	detail, err := svc.Get(ctx, created.Enrollment.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Courses, 7)

	items, pagination, err := svc.List(ctx, models.EnrollmentFilter{AcademicYear: 2025})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)

	_, _, err = svc.List(ctx, models.EnrollmentFilter{Status: "nope"})
	assertAppError(t, err, appErrors.ErrValidation, "invalid enrollment status")

	_, err = svc.Get(ctx, "enr-missing")
	assertAppError(t, err, appErrors.ErrNotFound, "enrollment not found")
}

func TestEnrollmentExportRoster(t *testing.T) {
	store := seedSchool()
	svc := newResolver(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-s", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateEnrollmentRequest{StudentID: "stu-t", LevelAssignmentID: "la-3b", AcademicYear: 2025})
	require.NoError(t, err)

	file, err := svc.ExportRoster(ctx, "la-3b", 2025, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "roster-la-3b-2025.csv", file.Name)
	body := string(file.Data)
	assert.Contains(t, body, "Quispe, Ana")
	assert.Contains(t, body, "Rojas, Luis")

	pdf, err := svc.ExportRoster(ctx, "la-3b", 2025, "pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf.Data), "%PDF"))

	_, err = svc.ExportRoster(ctx, "la-3b", 2025, "xlsx")
	assertAppError(t, err, appErrors.ErrValidation, "unsupported export format")
}
