package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	details   map[string]*models.EnrollmentDetail
	created   []service.CreateEnrollmentRequest
	deleted   []string
	lastList  models.EnrollmentFilter
	exportArg struct {
		assignmentID, format string
		year                 int
	}
}

func (f *fakeEnrollmentSrv) List(_ context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	f.lastList = filter
	return []models.EnrollmentDetail{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
}

func (f *fakeEnrollmentSrv) Get(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
}

func (f *fakeEnrollmentSrv) Create(_ context.Context, req service.CreateEnrollmentRequest) (*service.EnrollmentOutcome, error) {
	f.created = append(f.created, req)
	return &service.EnrollmentOutcome{
		Enrollment:        models.Enrollment{ID: "enr-new", StudentID: req.StudentID, LevelAssignmentID: req.LevelAssignmentID, AcademicYear: req.AcademicYear},
		CoursesRecomputed: true,
		LinksCreated:      2,
	}, nil
}

func (f *fakeEnrollmentSrv) Update(_ context.Context, id string, req service.UpdateEnrollmentRequest) (*service.EnrollmentOutcome, error) {
	return &service.EnrollmentOutcome{Enrollment: models.Enrollment{ID: id, LevelAssignmentID: req.LevelAssignmentID}}, nil
}

func (f *fakeEnrollmentSrv) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEnrollmentSrv) ExportRoster(_ context.Context, assignmentID string, year int, format string) (*service.ExportFile, error) {
	f.exportArg.assignmentID, f.exportArg.year, f.exportArg.format = assignmentID, year, format
	return &service.ExportFile{Name: "roster-la-1-2025.csv", ContentType: "text/csv", Data: []byte("code,student\n")}, nil
}

type fakeOwners struct {
	owners map[string]string
	calls  int
}

func (f *fakeOwners) Owner(_ context.Context, _ string, id string) (string, error) {
	f.calls++
	owner, ok := f.owners[id]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, "level assignment not found")
	}
	return owner, nil
}

func newEnrollmentFixture() (*fakeEnrollmentSrv, *fakeOwners, *EnrollmentHandler) {
	srv := &fakeEnrollmentSrv{details: map[string]*models.EnrollmentDetail{
		"enr-1":     {Enrollment: models.Enrollment{ID: "enr-1", InstitutionID: "inst-1"}},
		"enr-other": {Enrollment: models.Enrollment{ID: "enr-other", InstitutionID: "inst-2"}},
	}}
	owners := &fakeOwners{owners: map[string]string{"la-1": "inst-1", "la-other": "inst-2"}}
	return srv, owners, NewEnrollmentHandler(srv, owners)
}

func TestEnrollmentCreateInScope(t *testing.T) {
	srv, _, h := newEnrollmentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.POST("/enrollments", h.Create)

	rec := perform(r, http.MethodPost, "/enrollments", map[string]interface{}{
		"student_id": "stu-1", "level_assignment_id": "la-1", "academic_year": 2025,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, srv.created, 1)
	var outcome service.EnrollmentOutcome
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &outcome))
	assert.Equal(t, "enr-new", outcome.Enrollment.ID)
	assert.Equal(t, 2, outcome.LinksCreated)
}

func TestEnrollmentCreateHidesForeignAssignment(t *testing.T) {
	srv, _, h := newEnrollmentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.POST("/enrollments", h.Create)

	rec := perform(r, http.MethodPost, "/enrollments", map[string]interface{}{
		"student_id": "stu-1", "level_assignment_id": "la-other", "academic_year": 2025,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, srv.created)
}

func TestEnrollmentSuperadminSkipsOwnerLookup(t *testing.T) {
	srv, owners, h := newEnrollmentFixture()
	r := newTestRouter(superadminClaims())
	r.POST("/enrollments", h.Create)

	rec := perform(r, http.MethodPost, "/enrollments", map[string]interface{}{
		"student_id": "stu-1", "level_assignment_id": "la-other", "academic_year": 2025,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, srv.created, 1)
	assert.Zero(t, owners.calls)
}

func TestEnrollmentDeleteOutsideScope(t *testing.T) {
	srv, _, h := newEnrollmentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.DELETE("/enrollments/:id", h.Delete)

	rec := perform(r, http.MethodDelete, "/enrollments/enr-other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, srv.deleted)

	rec = perform(r, http.MethodDelete, "/enrollments/enr-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"enr-1"}, srv.deleted)
}

func TestEnrollmentListPinsInstitution(t *testing.T) {
	srv, _, h := newEnrollmentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.GET("/enrollments", h.List)

	rec := perform(r, http.MethodGet, "/enrollments?academic_year=2025&status=active&page=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inst-1", srv.lastList.InstitutionID)
	assert.Equal(t, 2025, srv.lastList.AcademicYear)
	assert.Equal(t, models.EnrollmentStatusActive, srv.lastList.Status)
	assert.Equal(t, 2, srv.lastList.Page)
}

func TestEnrollmentExportRoster(t *testing.T) {
	srv, _, h := newEnrollmentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.GET("/level-assignments/:id/roster", h.ExportRoster)

	rec := perform(r, http.MethodGet, "/level-assignments/la-1/roster?academic_year=2025&format=CSV", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster-la-1-2025.csv")
	assert.Equal(t, "csv", srv.exportArg.format)
	assert.Equal(t, 2025, srv.exportArg.year)
}
