package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type mockStudentRepo struct {
	students    map[string]models.Student
	codes       map[string]string
	deactivated []string
	lastFilter  models.StudentFilter
	listTotal   int
	err         error
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	details := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		details = append(details, models.StudentDetail{Student: s})
	}
	return details, m.listTotal, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &models.StudentDetail{Student: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByCode(ctx context.Context, institutionID, code, excludeID string) (bool, error) {
	if id, ok := m.codes[institutionID+"/"+code]; ok {
		if excludeID == "" || id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if s, ok := m.students[id]; ok {
		s.Active = false
		m.students[id] = s
	}
	return nil
}

func TestStudentServiceCreate(t *testing.T) {
	repo := &mockStudentRepo{codes: map[string]string{"inst-1/S-001": "existing"}}
	svc := NewStudentService(repo, nil, zap.NewNop())
	ctx := context.Background()

	req := CreateStudentRequest{InstitutionID: "inst-1", Code: "s-001", FirstName: "Ana", LastName: "Quispe", Gender: "F"}
	_, err := svc.Create(ctx, req)
	assertAppError(t, err, appErrors.ErrConflict, "student code already used")

	req.Code = "s-002"
	student, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "S-002", student.Code)
	assert.True(t, student.Active)
	assert.Nil(t, student.CurrentLevelAssignmentID)

	req.Gender = "X"
	_, err = svc.Create(ctx, req)
	assertAppError(t, err, appErrors.ErrValidation, "invalid student payload")
}

func TestStudentServiceUpdateKeepsPlacement(t *testing.T) {
	la := "la-3b"
	repo := &mockStudentRepo{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", InstitutionID: "inst-1", Code: "S-001", FirstName: "Ana", LastName: "Quispe", Gender: "F", Active: true, CurrentLevelAssignmentID: &la},
	}}
	svc := NewStudentService(repo, nil, nil)

	inactive := false
	updated, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{Code: "S-001", FirstName: "Ana Maria", LastName: "Quispe", Gender: "F", Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.FirstName)
	assert.False(t, updated.Active)
	require.NotNil(t, repo.students["stu-1"].CurrentLevelAssignmentID)
	assert.Equal(t, "la-3b", *repo.students["stu-1"].CurrentLevelAssignmentID)

	_, err = svc.Update(context.Background(), "missing", UpdateStudentRequest{Code: "S-9", FirstName: "A", LastName: "B", Gender: "M"})
	assertAppError(t, err, appErrors.ErrNotFound, "student not found")
}

func TestStudentServiceListAndDeactivate(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"stu-1": {ID: "stu-1", Active: true}}, listTotal: 1}
	svc := NewStudentService(repo, nil, nil)
	ctx := context.Background()

	items, pagination, err := svc.List(ctx, models.StudentFilter{InstitutionID: "inst-1", Page: 2, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 100, pagination.PageSize)
	assert.Equal(t, "inst-1", repo.lastFilter.InstitutionID)

	require.NoError(t, svc.Deactivate(ctx, "stu-1"))
	assert.Equal(t, []string{"stu-1"}, repo.deactivated)
	assert.False(t, repo.students["stu-1"].Active)

	err = svc.Deactivate(ctx, "missing")
	assertAppError(t, err, appErrors.ErrNotFound, "student not found")
}
