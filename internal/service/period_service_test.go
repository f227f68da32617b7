package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type memPeriodRepo struct {
	periods   map[string]models.AcademicPeriod
	activated []string
	seq       int
}

func (m *memPeriodRepo) List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, error) {
	var out []models.AcademicPeriod
	for _, p := range m.periods {
		if p.InstitutionID == filter.InstitutionID && p.AcademicYear == filter.AcademicYear {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPeriodRepo) FindByID(ctx context.Context, id string) (*models.AcademicPeriod, error) {
	p, ok := m.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memPeriodRepo) FindCurrent(ctx context.Context, institutionID string, day time.Time) (*models.AcademicPeriod, error) {
	for _, p := range m.periods {
		if p.InstitutionID == institutionID && p.Contains(day) {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memPeriodRepo) Create(ctx context.Context, period *models.AcademicPeriod) error {
	if m.periods == nil {
		m.periods = map[string]models.AcademicPeriod{}
	}
	m.seq++
	period.ID = "per-" + string(rune('0'+m.seq))
	m.periods[period.ID] = *period
	return nil
}

func (m *memPeriodRepo) Update(ctx context.Context, period *models.AcademicPeriod) error {
	m.periods[period.ID] = *period
	return nil
}

func (m *memPeriodRepo) Delete(ctx context.Context, id string) error {
	delete(m.periods, id)
	return nil
}

func (m *memPeriodRepo) SetActive(ctx context.Context, period *models.AcademicPeriod) error {
	for id, p := range m.periods {
		if p.InstitutionID == period.InstitutionID && p.AcademicYear == period.AcademicYear {
			p.IsActive = id == period.ID
			m.periods[id] = p
		}
	}
	period.IsActive = true
	m.activated = append(m.activated, period.ID)
	return nil
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func bimester(n int, start, end time.Time) PeriodRequest {
	return PeriodRequest{InstitutionID: "inst-1", AcademicYear: 2025, Type: "BIMESTER", Number: n, StartDate: start, EndDate: end}
}

func TestPeriodCreateRules(t *testing.T) {
	repo := &memPeriodRepo{}
	svc := NewPeriodService(repo, nil, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, bimester(1, day(2025, 3, 1), day(2025, 5, 9)))
	require.NoError(t, err)
	assert.Equal(t, "bimester 1", first.Name)

	_, err = svc.Create(ctx, bimester(5, day(2025, 10, 1), day(2025, 12, 1)))
	assertAppError(t, err, appErrors.ErrValidation, "a bimester year has at most 4 periods")

	_, err = svc.Create(ctx, bimester(2, day(2025, 5, 9), day(2025, 7, 20)))
	assertAppError(t, err, appErrors.ErrConflict, "period overlaps bimester 1")

	_, err = svc.Create(ctx, bimester(1, day(2025, 8, 1), day(2025, 9, 20)))
	assertAppError(t, err, appErrors.ErrConflict, "period number already exists")

	semester := bimester(2, day(2025, 8, 1), day(2025, 12, 20))
	semester.Type = "SEMESTER"
	_, err = svc.Create(ctx, semester)
	assertAppError(t, err, appErrors.ErrValidation, "academic year 2025 already uses BIMESTER periods")

	_, err = svc.Create(ctx, bimester(2, day(2025, 7, 1), day(2025, 6, 1)))
	assertAppError(t, err, appErrors.ErrValidation, "start_date must be before end_date")

	_, err = svc.Create(ctx, bimester(2, day(2026, 1, 10), day(2026, 2, 1)))
	assertAppError(t, err, appErrors.ErrValidation, "start_date must fall in the academic year")

	second := bimester(2, day(2025, 5, 19), day(2025, 7, 25))
	second.IsActive = true
	created, err := svc.Create(ctx, second)
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, []string{created.ID}, repo.activated)
}

func TestPeriodCurrentAndSetActive(t *testing.T) {
	repo := &memPeriodRepo{}
	svc := NewPeriodService(repo, nil, nil)
	svc.now = func() time.Time { return day(2025, 4, 2) }
	ctx := context.Background()

	first, err := svc.Create(ctx, bimester(1, day(2025, 3, 1), day(2025, 5, 9)))
	require.NoError(t, err)
	second, err := svc.Create(ctx, bimester(2, day(2025, 5, 19), day(2025, 7, 25)))
	require.NoError(t, err)

	current, err := svc.Current(ctx, "inst-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)

	_, err = svc.Current(ctx, "inst-1", day(2025, 5, 12))
	assertAppError(t, err, appErrors.ErrNotFound, "no period covers this date")

	_, err = svc.SetActive(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, repo.periods[second.ID].IsActive)
	assert.False(t, repo.periods[first.ID].IsActive)

	update := bimester(2, day(2025, 5, 12), day(2025, 7, 25))
	update.Name = "Second bimester"
	updated, err := svc.Update(ctx, second.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "Second bimester", updated.Name)
	assert.True(t, updated.IsActive)

	update.AcademicYear = 2026
	_, err = svc.Update(ctx, second.ID, update)
	assertAppError(t, err, appErrors.ErrValidation, "institution and academic year cannot change")
}

type memEventRepo struct {
	events map[string]models.Event
}

func (m *memEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var out []models.Event
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memEventRepo) Create(ctx context.Context, event *models.Event) error {
	event.ID = "evt-1"
	m.events[event.ID] = *event
	return nil
}

func (m *memEventRepo) Update(ctx context.Context, event *models.Event) error {
	m.events[event.ID] = *event
	return nil
}

func (m *memEventRepo) Delete(ctx context.Context, id string) error {
	delete(m.events, id)
	return nil
}

func TestEventServiceValidation(t *testing.T) {
	repo := &memEventRepo{events: map[string]models.Event{}}
	svc := NewEventService(repo, nil, nil)
	ctx := context.Background()
	start := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, EventRequest{InstitutionID: "inst-1", Title: "Fair", StartAt: start, EndAt: start.Add(-time.Hour)}, "")
	assertAppError(t, err, appErrors.ErrValidation, "end_at must not be before start_at")

	_, err = svc.Create(ctx, EventRequest{InstitutionID: "inst-1", Title: "Fair", StartAt: start, EndAt: start, Audience: "SECTION"}, "")
	assertAppError(t, err, appErrors.ErrValidation, "level_assignment_id is required exactly for SECTION audience")

	event, err := svc.Create(ctx, EventRequest{InstitutionID: "inst-1", Title: " Science fair ", StartAt: start, EndAt: start.Add(3 * time.Hour)}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.AudienceAll, event.Audience)
	assert.Equal(t, "Science fair", event.Title)
	require.NotNil(t, event.CreatedBy)
	assert.Equal(t, "user-1", *event.CreatedBy)

	from, to := start, start.Add(-time.Hour)
	_, _, err = svc.List(ctx, models.EventFilter{From: &from, To: &to})
	assertAppError(t, err, appErrors.ErrValidation, "to must not be before from")

	require.NoError(t, svc.Delete(ctx, event.ID))
	assert.Empty(t, repo.events)
}
