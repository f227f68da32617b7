package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type fakeDashboardStore struct {
	calls int
	year  int
	err   error
}

func (f *fakeDashboardStore) Summary(ctx context.Context, institutionID string, year int, now time.Time) (*models.DashboardSummary, error) {
	f.calls++
	f.year = year
	if f.err != nil {
		return nil, f.err
	}
	return &models.DashboardSummary{
		Students:            120,
		EnrollmentsByStatus: map[models.EnrollmentStatus]int{models.EnrollmentStatusActive: 110},
		OutstandingTotal:    450000,
	}, nil
}

func TestDashboardSummaryCaches(t *testing.T) {
	store := &fakeDashboardStore{}
	cache := &jsonCache{data: map[string][]byte{}}
	svc := NewDashboardService(store, cache, nil, nil, DashboardServiceConfig{})
	svc.now = func() time.Time { return time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	summary, hit, err := svc.Summary(ctx, "inst-1", 0)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2025, store.year)
	assert.Equal(t, "inst-1", summary.InstitutionID)
	assert.Contains(t, cache.data, "dash:inst-1:2025")

	summary, hit, err = svc.Summary(ctx, "inst-1", 2025)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 110, summary.EnrollmentsByStatus[models.EnrollmentStatusActive])
	assert.Equal(t, 1, store.calls)

	require.NoError(t, cache.Invalidate(ctx, "dash:*"))
	_, hit, err = svc.Summary(ctx, "inst-1", 2025)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, store.calls)
}

func TestDashboardSummaryErrors(t *testing.T) {
	store := &fakeDashboardStore{err: errors.New("boom")}
	svc := NewDashboardService(store, nil, nil, nil, DashboardServiceConfig{})
	ctx := context.Background()

	_, _, err := svc.Summary(ctx, "", 2025)
	assertAppError(t, err, appErrors.ErrValidation, "institution_id is required")

	_, _, err = svc.Summary(ctx, "inst-1", 1890)
	assertAppError(t, err, appErrors.ErrValidation, "academic year out of range")

	_, _, err = svc.Summary(ctx, "inst-1", 2025)
	assertAppError(t, err, appErrors.ErrInternal, "failed to compute dashboard")

	assert.Equal(t, models.SystemMetrics{}, svc.System())
}
