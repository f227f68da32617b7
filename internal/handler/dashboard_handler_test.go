package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type fakeDashboardSrv struct {
	summary     *models.DashboardSummary
	hit         bool
	err         error
	lastInst    string
	lastYear    int
	systemCalls int
}

func (f *fakeDashboardSrv) Summary(_ context.Context, institutionID string, year int) (*models.DashboardSummary, bool, error) {
	f.lastInst, f.lastYear = institutionID, year
	return f.summary, f.hit, f.err
}

func (f *fakeDashboardSrv) System() models.SystemMetrics {
	f.systemCalls++
	return models.SystemMetrics{RequestsTotal: 7}
}

func TestDashboardHandlerSummaryReportsCacheHit(t *testing.T) {
	srv := &fakeDashboardSrv{summary: &models.DashboardSummary{InstitutionID: "inst-1", AcademicYear: 2025, Students: 40}, hit: true}
	r := newTestRouter(adminClaims("inst-1"))
	r.GET("/dashboard", NewDashboardHandler(srv).Summary)

	rec := perform(r, http.MethodGet, "/dashboard?academic_year=2025", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	assert.Equal(t, "inst-1", srv.lastInst)
	assert.Equal(t, 2025, srv.lastYear)

	var data models.DashboardSummary
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 40, data.Students)
}

func TestDashboardHandlerSummaryRejectsBadYear(t *testing.T) {
	r := newTestRouter(adminClaims("inst-1"))
	r.GET("/dashboard", NewDashboardHandler(&fakeDashboardSrv{}).Summary)

	rec := perform(r, http.MethodGet, "/dashboard?academic_year=soon", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardHandlerSummaryPropagatesErrors(t *testing.T) {
	srv := &fakeDashboardSrv{err: appErrors.Clone(appErrors.ErrValidation, "institution_id is required")}
	r := newTestRouter(superadminClaims())
	r.GET("/dashboard", NewDashboardHandler(srv).Summary)

	rec := perform(r, http.MethodGet, "/dashboard", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, "institution_id is required", env.Error.Message)
}

func TestDashboardHandlerSystem(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeDashboardSrv{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/system", nil)
	middleware.WithResponseMeta()(c)

	NewDashboardHandler(srv).System(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, srv.systemCalls)
}
