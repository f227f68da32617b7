package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, institutionID string, year int) (*models.DashboardSummary, bool, error)
	System() models.SystemMetrics
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @Summary Institution dashboard
// @Description Enrollment, attendance and ledger totals for an academic year. Responses are cached.
// @Tags Dashboard
// @Produce json
// @Param academic_year query int false "Academic year, defaults to the current one"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	year, err := intQuery(c, "academic_year")
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), middleware.Institution(c), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ResponseMeta(c))
}

// System godoc
// @Summary Process level counters
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/system [get]
func (h *DashboardHandler) System(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.service.System(), nil, middleware.ResponseMeta(c))
}
