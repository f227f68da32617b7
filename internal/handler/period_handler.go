package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

type periodService interface {
	List(ctx context.Context, filter models.PeriodFilter) ([]models.AcademicPeriod, error)
	Get(ctx context.Context, id string) (*models.AcademicPeriod, error)
	Current(ctx context.Context, institutionID string, day time.Time) (*models.AcademicPeriod, error)
	Create(ctx context.Context, req service.PeriodRequest) (*models.AcademicPeriod, error)
	Update(ctx context.Context, id string, req service.PeriodRequest) (*models.AcademicPeriod, error)
	SetActive(ctx context.Context, id string) (*models.AcademicPeriod, error)
	Delete(ctx context.Context, id string) error
}

// PeriodHandler exposes academic period endpoints.
type PeriodHandler struct {
	periods periodService
}

// NewPeriodHandler constructs PeriodHandler.
func NewPeriodHandler(periods periodService) *PeriodHandler {
	return &PeriodHandler{periods: periods}
}

// List godoc
// @Summary List academic periods
// @Tags Periods
// @Produce json
// @Param academic_year query int false "Academic year"
// @Param type query string false "BIMESTER, TRIMESTER or SEMESTER"
// @Param active query bool false "Active filter"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	year, err := intQuery(c, "academic_year")
	if err != nil {
		response.Error(c, err)
		return
	}
	active, err := boolQuery(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}
	periods, err := h.periods.List(c.Request.Context(), models.PeriodFilter{
		InstitutionID: middleware.Institution(c),
		AcademicYear:  year,
		Type:          models.PeriodType(c.Query("type")),
		Active:        active,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// Current godoc
// @Summary Period covering a date
// @Tags Periods
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /periods/current [get]
func (h *PeriodHandler) Current(c *gin.Context) {
	day, err := timeQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	period, err := h.periods.Current(c.Request.Context(), middleware.Institution(c), valueOrZero(day))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Get godoc
// @Summary Get academic period
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /periods/{id} [get]
func (h *PeriodHandler) Get(c *gin.Context) {
	period, ok := h.load(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Create godoc
// @Summary Create academic period
// @Tags Periods
// @Accept json
// @Produce json
// @Param payload body service.PeriodRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /periods [post]
func (h *PeriodHandler) Create(c *gin.Context) {
	var req service.PeriodRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	period, err := h.periods.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Update godoc
// @Summary Update academic period
// @Tags Periods
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body service.PeriodRequest true "Period payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /periods/{id} [put]
func (h *PeriodHandler) Update(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	var req service.PeriodRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	period, err := h.periods.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Activate godoc
// @Summary Mark period as the active one of its year
// @Tags Periods
// @Produce json
// @Param id path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /periods/{id}/activate [post]
func (h *PeriodHandler) Activate(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	period, err := h.periods.SetActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Delete godoc
// @Summary Delete academic period
// @Tags Periods
// @Param id path string true "Period ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /periods/{id} [delete]
func (h *PeriodHandler) Delete(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	if err := h.periods.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *PeriodHandler) load(c *gin.Context) (*models.AcademicPeriod, bool) {
	period, err := h.periods.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !inScope(c, period.InstitutionID) {
		response.Error(c, notFound("period"))
		return nil, false
	}
	return period, true
}
