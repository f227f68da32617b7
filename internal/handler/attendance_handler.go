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

type attendanceService interface {
	Record(ctx context.Context, req service.RecordAttendanceRequest, recordedBy string) ([]models.AttendanceRecord, error)
	History(ctx context.Context, enrollmentID, institutionID string, from, to time.Time) ([]models.AttendanceRecord, error)
	Summary(ctx context.Context, enrollmentID, institutionID string) (*models.AttendanceSummary, error)
}

// AttendanceHandler exposes daily attendance endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Record godoc
// @Summary Record a daily attendance sheet
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordAttendanceRequest true "Attendance sheet"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.RecordAttendanceRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	records, err := h.attendance.Record(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// History godoc
// @Summary Attendance history of an enrollment
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param from query string false "Start (YYYY-MM-DD), defaults to one month before to"
// @Param to query string false "End (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/attendance [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	from, err := timeQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := timeQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.History(c.Request.Context(), c.Param("id"), middleware.Institution(c), valueOrZero(from), valueOrZero(to))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Attendance totals of an enrollment
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.attendance.Summary(c.Request.Context(), c.Param("id"), middleware.Institution(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
