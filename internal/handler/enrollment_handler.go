package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, req service.CreateEnrollmentRequest) (*service.EnrollmentOutcome, error)
	Update(ctx context.Context, id string, req service.UpdateEnrollmentRequest) (*service.EnrollmentOutcome, error)
	Delete(ctx context.Context, id string) error
	ExportRoster(ctx context.Context, assignmentID string, year int, format string) (*service.ExportFile, error)
}

type ownerResolver interface {
	Owner(ctx context.Context, kind, id string) (string, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	owners      ownerResolver
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService, owners ownerResolver) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, owners: owners}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Student"
// @Param level_assignment_id query string false "Level assignment"
// @Param academic_year query int false "Academic year"
// @Param status query string false "PENDING, ACTIVE, WITHDRAWN, TRANSFERRED or GRADUATED"
// @Param search query string false "Student name or code"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	year, err := intQuery(c, "academic_year")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EnrollmentFilter{
		InstitutionID:     middleware.Institution(c),
		StudentID:         c.Query("student_id"),
		LevelAssignmentID: c.Query("level_assignment_id"),
		AcademicYear:      year,
		Status:            models.EnrollmentStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Search:            strings.TrimSpace(c.Query("search")),
		SortBy:            c.Query("sort_by"),
		SortOrder:         c.Query("sort_order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get enrollment with its courses
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	detail, ok := h.load(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Enroll a student
// @Description Links every course applicable to the level assignment for the academic year.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.CreateEnrollmentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if !h.assignmentInScope(c, req.LevelAssignmentID) {
		return
	}
	outcome, err := h.enrollments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

// Update godoc
// @Summary Update enrollment
// @Description Courses are recomputed when the level assignment or academic year changes.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	var req service.UpdateEnrollmentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if !h.assignmentInScope(c, req.LevelAssignmentID) {
		return
	}
	outcome, err := h.enrollments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Delete godoc
// @Summary Delete enrollment
// @Tags Enrollments
// @Param id path string true "Enrollment ID"
// @Success 204
// @Security BearerAuth
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	if err := h.enrollments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportRoster godoc
// @Summary Export the roster of a level assignment
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Level assignment ID"
// @Param academic_year query int true "Academic year"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /level-assignments/{id}/roster [get]
func (h *EnrollmentHandler) ExportRoster(c *gin.Context) {
	if !h.assignmentInScope(c, c.Param("id")) {
		return
	}
	year, err := intQuery(c, "academic_year")
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.enrollments.ExportRoster(c.Request.Context(), c.Param("id"), year, strings.ToLower(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Name, file.ContentType, file.Data)
}

func (h *EnrollmentHandler) load(c *gin.Context) (*models.EnrollmentDetail, bool) {
	detail, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !inScope(c, detail.InstitutionID) {
		response.Error(c, notFound("enrollment"))
		return nil, false
	}
	return detail, true
}

// assignmentInScope answers with the same error the service uses for an unknown assignment when it
// belongs to another institution.
func (h *EnrollmentHandler) assignmentInScope(c *gin.Context, assignmentID string) bool {
	if middleware.Institution(c) == "" || assignmentID == "" {
		return true
	}
	owner, err := h.owners.Owner(c.Request.Context(), service.KindLevelAssignment, assignmentID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !inScope(c, owner) {
		response.Error(c, notFound("level assignment"))
		return false
	}
	return true
}
