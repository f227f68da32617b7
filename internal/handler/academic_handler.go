package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

const maxLogoUploadBytes = 2 << 20

type academicService interface {
	ListInstitutions(ctx context.Context) ([]models.Institution, error)
	GetInstitution(ctx context.Context, id string) (*models.Institution, error)
	CreateInstitution(ctx context.Context, req service.InstitutionRequest) (*models.Institution, error)
	UpdateInstitution(ctx context.Context, id string, req service.InstitutionRequest) (*models.Institution, error)
	UploadInstitutionLogo(ctx context.Context, id string, file io.Reader) (*models.Institution, error)

	ListLevels(ctx context.Context, institutionID string) ([]models.Level, error)
	CreateLevel(ctx context.Context, req service.LevelRequest) (*models.Level, error)
	UpdateLevel(ctx context.Context, id string, req service.LevelRequest) (*models.Level, error)
	DeleteLevel(ctx context.Context, id string) error
	ListGradeLevels(ctx context.Context, levelID string) ([]models.GradeLevel, error)
	CreateGradeLevel(ctx context.Context, req service.GradeLevelRequest) (*models.GradeLevel, error)
	DeleteGradeLevel(ctx context.Context, id string) error
	ListAreas(ctx context.Context, institutionID string) ([]models.CurricularArea, error)
	CreateArea(ctx context.Context, req service.AreaRequest) (*models.CurricularArea, error)
	DeleteArea(ctx context.Context, id string) error

	ListLevelAssignments(ctx context.Context, filter models.LevelAssignmentFilter) ([]models.LevelAssignmentDetail, *models.Pagination, error)
	GetLevelAssignment(ctx context.Context, id string) (*models.LevelAssignmentDetail, error)
	CreateLevelAssignment(ctx context.Context, req service.LevelAssignmentRequest) (*models.LevelAssignment, error)
	UpdateLevelAssignment(ctx context.Context, id string, req service.LevelAssignmentRequest) (*models.LevelAssignment, error)
	DeleteLevelAssignment(ctx context.Context, id string) error
	ApplicableCourses(ctx context.Context, assignmentID string, year int) ([]models.Course, error)

	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	CreateCourse(ctx context.Context, req service.CourseRequest) (*models.Course, error)
	UpdateCourse(ctx context.Context, id string, req service.CourseRequest) (*models.Course, error)
	DeleteCourse(ctx context.Context, id string) error

	Owner(ctx context.Context, kind, id string) (string, error)
}

// AcademicHandler exposes institutions and the academic structure.
type AcademicHandler struct {
	service academicService
}

// NewAcademicHandler constructs the handler.
func NewAcademicHandler(svc academicService) *AcademicHandler {
	return &AcademicHandler{service: svc}
}

// owned resolves the institution of kind/id and answers 404 when it lies outside the caller's scope.
func (h *AcademicHandler) owned(c *gin.Context, kind, id, what string) bool {
	owner, err := h.service.Owner(c.Request.Context(), kind, id)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !inScope(c, owner) {
		response.Error(c, notFound(what))
		return false
	}
	return true
}

// ListInstitutions godoc
// @Summary List institutions
// @Tags Institutions
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /institutions [get]
func (h *AcademicHandler) ListInstitutions(c *gin.Context) {
	if scope := middleware.Institution(c); scope != "" {
		institution, err := h.service.GetInstitution(c.Request.Context(), scope)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, []models.Institution{*institution}, nil)
		return
	}
	institutions, err := h.service.ListInstitutions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institutions, nil)
}

// GetInstitution godoc
// @Summary Get institution
// @Tags Institutions
// @Produce json
// @Param id path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /institutions/{id} [get]
func (h *AcademicHandler) GetInstitution(c *gin.Context) {
	if !inScope(c, c.Param("id")) {
		response.Error(c, notFound("institution"))
		return
	}
	institution, err := h.service.GetInstitution(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institution, nil)
}

// CreateInstitution godoc
// @Summary Create institution
// @Tags Institutions
// @Accept json
// @Produce json
// @Param payload body service.InstitutionRequest true "Institution"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /institutions [post]
func (h *AcademicHandler) CreateInstitution(c *gin.Context) {
	var req service.InstitutionRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	institution, err := h.service.CreateInstitution(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, institution)
}

// UpdateInstitution godoc
// @Summary Update institution
// @Tags Institutions
// @Accept json
// @Produce json
// @Param id path string true "Institution ID"
// @Param payload body service.InstitutionRequest true "Institution"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /institutions/{id} [put]
func (h *AcademicHandler) UpdateInstitution(c *gin.Context) {
	if !inScope(c, c.Param("id")) {
		response.Error(c, notFound("institution"))
		return
	}
	var req service.InstitutionRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	institution, err := h.service.UpdateInstitution(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institution, nil)
}

// UploadLogo godoc
// @Summary Upload institution logo
// @Description Accepts a PNG or JPEG in the "logo" form field. The image is resized and stored as PNG.
// @Tags Institutions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Institution ID"
// @Param logo formData file true "Logo image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /institutions/{id}/logo [post]
func (h *AcademicHandler) UploadLogo(c *gin.Context) {
	if !inScope(c, c.Param("id")) {
		response.Error(c, notFound("institution"))
		return
	}
	header, err := c.FormFile("logo")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "logo file is required"))
		return
	}
	if header.Size > maxLogoUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "logo exceeds 2MB"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read logo"))
		return
	}
	defer file.Close()

	institution, err := h.service.UploadInstitutionLogo(c.Request.Context(), c.Param("id"), io.LimitReader(file, maxLogoUploadBytes))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institution, nil)
}

// ListLevels godoc
// @Summary List academic levels
// @Tags Academic
// @Produce json
// @Param institution_id query string false "Institution (superadmin only)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /levels [get]
func (h *AcademicHandler) ListLevels(c *gin.Context) {
	levels, err := h.service.ListLevels(c.Request.Context(), middleware.Institution(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// CreateLevel godoc
// @Summary Create academic level
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.LevelRequest true "Level"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /levels [post]
func (h *AcademicHandler) CreateLevel(c *gin.Context) {
	var req service.LevelRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	level, err := h.service.CreateLevel(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, level)
}

// UpdateLevel godoc
// @Summary Update academic level
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Level ID"
// @Param payload body service.LevelRequest true "Level"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /levels/{id} [put]
func (h *AcademicHandler) UpdateLevel(c *gin.Context) {
	if !h.owned(c, service.KindLevel, c.Param("id"), "level") {
		return
	}
	var req service.LevelRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	level, err := h.service.UpdateLevel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, level, nil)
}

// DeleteLevel godoc
// @Summary Delete academic level
// @Tags Academic
// @Param id path string true "Level ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /levels/{id} [delete]
func (h *AcademicHandler) DeleteLevel(c *gin.Context) {
	if !h.owned(c, service.KindLevel, c.Param("id"), "level") {
		return
	}
	if err := h.service.DeleteLevel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListGradeLevels godoc
// @Summary List grades of a level
// @Tags Academic
// @Produce json
// @Param id path string true "Level ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /levels/{id}/grades [get]
func (h *AcademicHandler) ListGradeLevels(c *gin.Context) {
	if !h.owned(c, service.KindLevel, c.Param("id"), "level") {
		return
	}
	grades, err := h.service.ListGradeLevels(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// CreateGradeLevel godoc
// @Summary Create a grade inside a level
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.GradeLevelRequest true "Grade level"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /grade-levels [post]
func (h *AcademicHandler) CreateGradeLevel(c *gin.Context) {
	var req service.GradeLevelRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	if !h.owned(c, service.KindLevel, req.LevelID, "level") {
		return
	}
	grade, err := h.service.CreateGradeLevel(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// DeleteGradeLevel godoc
// @Summary Delete grade level
// @Tags Academic
// @Param id path string true "Grade level ID"
// @Success 204
// @Security BearerAuth
// @Router /grade-levels/{id} [delete]
func (h *AcademicHandler) DeleteGradeLevel(c *gin.Context) {
	if !h.owned(c, service.KindGradeLevel, c.Param("id"), "grade level") {
		return
	}
	if err := h.service.DeleteGradeLevel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListAreas godoc
// @Summary List curricular areas
// @Tags Academic
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /areas [get]
func (h *AcademicHandler) ListAreas(c *gin.Context) {
	areas, err := h.service.ListAreas(c.Request.Context(), middleware.Institution(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, areas, nil)
}

// CreateArea godoc
// @Summary Create curricular area
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.AreaRequest true "Area"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /areas [post]
func (h *AcademicHandler) CreateArea(c *gin.Context) {
	var req service.AreaRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	area, err := h.service.CreateArea(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, area)
}

// DeleteArea godoc
// @Summary Delete curricular area
// @Tags Academic
// @Param id path string true "Area ID"
// @Success 204
// @Security BearerAuth
// @Router /areas/{id} [delete]
func (h *AcademicHandler) DeleteArea(c *gin.Context) {
	if !h.owned(c, service.KindArea, c.Param("id"), "area") {
		return
	}
	if err := h.service.DeleteArea(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListLevelAssignments godoc
// @Summary List level assignments
// @Tags Academic
// @Produce json
// @Param level_id query string false "Level"
// @Param grade_level_id query string false "Grade level"
// @Param academic_year query int false "Academic year"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /level-assignments [get]
func (h *AcademicHandler) ListLevelAssignments(c *gin.Context) {
	year, err := intQuery(c, "academic_year")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.LevelAssignmentFilter{
		InstitutionID: middleware.Institution(c),
		LevelID:       c.Query("level_id"),
		GradeLevelID:  c.Query("grade_level_id"),
		AcademicYear:  year,
	}
	filter.Page, filter.PageSize = pageParams(c)

	assignments, pagination, err := h.service.ListLevelAssignments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pagination)
}

// GetLevelAssignment godoc
// @Summary Get level assignment
// @Tags Academic
// @Produce json
// @Param id path string true "Level assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /level-assignments/{id} [get]
func (h *AcademicHandler) GetLevelAssignment(c *gin.Context) {
	assignment, err := h.service.GetLevelAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !inScope(c, assignment.InstitutionID) {
		response.Error(c, notFound("level assignment"))
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// CreateLevelAssignment godoc
// @Summary Create level assignment
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.LevelAssignmentRequest true "Level assignment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /level-assignments [post]
func (h *AcademicHandler) CreateLevelAssignment(c *gin.Context) {
	var req service.LevelAssignmentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	assignment, err := h.service.CreateLevelAssignment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UpdateLevelAssignment godoc
// @Summary Update level assignment capacity
// @Description Placement fields are immutable; only capacity may change.
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Level assignment ID"
// @Param payload body service.LevelAssignmentRequest true "Level assignment"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /level-assignments/{id} [put]
func (h *AcademicHandler) UpdateLevelAssignment(c *gin.Context) {
	if !h.owned(c, service.KindLevelAssignment, c.Param("id"), "level assignment") {
		return
	}
	var req service.LevelAssignmentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	assignment, err := h.service.UpdateLevelAssignment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// DeleteLevelAssignment godoc
// @Summary Delete level assignment
// @Tags Academic
// @Param id path string true "Level assignment ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /level-assignments/{id} [delete]
func (h *AcademicHandler) DeleteLevelAssignment(c *gin.Context) {
	if !h.owned(c, service.KindLevelAssignment, c.Param("id"), "level assignment") {
		return
	}
	if err := h.service.DeleteLevelAssignment(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ApplicableCourses godoc
// @Summary Preview the courses an enrollment would receive
// @Tags Academic
// @Produce json
// @Param id path string true "Level assignment ID"
// @Param academic_year query int false "Academic year (defaults to the assignment's)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /level-assignments/{id}/courses [get]
func (h *AcademicHandler) ApplicableCourses(c *gin.Context) {
	if !h.owned(c, service.KindLevelAssignment, c.Param("id"), "level assignment") {
		return
	}
	year, err := intQuery(c, "academic_year")
	if err != nil {
		response.Error(c, err)
		return
	}
	courses, err := h.service.ApplicableCourses(c.Request.Context(), c.Param("id"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// ListCourses godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param area_id query string false "Curricular area"
// @Param scope query string false "SECTION, GRADE, LEVEL or GLOBAL"
// @Param academic_year query int false "Academic year"
// @Param level_assignment_id query string false "Section-scoped courses of an assignment"
// @Param active query bool false "Active filter"
// @Param search query string false "Code or name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *AcademicHandler) ListCourses(c *gin.Context) {
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
	filter := models.CourseFilter{
		InstitutionID:     middleware.Institution(c),
		AreaID:            c.Query("area_id"),
		Scope:             models.CourseScope(c.Query("scope")),
		AcademicYear:      year,
		LevelAssignmentID: c.Query("level_assignment_id"),
		Active:            active,
		Search:            c.Query("search"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	courses, pagination, err := h.service.ListCourses(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// GetCourse godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *AcademicHandler) GetCourse(c *gin.Context) {
	course, err := h.service.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !inScope(c, course.InstitutionID) {
		response.Error(c, notFound("course"))
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// CreateCourse godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CourseRequest true "Course"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *AcademicHandler) CreateCourse(c *gin.Context) {
	var req service.CourseRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	course, err := h.service.CreateCourse(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseRequest true "Course"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [put]
func (h *AcademicHandler) UpdateCourse(c *gin.Context) {
	if !h.owned(c, service.KindCourse, c.Param("id"), "course") {
		return
	}
	var req service.CourseRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	course, err := h.service.UpdateCourse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// DeleteCourse godoc
// @Summary Delete course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [delete]
func (h *AcademicHandler) DeleteCourse(c *gin.Context) {
	if !h.owned(c, service.KindCourse, c.Param("id"), "course") {
		return
	}
	if err := h.service.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
