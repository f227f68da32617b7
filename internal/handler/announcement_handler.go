package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

type announcementService interface {
	List(ctx context.Context, viewer service.AnnouncementViewer, req service.AnnouncementListRequest) ([]models.Announcement, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, req service.AnnouncementRequest, createdBy string) (*models.Announcement, error)
	Update(ctx context.Context, id string, req service.AnnouncementRequest) (*models.Announcement, error)
	Delete(ctx context.Context, id string) error
}

// AnnouncementHandler exposes the announcement board.
type AnnouncementHandler struct {
	announcements announcementService
}

// NewAnnouncementHandler constructs AnnouncementHandler.
func NewAnnouncementHandler(announcements announcementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

// List godoc
// @Summary List announcements visible to the caller
// @Tags Announcements
// @Produce json
// @Param audience query string false "Audience"
// @Param level_assignment_id query string false "Section of a student reader"
// @Param active query bool false "Only published and unexpired"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	active, err := boolQuery(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}
	viewer := service.AnnouncementViewer{Role: claims.Role}
	if section := c.Query("level_assignment_id"); section != "" {
		viewer.LevelAssignmentID = &section
	}
	req := service.AnnouncementListRequest{
		InstitutionID: middleware.Institution(c),
		Audience:      c.Query("audience"),
		ActiveOnly:    active != nil && *active,
	}
	req.Page, req.PageSize = pageParams(c)

	items, pagination, err := h.announcements.List(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	announcement, ok := h.load(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Create godoc
// @Summary Publish announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param payload body service.AnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req service.AnnouncementRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	announcement, err := h.announcements.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, announcement)
}

// Update godoc
// @Summary Update announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body service.AnnouncementRequest true "Announcement payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	var req service.AnnouncementRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	announcement, err := h.announcements.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Delete godoc
// @Summary Delete announcement
// @Tags Announcements
// @Param id path string true "Announcement ID"
// @Success 204
// @Security BearerAuth
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	if err := h.announcements.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *AnnouncementHandler) load(c *gin.Context) (*models.Announcement, bool) {
	announcement, err := h.announcements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !inScope(c, announcement.InstitutionID) {
		response.Error(c, notFound("announcement"))
		return nil, false
	}
	return announcement, true
}
