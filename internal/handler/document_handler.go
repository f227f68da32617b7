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

type documentService interface {
	List(ctx context.Context, filter models.DocumentFilter) ([]models.DocumentDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.DocumentDetail, error)
	Issue(ctx context.Context, req service.IssueDocumentRequest, issuedBy string) (*models.Document, error)
	Revoke(ctx context.Context, id, reason string) (*models.DocumentDetail, error)
	DownloadURL(ctx context.Context, id string) (*service.DownloadLink, error)
	OpenDownload(ctx context.Context, token string) (*service.DownloadFile, error)
	Verify(ctx context.Context, code string) (*models.VerificationResult, error)
}

// DocumentHandler exposes certificate issuing and the public verification endpoint.
type DocumentHandler struct {
	documents documentService
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents documentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type revokeDocumentPayload struct {
	Reason string `json:"reason" binding:"required"`
}

// List godoc
// @Summary List issued documents
// @Tags Documents
// @Produce json
// @Param student_id query string false "Student"
// @Param type query string false "Document type"
// @Param status query string false "ISSUED or REVOKED"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	filter := models.DocumentFilter{
		InstitutionID: middleware.Institution(c),
		StudentID:     c.Query("student_id"),
		Type:          models.DocumentType(strings.ToUpper(c.Query("type"))),
		Status:        models.DocumentStatus(strings.ToUpper(c.Query("status"))),
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.documents.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, ok := h.load(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Issue godoc
// @Summary Issue a certificate
// @Description The PDF is rendered in the background; the verification code is returned immediately.
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body service.IssueDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [post]
func (h *DocumentHandler) Issue(c *gin.Context) {
	var req service.IssueDocumentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	doc, err := h.documents.Issue(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Revoke godoc
// @Summary Revoke a document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body revokeDocumentPayload true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id}/revoke [post]
func (h *DocumentHandler) Revoke(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	var payload revokeDocumentPayload
	if err := bindJSON(c, &payload); err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.documents.Revoke(c.Request.Context(), c.Param("id"), payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadURL godoc
// @Summary Sign a short lived download link
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	link, err := h.documents.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a rendered document
// @Tags Documents
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	file, err := h.documents.OpenDownload(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Inline(c, file.Name, "application/pdf", file.Data)
}

// Verify godoc
// @Summary Verify a document code
// @Description Public and rate limited. Unknown codes answer valid=false.
// @Tags Documents
// @Produce json
// @Param code path string true "Verification code"
// @Success 200 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /verify/{code} [get]
func (h *DocumentHandler) Verify(c *gin.Context) {
	result, err := h.documents.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *DocumentHandler) load(c *gin.Context) (*models.DocumentDetail, bool) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !inScope(c, doc.InstitutionID) {
		response.Error(c, notFound("document"))
		return nil, false
	}
	return doc, true
}
