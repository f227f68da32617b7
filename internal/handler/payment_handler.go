package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-suite-api/internal/middleware"
	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
	"github.com/noah-isme/school-suite-api/pkg/response"
)

type paymentService interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.InvoiceDetail, error)
	Create(ctx context.Context, req service.CreateInvoiceRequest) (*models.Invoice, error)
	Cancel(ctx context.Context, id string) (*models.Invoice, error)
	RecordPayment(ctx context.Context, invoiceID string, req service.RecordPaymentRequest, recordedBy string) (*models.Invoice, *models.Payment, error)
	Stats(ctx context.Context, institutionID string, from, to time.Time) (*models.PaymentStats, error)
	Checkout(ctx context.Context, invoiceID string) (*models.CheckoutSession, error)
	HandleNotification(ctx context.Context, n service.MidtransNotification) (*service.NotificationResult, error)
}

// PaymentHandler exposes invoices, desk payments and the gateway webhook.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type recordPaymentResponse struct {
	Invoice *models.Invoice `json:"invoice"`
	Payment *models.Payment `json:"payment"`
}

// List godoc
// @Summary List invoices
// @Tags Payments
// @Produce json
// @Param student_id query string false "Student"
// @Param status query string false "PENDING, PARTIAL, PAID, OVERDUE or CANCELLED"
// @Param due_from query string false "Due date lower bound (YYYY-MM-DD)"
// @Param due_to query string false "Due date upper bound (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices [get]
func (h *PaymentHandler) List(c *gin.Context) {
	dueFrom, err := timeQuery(c, "due_from")
	if err != nil {
		response.Error(c, err)
		return
	}
	dueTo, err := timeQuery(c, "due_to")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.InvoiceFilter{
		InstitutionID: middleware.Institution(c),
		StudentID:     c.Query("student_id"),
		Status:        models.InvoiceStatus(strings.ToUpper(c.Query("status"))),
		DueFrom:       dueFrom,
		DueTo:         dueTo,
		SortBy:        c.Query("sort_by"),
		SortOrder:     c.Query("sort_order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get invoice with payments
// @Tags Payments
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	invoice, ok := h.load(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Create godoc
// @Summary Issue invoice
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.CreateInvoiceRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	scopeInstitution(c, &req.InstitutionID)
	invoice, err := h.payments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// Cancel godoc
// @Summary Cancel invoice without payments
// @Tags Payments
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id}/cancel [post]
func (h *PaymentHandler) Cancel(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	invoice, err := h.payments.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// RecordPayment godoc
// @Summary Record a desk payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id}/payments [post]
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	var req service.RecordPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	invoice, payment, err := h.payments.RecordPayment(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, recordPaymentResponse{Invoice: invoice, Payment: payment})
}

// Checkout godoc
// @Summary Open a gateway checkout for the outstanding balance
// @Tags Payments
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /invoices/{id}/checkout [post]
func (h *PaymentHandler) Checkout(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	session, err := h.payments.Checkout(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Stats godoc
// @Summary Ledger totals for a date range
// @Tags Payments
// @Produce json
// @Param from query string false "Start (YYYY-MM-DD)"
// @Param to query string false "End (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/stats [get]
func (h *PaymentHandler) Stats(c *gin.Context) {
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
	stats, err := h.payments.Stats(c.Request.Context(), middleware.Institution(c), valueOrZero(from), valueOrZero(to))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Notify godoc
// @Summary Midtrans payment notification
// @Description Public webhook. The signature key is verified against the server key.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.MidtransNotification true "Notification"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /payments/midtrans/notify [post]
func (h *PaymentHandler) Notify(c *gin.Context) {
	var n service.MidtransNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid notification"))
		return
	}
	result, err := h.payments.HandleNotification(c.Request.Context(), n)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *PaymentHandler) load(c *gin.Context) (*models.InvoiceDetail, bool) {
	invoice, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !inScope(c, invoice.InstitutionID) {
		response.Error(c, notFound("invoice"))
		return nil, false
	}
	return invoice, true
}
