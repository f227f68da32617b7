package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/repository"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type invoiceStore interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Invoice, error)
	FindDetailByID(ctx context.Context, id string) (*models.InvoiceDetail, error)
	ListPayments(ctx context.Context, invoiceID string) ([]models.Payment, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error
	SetGatewayOrder(ctx context.Context, id, orderID string) error
	RecordPayment(ctx context.Context, invoiceID string, apply repository.PaymentApplier) (*models.Invoice, *models.Payment, error)
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
	Stats(ctx context.Context, institutionID string, from, to time.Time) (*models.PaymentStats, error)
}

// CheckoutGateway creates online checkouts and authenticates their notifications.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, req GatewayCheckout) (string, string, error)
	Verify(n MidtransNotification) bool
}

// CreateInvoiceRequest describes a new charge.
type CreateInvoiceRequest struct {
	InstitutionID string    `json:"institution_id" validate:"required"`
	StudentID     string    `json:"student_id" validate:"required"`
	EnrollmentID  *string   `json:"enrollment_id"`
	Concept       string    `json:"concept" validate:"required,max=200"`
	Amount        int64     `json:"amount" validate:"gt=0"`
	Currency      string    `json:"currency" validate:"omitempty,len=3,alpha"`
	DueDate       time.Time `json:"due_date" validate:"required"`
}

// RecordPaymentRequest describes a manual payment taken at the desk.
type RecordPaymentRequest struct {
	Amount    int64      `json:"amount" validate:"gt=0"`
	Method    string     `json:"method" validate:"required,payment_method"`
	Reference string     `json:"reference" validate:"max=120"`
	PaidAt    *time.Time `json:"paid_at"`
}

// NotificationResult reports what a gateway notification did.
type NotificationResult struct {
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Payment   *models.Payment `json:"payment,omitempty"`
}

const (
	notificationRecorded  = "recorded"
	notificationIgnored   = "ignored"
	notificationDuplicate = "duplicate"
)

var errNothingToCollect = errors.New("nothing to collect")

// PaymentServiceConfig carries ledger settings.
type PaymentServiceConfig struct {
	Currency string
}

// PaymentService keeps the invoice ledger.
type PaymentService struct {
	invoices  invoiceStore
	students  studentReader
	gateway   CheckoutGateway
	cache     viewCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PaymentServiceConfig
	now       func() time.Time
}

// NewPaymentService builds the ledger service. gateway may be nil when checkout is disabled.
func NewPaymentService(invoices invoiceStore, students studentReader, gateway CheckoutGateway, cache viewCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PaymentServiceConfig) *PaymentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	return &PaymentService{
		invoices:  invoices,
		students:  students,
		gateway:   gateway,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// List returns invoices with pagination.
func (s *PaymentService) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, *models.Pagination, error) {
	if filter.Status != "" {
		switch filter.Status {
		case models.InvoiceStatusPending, models.InvoiceStatusPartial, models.InvoiceStatusPaid, models.InvoiceStatusOverdue, models.InvoiceStatusCancelled:
		default:
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid invoice status")
		}
	}
	items, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list invoices")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an invoice with its payments.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	detail, err := s.invoices.FindDetailByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	payments, err := s.invoices.ListPayments(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to load payments")
	}
	detail.Payments = payments
	return detail, nil
}

// Create issues a new invoice for a student.
func (s *PaymentService) Create(ctx context.Context, req CreateInvoiceRequest) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid invoice payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	if student.InstitutionID != req.InstitutionID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student belongs to another institution")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.cfg.Currency
	}
	invoice := &models.Invoice{
		InstitutionID: req.InstitutionID,
		StudentID:     req.StudentID,
		EnrollmentID:  nonEmpty(req.EnrollmentID),
		Concept:       strings.TrimSpace(req.Concept),
		Amount:        req.Amount,
		Currency:      currency,
		DueDate:       req.DueDate.UTC().Truncate(24 * time.Hour),
		Status:        models.InvoiceStatusPending,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, persistError(err, "failed to create invoice", "invoice already exists")
	}
	s.invalidateViews(ctx)
	return invoice, nil
}

// Cancel voids an invoice that has not received money.
func (s *PaymentService) Cancel(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	if invoice.Status == models.InvoiceStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPolicy, "invoice already cancelled")
	}
	if invoice.PaidAmount > 0 {
		return nil, appErrors.Clone(appErrors.ErrPolicy, "invoice with payments cannot be cancelled")
	}
	if err := s.invoices.UpdateStatus(ctx, id, models.InvoiceStatusCancelled); err != nil {
		return nil, internalError(err, "failed to cancel invoice")
	}
	invoice.Status = models.InvoiceStatusCancelled
	s.invalidateViews(ctx)
	return invoice, nil
}

// RecordPayment applies a manual payment under a row lock on the invoice.
func (s *PaymentService) RecordPayment(ctx context.Context, invoiceID string, req RecordPaymentRequest, recordedBy string) (*models.Invoice, *models.Payment, error) {
	req.Method = strings.ToUpper(req.Method)
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid payment payload")
	}
	method := models.PaymentMethod(req.Method)
	if method == models.PaymentMethodGateway {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "gateway payments are recorded from notifications")
	}
	invoice, payment, err := s.invoices.RecordPayment(ctx, invoiceID, func(inv *models.Invoice) (*models.Payment, error) {
		if err := checkPayable(inv, req.Amount); err != nil {
			return nil, err
		}
		p := &models.Payment{Amount: req.Amount, Method: method, Reference: strings.TrimSpace(req.Reference)}
		if req.PaidAt != nil {
			p.PaidAt = req.PaidAt.UTC()
		}
		if recordedBy != "" {
			p.RecordedBy = &recordedBy
		}
		return p, nil
	})
	if err != nil {
		return nil, nil, s.paymentError(err)
	}
	s.metrics.RecordPayment(method)
	s.invalidateViews(ctx)
	s.logger.Info("payment recorded",
		zap.String("invoice_id", invoice.ID),
		zap.Int64("amount", payment.Amount),
		zap.String("status", string(invoice.Status)),
	)
	return invoice, payment, nil
}

// Stats aggregates the ledger. A zero from defaults to the first day of the current month and a zero to to now.
func (s *PaymentService) Stats(ctx context.Context, institutionID string, from, to time.Time) (*models.PaymentStats, error) {
	if institutionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institution_id is required")
	}
	now := s.now().UTC()
	if from.IsZero() {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = now
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	stats, err := s.invoices.Stats(ctx, institutionID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to compute payment stats")
	}
	stats.InstitutionID, stats.From, stats.To = institutionID, from, to
	if stats.Currency == "" {
		stats.Currency = s.cfg.Currency
	}
	return stats, nil
}

// Checkout opens a gateway session for the outstanding balance.
func (s *PaymentService) Checkout(ctx context.Context, invoiceID string) (*models.CheckoutSession, error) {
	if s.gateway == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment gateway not configured")
	}
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	if err := checkPayable(invoice, invoice.Outstanding()); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, invoice.StudentID)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	orderID := fmt.Sprintf("INV-%s-%d", invoice.ID, s.now().Unix())
	amount := invoice.Outstanding()
	token, redirect, err := s.gateway.CreateCheckout(ctx, GatewayCheckout{
		OrderID:      orderID,
		Amount:       amount,
		Description:  invoice.Concept,
		CustomerName: student.FirstName + " " + student.LastName,
	})
	if err != nil {
		s.logger.Error("gateway checkout failed", zap.String("invoice_id", invoice.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open checkout")
	}
	if err := s.invoices.SetGatewayOrder(ctx, invoice.ID, orderID); err != nil {
		return nil, internalError(err, "failed to store gateway order")
	}
	return &models.CheckoutSession{InvoiceID: invoice.ID, OrderID: orderID, Amount: amount, Token: token, RedirectURL: redirect}, nil
}

// HandleNotification applies a signed gateway notification. Unknown orders and
// notifications that do not settle money are acknowledged and ignored.
func (s *PaymentService) HandleNotification(ctx context.Context, n MidtransNotification) (*NotificationResult, error) {
	if s.gateway == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment gateway not configured")
	}
	if !s.gateway.Verify(n) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signature")
	}
	invoice, err := s.invoices.FindByOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &NotificationResult{Status: notificationIgnored, Reason: "unknown order"}, nil
		}
		return nil, internalError(err, "failed to load invoice")
	}
	result := &NotificationResult{InvoiceID: invoice.ID}
	if !n.Settled() {
		result.Status, result.Reason = notificationIgnored, "transaction status "+n.TransactionStatus
		return result, nil
	}
	gross, err := parseGrossAmount(n.GrossAmount)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid gross_amount")
	}
	reference := n.TransactionID
	if reference == "" {
		reference = n.OrderID
	}

	_, payment, err := s.invoices.RecordPayment(ctx, invoice.ID, func(inv *models.Invoice) (*models.Payment, error) {
		amount := min(gross, inv.Outstanding())
		if !inv.Status.Open() || amount <= 0 {
			return nil, errNothingToCollect
		}
		return &models.Payment{Amount: amount, Method: models.PaymentMethodGateway, Reference: reference}, nil
	})
	switch {
	case errors.Is(err, errNothingToCollect):
		result.Status, result.Reason = notificationIgnored, "invoice has no outstanding balance"
		return result, nil
	case errors.Is(err, repository.ErrDuplicatePayment):
		result.Status = notificationDuplicate
		return result, nil
	case err != nil:
		return nil, s.paymentError(err)
	}
	s.metrics.RecordPayment(models.PaymentMethodGateway)
	s.invalidateViews(ctx)
	result.Status, result.Payment = notificationRecorded, payment
	return result, nil
}

// SweepOverdue marks open invoices past their due date as OVERDUE.
func (s *PaymentService) SweepOverdue(ctx context.Context) (int64, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	n, err := s.invoices.MarkOverdue(ctx, today)
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return 0, internalError(err, "failed to sweep overdue invoices")
	}
	s.metrics.RecordOverdue(n)
	if n > 0 {
		s.invalidateViews(ctx)
		s.logger.Info("invoices marked overdue", zap.Int64("count", n))
	}
	return n, nil
}

func (s *PaymentService) paymentError(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
	case errors.Is(err, repository.ErrDuplicatePayment):
		return appErrors.Clone(appErrors.ErrConflict, "payment already recorded")
	}
	s.logger.Error("record payment failed", zap.Error(err))
	return internalError(err, "failed to record payment")
}

func (s *PaymentService) invalidateViews(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidationTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, cachePrefixDashboard+"*"); err != nil {
		s.logger.Warn("dashboard invalidation failed", zap.Error(err))
	}
}

func checkPayable(invoice *models.Invoice, amount int64) error {
	if !invoice.Status.Open() {
		return appErrors.Clone(appErrors.ErrPolicy, fmt.Sprintf("invoice is %s", strings.ToLower(string(invoice.Status))))
	}
	if amount <= 0 {
		return appErrors.Clone(appErrors.ErrPolicy, "payment amount must be positive")
	}
	if amount > invoice.Outstanding() {
		return appErrors.Clone(appErrors.ErrPolicy, "payment exceeds outstanding balance")
	}
	return nil
}

func parseGrossAmount(raw string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("parse gross amount %q", raw)
	}
	return int64(math.Round(v)), nil
}
