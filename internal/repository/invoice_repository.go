package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/pkg/database"
)

// ErrDuplicatePayment is returned when a gateway transaction was already recorded.
var ErrDuplicatePayment = errors.New("payment already recorded")

const paymentGatewayReferenceKey = "payments_gateway_reference_key"

const invoiceColumns = `i.id, i.institution_id, i.student_id, i.enrollment_id, i.concept, i.amount, i.paid_amount, i.currency, i.due_date,
        i.status, i.gateway_order_id, i.created_at, i.updated_at`

const paymentColumns = `id, invoice_id, amount, method, reference, paid_at, recorded_by, created_at`

// PaymentApplier inspects the locked invoice and returns the payment to record. Returning an error aborts.
type PaymentApplier func(invoice *models.Invoice) (*models.Payment, error)

// InvoiceRepository persists invoices and the payments collected against them.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// List returns invoices with student labels.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error) {
	base := "FROM invoices i JOIN students s ON s.id = i.student_id"
	var where whereBuilder
	if filter.InstitutionID != "" {
		where.add("i.institution_id = ?", filter.InstitutionID)
	}
	if filter.StudentID != "" {
		where.add("i.student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		where.add("i.status = ?", filter.Status)
	}
	if filter.DueFrom != nil {
		where.add("i.due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		where.add("i.due_date <= ?", *filter.DueTo)
	}

	sorts := map[string]string{
		"due_date":   "i.due_date",
		"amount":     "i.amount",
		"created_at": "i.created_at",
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s, s.code AS student_code, s.last_name || ', ' || s.first_name AS student_name
        %s%s ORDER BY %s LIMIT %d OFFSET %d`, invoiceColumns, base, where.clause(),
		orderBy(sorts, filter.SortBy, "due_date", filter.SortOrder), limit, offset)
	var invoices []models.InvoiceDetail
	if err := r.db.SelectContext(ctx, &invoices, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+where.clause(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// FindByID returns an invoice by id.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, "SELECT "+invoiceColumns+" FROM invoices i WHERE i.id = $1", id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByOrderID returns the invoice attached to a gateway order.
func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, "SELECT "+invoiceColumns+" FROM invoices i WHERE i.gateway_order_id = $1", orderID); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindDetailByID returns an invoice with student labels and payments.
func (r *InvoiceRepository) FindDetailByID(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	query := fmt.Sprintf(`SELECT %s, s.code AS student_code, s.last_name || ', ' || s.first_name AS student_name
        FROM invoices i JOIN students s ON s.id = i.student_id WHERE i.id = $1`, invoiceColumns)
	var detail models.InvoiceDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	payments, err := r.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Payments = payments
	return &detail, nil
}

// ListPayments returns the payments of an invoice in collection order.
func (r *InvoiceRepository) ListPayments(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, "SELECT "+paymentColumns+" FROM payments WHERE invoice_id = $1 ORDER BY paid_at", invoiceID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// Create inserts an invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt, invoice.UpdatedAt = now, now
	const query = `INSERT INTO invoices (id, institution_id, student_id, enrollment_id, concept, amount, paid_amount, currency, due_date, status, created_at, updated_at)
        VALUES (:id, :institution_id, :student_id, :enrollment_id, :concept, :amount, :paid_amount, :currency, :due_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of an invoice.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1", id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return nil
}

// SetGatewayOrder attaches a gateway order id to an invoice.
func (r *InvoiceRepository) SetGatewayOrder(ctx context.Context, id, orderID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE invoices SET gateway_order_id = $2, updated_at = $3 WHERE id = $1", id, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set gateway order: %w", err)
	}
	return nil
}

// RecordPayment locks the invoice row, lets apply decide the payment, stores it and updates the balance.
func (r *InvoiceRepository) RecordPayment(ctx context.Context, invoiceID string, apply PaymentApplier) (_ *models.Invoice, _ *models.Payment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin record payment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var invoice models.Invoice
	if err = tx.GetContext(ctx, &invoice, "SELECT "+invoiceColumns+" FROM invoices i WHERE i.id = $1 FOR UPDATE", invoiceID); err != nil {
		return nil, nil, err
	}

	payment, err := apply(&invoice)
	if err != nil {
		return nil, nil, err
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	payment.InvoiceID = invoice.ID
	payment.CreatedAt = now

	const insert = `INSERT INTO payments (id, invoice_id, amount, method, reference, paid_at, recorded_by, created_at)
        VALUES (:id, :invoice_id, :amount, :method, :reference, :paid_at, :recorded_by, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, payment); err != nil {
		if database.IsUniqueViolation(err, paymentGatewayReferenceKey) {
			return nil, nil, ErrDuplicatePayment
		}
		return nil, nil, fmt.Errorf("insert payment: %w", err)
	}

	invoice.PaidAmount += payment.Amount
	invoice.Status = invoice.StatusAfterPayment()
	invoice.UpdatedAt = now
	if _, err = tx.ExecContext(ctx, "UPDATE invoices SET paid_amount = $2, status = $3, updated_at = $4 WHERE id = $1",
		invoice.ID, invoice.PaidAmount, invoice.Status, now); err != nil {
		return nil, nil, fmt.Errorf("update invoice balance: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit record payment: %w", err)
	}
	return &invoice, payment, nil
}

// MarkOverdue flags open invoices whose due date is before today. It returns the number of invoices changed.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE invoices SET status = 'OVERDUE', updated_at = $2
        WHERE status IN ('PENDING', 'PARTIAL') AND due_date < $1`, today.UTC().Format("2006-01-02"), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates invoices due and payments collected between from and to.
func (r *InvoiceRepository) Stats(ctx context.Context, institutionID string, from, to time.Time) (*models.PaymentStats, error) {
	stats := models.PaymentStats{InstitutionID: institutionID, From: from, To: to}
	const invoiced = `SELECT COALESCE(SUM(amount), 0) AS invoiced_total, COUNT(*) AS invoice_count,
        COALESCE(SUM(amount - paid_amount), 0) AS outstanding_total,
        COALESCE(SUM(amount - paid_amount) FILTER (WHERE status = 'OVERDUE'), 0) AS overdue_total,
        COUNT(*) FILTER (WHERE status = 'OVERDUE') AS overdue_count
        FROM invoices WHERE institution_id = $1 AND status <> 'CANCELLED' AND due_date BETWEEN $2 AND $3`
	if err := r.db.GetContext(ctx, &stats, invoiced, institutionID, from, to); err != nil {
		return nil, fmt.Errorf("invoice stats: %w", err)
	}

	const collected = `SELECT p.method, COALESCE(SUM(p.amount), 0) AS total, COUNT(*) AS count
        FROM payments p JOIN invoices i ON i.id = p.invoice_id
        WHERE i.institution_id = $1 AND p.paid_at >= $2 AND p.paid_at < $3
        GROUP BY p.method ORDER BY p.method`
	if err := r.db.SelectContext(ctx, &stats.ByMethod, collected, institutionID, from, to.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	for _, m := range stats.ByMethod {
		stats.CollectedTotal += m.Total
	}
	return &stats, nil
}
