package models

import "time"

// InvoiceStatus is the collection state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Open reports whether the invoice still accepts payments.
func (s InvoiceStatus) Open() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPartial || s == InvoiceStatusOverdue
}

// PaymentMethod is how a payment was collected.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodGateway  PaymentMethod = "GATEWAY"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCard, PaymentMethodGateway:
		return true
	}
	return false
}

// Invoice is an amount owed by a student. Amounts are in the smallest currency unit.
type Invoice struct {
	ID             string        `db:"id" json:"id"`
	InstitutionID  string        `db:"institution_id" json:"institution_id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	EnrollmentID   *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Concept        string        `db:"concept" json:"concept"`
	Amount         int64         `db:"amount" json:"amount"`
	PaidAmount     int64         `db:"paid_amount" json:"paid_amount"`
	Currency       string        `db:"currency" json:"currency"`
	DueDate        time.Time     `db:"due_date" json:"due_date"`
	Status         InvoiceStatus `db:"status" json:"status"`
	GatewayOrderID *string       `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Outstanding returns the amount still owed.
func (i Invoice) Outstanding() int64 {
	if i.Amount <= i.PaidAmount {
		return 0
	}
	return i.Amount - i.PaidAmount
}

// StatusAfterPayment returns the status once paid_amount is applied.
func (i Invoice) StatusAfterPayment() InvoiceStatus {
	switch {
	case i.PaidAmount >= i.Amount:
		return InvoiceStatusPaid
	case i.Status == InvoiceStatusOverdue:
		return InvoiceStatusOverdue
	case i.PaidAmount > 0:
		return InvoiceStatusPartial
	}
	return InvoiceStatusPending
}

// Payment is money received against an invoice.
type Payment struct {
	ID         string        `db:"id" json:"id"`
	InvoiceID  string        `db:"invoice_id" json:"invoice_id"`
	Amount     int64         `db:"amount" json:"amount"`
	Method     PaymentMethod `db:"method" json:"method"`
	Reference  string        `db:"reference" json:"reference"`
	PaidAt     time.Time     `db:"paid_at" json:"paid_at"`
	RecordedBy *string       `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// InvoiceDetail enriches an invoice with the student and its payments.
type InvoiceDetail struct {
	Invoice
	StudentCode string    `db:"student_code" json:"student_code"`
	StudentName string    `db:"student_name" json:"student_name"`
	Payments    []Payment `db:"-" json:"payments,omitempty"`
}

// InvoiceFilter scopes invoice listings.
type InvoiceFilter struct {
	InstitutionID string
	StudentID     string
	Status        InvoiceStatus
	DueFrom       *time.Time
	DueTo         *time.Time
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// PaymentStats aggregates the ledger of an institution over a date range.
type PaymentStats struct {
	InstitutionID    string        `json:"institution_id"`
	From             time.Time     `json:"from"`
	To               time.Time     `json:"to"`
	Currency         string        `json:"currency"`
	InvoicedTotal    int64         `db:"invoiced_total" json:"invoiced_total"`
	InvoiceCount     int           `db:"invoice_count" json:"invoice_count"`
	CollectedTotal   int64         `db:"collected_total" json:"collected_total"`
	OutstandingTotal int64         `db:"outstanding_total" json:"outstanding_total"`
	OverdueTotal     int64         `db:"overdue_total" json:"overdue_total"`
	OverdueCount     int           `db:"overdue_count" json:"overdue_count"`
	ByMethod         []MethodTotal `json:"by_method"`
}

// MethodTotal is collected money per payment method.
type MethodTotal struct {
	Method PaymentMethod `db:"method" json:"method"`
	Total  int64         `db:"total" json:"total"`
	Count  int           `db:"count" json:"count"`
}

// CheckoutSession is the gateway handle returned to clients.
type CheckoutSession struct {
	InvoiceID   string `json:"invoice_id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}
