package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-suite-api/internal/models"
	"github.com/noah-isme/school-suite-api/internal/service"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type fakePaymentSrv struct {
	paymentService
	invoices      map[string]*models.InvoiceDetail
	payments      []service.RecordPaymentRequest
	recordedBy    string
	notifications []service.MidtransNotification
	statsInst     string
}

func (f *fakePaymentSrv) Get(_ context.Context, id string) (*models.InvoiceDetail, error) {
	if inv, ok := f.invoices[id]; ok {
		return inv, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
}

func (f *fakePaymentSrv) RecordPayment(_ context.Context, invoiceID string, req service.RecordPaymentRequest, recordedBy string) (*models.Invoice, *models.Payment, error) {
	f.payments = append(f.payments, req)
	f.recordedBy = recordedBy
	return &models.Invoice{ID: invoiceID, Status: models.InvoiceStatusPartial}, &models.Payment{Amount: req.Amount}, nil
}

func (f *fakePaymentSrv) Stats(_ context.Context, institutionID string, _, _ time.Time) (*models.PaymentStats, error) {
	f.statsInst = institutionID
	return &models.PaymentStats{InstitutionID: institutionID}, nil
}

func (f *fakePaymentSrv) HandleNotification(_ context.Context, n service.MidtransNotification) (*service.NotificationResult, error) {
	f.notifications = append(f.notifications, n)
	if n.SignatureKey != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signature")
	}
	return &service.NotificationResult{Status: "recorded", InvoiceID: "inv-1"}, nil
}

func newPaymentFixture() (*fakePaymentSrv, *PaymentHandler) {
	srv := &fakePaymentSrv{invoices: map[string]*models.InvoiceDetail{
		"inv-1":     {Invoice: models.Invoice{ID: "inv-1", InstitutionID: "inst-1"}},
		"inv-other": {Invoice: models.Invoice{ID: "inv-other", InstitutionID: "inst-2"}},
	}}
	return srv, NewPaymentHandler(srv)
}

func TestPaymentRecordUsesActor(t *testing.T) {
	srv, h := newPaymentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.POST("/invoices/:id/payments", h.RecordPayment)

	rec := perform(r, http.MethodPost, "/invoices/inv-1/payments", map[string]interface{}{"amount": 50000, "method": "cash"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, srv.payments, 1)
	assert.Equal(t, int64(50000), srv.payments[0].Amount)
	assert.Equal(t, "admin-1", srv.recordedBy)
}

func TestPaymentRecordOutsideScope(t *testing.T) {
	srv, h := newPaymentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.POST("/invoices/:id/payments", h.RecordPayment)

	rec := perform(r, http.MethodPost, "/invoices/inv-other/payments", map[string]interface{}{"amount": 1, "method": "CASH"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, srv.payments)
}

func TestPaymentStatsScoped(t *testing.T) {
	srv, h := newPaymentFixture()
	r := newTestRouter(adminClaims("inst-1"))
	r.GET("/payments/stats", h.Stats)

	rec := perform(r, http.MethodGet, "/payments/stats?from=2025-01-01&to=2025-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inst-1", srv.statsInst)

	rec = perform(r, http.MethodGet, "/payments/stats?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentNotify(t *testing.T) {
	srv, h := newPaymentFixture()
	r := newTestRouter(superadminClaims())
	r.POST("/payments/midtrans/notify", h.Notify)

	payload := map[string]string{
		"order_id": "INV-inv-1-1", "status_code": "200", "gross_amount": "50000.00",
		"signature_key": "good", "transaction_status": "settlement",
	}
	rec := perform(r, http.MethodPost, "/payments/midtrans/notify", payload)
	assert.Equal(t, http.StatusOK, rec.Code)

	payload["signature_key"] = "forged"
	rec = perform(r, http.MethodPost, "/payments/midtrans/notify", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = perform(r, http.MethodPost, "/payments/midtrans/notify", map[string]string{"order_id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, srv.notifications, 2)
}
