package service

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

// GatewayCheckout is what the ledger asks the gateway to charge.
type GatewayCheckout struct {
	OrderID       string
	Amount        int64
	Description   string
	CustomerName  string
	CustomerEmail string
}

// MidtransNotification is the HTTP notification body posted by midtrans.
type MidtransNotification struct {
	OrderID           string `json:"order_id" binding:"required"`
	StatusCode        string `json:"status_code" binding:"required"`
	GrossAmount       string `json:"gross_amount" binding:"required"`
	SignatureKey      string `json:"signature_key" binding:"required"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
}

// Settled reports whether the notification confirms money was received.
func (n MidtransNotification) Settled() bool {
	switch n.TransactionStatus {
	case "settlement":
		return true
	case "capture":
		return n.FraudStatus == "" || n.FraudStatus == "accept"
	}
	return false
}

// MidtransSignature computes the notification signature for the given server key.
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// MidtransGateway creates snap checkout sessions.
type MidtransGateway struct {
	client    snap.Client
	serverKey string
}

// NewMidtransGateway configures a snap client against sandbox or production.
func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{serverKey: serverKey}
	g.client.New(serverKey, env)
	return g
}

// CreateCheckout opens a snap transaction and returns its token and redirect URL.
func (g *MidtransGateway) CreateCheckout(ctx context.Context, req GatewayCheckout) (string, string, error) {
	first, last := splitName(req.CustomerName)
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: first,
			LName: last,
			Email: req.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.OrderID,
			Price: req.Amount,
			Qty:   1,
			Name:  truncateRunes(req.Description, 50),
		}},
	}
	resp, merr := g.client.CreateTransaction(snapReq)
	if merr != nil {
		return "", "", merr
	}
	if resp == nil || resp.Token == "" {
		return "", "", errors.New("midtrans returned an empty snap token")
	}
	return resp.Token, resp.RedirectURL, nil
}

// Verify checks the notification signature.
func (g *MidtransGateway) Verify(n MidtransNotification) bool {
	want := strings.ToLower(n.SignatureKey)
	return want != "" && want == MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.LastIndex(full, " "); i > 0 {
		return full[:i], full[i+1:]
	}
	return full, ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
