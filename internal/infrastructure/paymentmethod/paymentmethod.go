// Package paymentmethod holds the capture methods for each supported payment mode.
// None of them talks to a real processor: every capture is approved.
package paymentmethod

import (
	"context"

	appPayment "github.com/Zhima-Mochi/minishop-payment/internal/application/payment"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/observability"
)

type CreditCard struct{ log observability.Logger }

func NewCreditCard(tel observability.Observability) *CreditCard {
	return &CreditCard{log: methodLogger(tel, dompay.ModeCreditCard)}
}

func (m *CreditCard) Capture(ctx context.Context, req appPayment.CaptureRequest) (dompay.Status, error) {
	return approve(ctx, m.log, req)
}

type Wallet struct{ log observability.Logger }

func NewWallet(tel observability.Observability) *Wallet {
	return &Wallet{log: methodLogger(tel, dompay.ModeWallet)}
}

func (m *Wallet) Capture(ctx context.Context, req appPayment.CaptureRequest) (dompay.Status, error) {
	return approve(ctx, m.log, req)
}

type PayPal struct{ log observability.Logger }

func NewPayPal(tel observability.Observability) *PayPal {
	return &PayPal{log: methodLogger(tel, dompay.ModePayPal)}
}

func (m *PayPal) Capture(ctx context.Context, req appPayment.CaptureRequest) (dompay.Status, error) {
	return approve(ctx, m.log, req)
}

// Defaults registers one method per known mode.
func Defaults(tel observability.Observability) *appPayment.Registry {
	return appPayment.NewRegistry(map[dompay.Mode]appPayment.Method{
		dompay.ModeCreditCard: NewCreditCard(tel),
		dompay.ModeWallet:     NewWallet(tel),
		dompay.ModePayPal:     NewPayPal(tel),
	})
}

func approve(ctx context.Context, log observability.Logger, req appPayment.CaptureRequest) (dompay.Status, error) {
	if err := ctx.Err(); err != nil {
		return dompay.StatusFailed, err
	}
	log.Debug("payment_captured",
		observability.F("order_id", req.OrderID),
		observability.F("amount", req.TotalAmount.String()),
	)
	return dompay.StatusSuccess, nil
}

func methodLogger(tel observability.Observability, mode dompay.Mode) observability.Logger {
	if tel == nil {
		tel = observability.Nop()
	}
	return tel.Logger().With(observability.F("payment_mode", string(mode)))
}
