package payment

import (
	"encoding/json"
	"fmt"

	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
)

const (
	TopicPaymentCompleted = "payment-completed"
	TopicPaymentStatus    = "payment-status"
)

// PaymentCompletedEvent tells the inventory side to deduct stock for a captured payment.
type PaymentCompletedEvent struct {
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	TransactionID string `json:"transactionId"`
}

func (PaymentCompletedEvent) EventName() string { return TopicPaymentCompleted }

func NewPaymentCompletedEvent(p *Payment, productID string, quantity int) PaymentCompletedEvent {
	return PaymentCompletedEvent{
		ProductID:     productID,
		Quantity:      quantity,
		TransactionID: p.TransactionID,
	}
}

// PaymentStatusEvent is the inventory side's final word on a transaction.
type PaymentStatusEvent struct {
	ProductID     string `json:"productId"`
	Quantity      int    `json:"quantity"`
	TransactionID string `json:"transactionId"`
	PaymentStatus Status `json:"paymentStatus"`
}

func (PaymentStatusEvent) EventName() string { return TopicPaymentStatus }

// DecodePaymentCompletedEvent parses a payment-completed payload.
func DecodePaymentCompletedEvent(data []byte) (domoutbox.Event, error) {
	var evt PaymentCompletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domoutbox.ErrMalformedEvent, TopicPaymentCompleted, err)
	}
	if evt.TransactionID == "" || evt.ProductID == "" || evt.Quantity <= 0 {
		return nil, fmt.Errorf("%w: %s: missing fields", domoutbox.ErrMalformedEvent, TopicPaymentCompleted)
	}
	return evt, nil
}

// DecodePaymentStatusEvent parses a payment-status payload. Only SUCCESS and FAILED are accepted.
func DecodePaymentStatusEvent(data []byte) (domoutbox.Event, error) {
	var evt PaymentStatusEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domoutbox.ErrMalformedEvent, TopicPaymentStatus, err)
	}
	if evt.TransactionID == "" {
		return nil, fmt.Errorf("%w: %s: transactionId is required", domoutbox.ErrMalformedEvent, TopicPaymentStatus)
	}
	if !evt.PaymentStatus.Terminal() {
		return nil, fmt.Errorf("%w: %s: unexpected paymentStatus %q", domoutbox.ErrMalformedEvent, TopicPaymentStatus, evt.PaymentStatus)
	}
	return evt, nil
}

// StockValidationRequest is the body of the outbound stock check.
type StockValidationRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
