package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("payment: not found")
	ErrConflict               = errors.New("payment: already exists")
	ErrStaleStatus            = errors.New("payment: status changed concurrently")
	ErrInvalidAmount          = errors.New("payment: amount must be zero or greater")
	ErrInvalidMode            = errors.New("payment: unknown payment mode")
	ErrInvalidStatus          = errors.New("payment: unknown payment status")
	ErrInvalidStateTransition = errors.New("payment: invalid state transition")
	ErrTransactionIDRequired  = errors.New("payment: transaction id is required")
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// ParseStatus accepts the wire spelling of a status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSuccess, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Terminal reports whether the status is an outcome of capture or reconciliation.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailed }

type Mode string

const (
	ModeCreditCard Mode = "CREDIT_CARD"
	ModeWallet     Mode = "WALLET"
	ModePayPal     Mode = "PAYPAL"
)

// Modes lists every known payment mode.
func Modes() []Mode { return []Mode{ModeCreditCard, ModeWallet, ModePayPal} }

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Payment is owned by the repository; callers re-read it before every update.
type Payment struct {
	TransactionID string
	OrderID       string
	CustomerID    string
	TotalAmount   decimal.Decimal
	Mode          Mode
	Status        Status
	CreatedAt     time.Time
}

// New builds a PENDING payment. CreatedAt is fixed here and never changes.
func New(transactionID, orderID, customerID string, amount decimal.Decimal, mode Mode) (*Payment, error) {
	if transactionID == "" {
		return nil, ErrTransactionIDRequired
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	return &Payment{
		TransactionID: transactionID,
		OrderID:       orderID,
		CustomerID:    customerID,
		TotalAmount:   amount,
		Mode:          mode,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Captured applies the outcome of a payment method to a pending payment.
func (p *Payment) Captured(outcome Status) error {
	next, err := stateOf(p.Status).OnCaptured(outcome)
	if err != nil {
		return err
	}
	p.Status = next.Status()
	return nil
}

// Reconciled applies an authoritative status reported by the inventory side.
// It reports whether the stored status changes.
func (p *Payment) Reconciled(reported Status) (bool, error) {
	next, err := stateOf(p.Status).OnReconciled(reported)
	if err != nil {
		return false, err
	}
	changed := next.Status() != p.Status
	p.Status = next.Status()
	return changed, nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
