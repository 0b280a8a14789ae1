package payment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("payment: invalid input")
	// ErrStockNotValidated aborts a payment before anything is stored.
	ErrStockNotValidated  = errors.New("payment: stock not validated")
	ErrInsufficientStock  = errors.New("payment: insufficient stock")
	ErrUnknownPaymentMode = errors.New("payment: no strategy for payment mode")
	ErrUnknownReference   = errors.New("payment: status event references unknown transaction")
	ErrRepository         = errors.New("payment: repository failure")
)

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}
