package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Reasons reported when a deduction is refused.
const (
	FailureReasonNotFound          = "not_found"
	FailureReasonInvalidQuantity   = "invalid_quantity"
	FailureReasonInsufficientStock = "insufficient_stock"
	FailureReasonPersistenceError  = "persist_error"
)

// Item is the stock level of one product.
type Item struct {
	ProductID string
	Quantity  int
	UpdatedAt time.Time
}

func NewItem(productID string, quantity int) (*Item, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// CanReserve reports whether quantity units are in stock. It never changes the item.
func (i *Item) CanReserve(quantity int) bool {
	return quantity > 0 && quantity <= i.Quantity
}

func (i *Item) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.Quantity {
		return ErrInsufficientStock
	}
	i.Quantity -= quantity
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// FailureReason maps a deduction error to its reported reason.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return FailureReasonNotFound
	case errors.Is(err, ErrInvalidQuantity):
		return FailureReasonInvalidQuantity
	case errors.Is(err, ErrInsufficientStock):
		return FailureReasonInsufficientStock
	default:
		return FailureReasonPersistenceError
	}
}
