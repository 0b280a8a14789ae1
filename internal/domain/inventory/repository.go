package inventory

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, productID string) (*Item, error)
	// Deduct removes quantity units atomically and returns the updated item.
	Deduct(ctx context.Context, productID string, quantity int) (*Item, error)
}
