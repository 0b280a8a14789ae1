package payment

import "context"

// InventoryClient is an outbound port for the remote stock check.
// credential is forwarded verbatim as the Authorization header.
type InventoryClient interface {
	ValidateStock(ctx context.Context, productID string, quantity int, credential string) (bool, error)
}

type IDGenerator interface {
	NewID() string
}
