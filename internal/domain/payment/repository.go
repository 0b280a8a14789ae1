package payment

import "context"

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, transactionID string) (*Payment, error)
	// UpdateStatus moves the stored payment from one status to another and
	// fails with ErrStaleStatus when the stored status is no longer from.
	UpdateStatus(ctx context.Context, transactionID string, from, to Status) error
}
