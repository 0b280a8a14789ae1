package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_ = ctx
	if p == nil || p.TransactionID == "" {
		return fmt.Errorf("payment repository: transaction id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[p.TransactionID]; exists {
		return domain.ErrConflict
	}
	r.payments[p.TransactionID] = p.Clone()
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, transactionID string) (*domain.Payment, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, transactionID string, from, to domain.Status) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.ErrStaleStatus
	}
	p.Status = to
	return nil
}

// Len reports how many payments are stored.
func (r *PaymentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.payments)
}
