package sqlstore

import (
	"context"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepository(t *testing.T) *PaymentRepository {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewPaymentRepository(db, DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestPaymentRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	p, err := domain.New("tx-1", "order-1", "customer-1", decimal.RequireFromString("100.50"), domain.ModePayPal)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, "customer-1", got.CustomerID)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, domain.ModePayPal, got.Mode)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)

	assert.ErrorIs(t, repo.Create(ctx, p), domain.ErrConflict)
}

func TestPaymentRepositoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	p, err := domain.New("tx-2", "order-2", "customer-2", decimal.NewFromInt(10), domain.ModeWallet)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, repo.UpdateStatus(ctx, "tx-2", domain.StatusPending, domain.StatusSuccess))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "tx-2", domain.StatusPending, domain.StatusFailed), domain.ErrStaleStatus)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", domain.StatusPending, domain.StatusFailed), domain.ErrNotFound)

	got, err := repo.Get(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, got.Status)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}
