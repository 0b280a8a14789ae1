package inventory

import (
	"context"
	"errors"
	"testing"

	dominv "github.com/Zhima-Mochi/minishop-payment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-payment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-payment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-payment/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func TestValidateStock(t *testing.T) {
	repo := memory.NewInventoryRepository(-1)
	require.NoError(t, repo.Save(context.Background(), &dominv.Item{ProductID: "P", Quantity: 5}))
	uc := NewValidateStockUseCase(repo, nil)
	ctx := context.Background()

	ok, err := uc.Execute(ctx, ValidateStockInput{ProductID: "P", Quantity: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = uc.Execute(ctx, ValidateStockInput{ProductID: "P", Quantity: 6})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = uc.Execute(ctx, ValidateStockInput{ProductID: "unknown", Quantity: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = uc.Execute(ctx, ValidateStockInput{ProductID: "P", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	item, err := repo.Get(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity, "validation must not reserve stock")
}

func TestDeductStockReportsSuccess(t *testing.T) {
	repo := memory.NewInventoryRepository(10)
	pub := &recordingPublisher{}
	uc := NewDeductStockUseCase(repo, pub, nil)

	res, err := uc.Execute(context.Background(), dompay.PaymentCompletedEvent{ProductID: "P", Quantity: 4, TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusSuccess, res.Status)
	assert.Equal(t, 6, res.Remaining)

	require.Len(t, pub.events, 1)
	assert.Equal(t, dompay.PaymentStatusEvent{
		ProductID: "P", Quantity: 4, TransactionID: "tx-1", PaymentStatus: dompay.StatusSuccess,
	}, pub.events[0])
}

func TestDeductStockReportsFailureWhenStockIsShort(t *testing.T) {
	repo := memory.NewInventoryRepository(2)
	pub := &recordingPublisher{}
	uc := NewDeductStockUseCase(repo, pub, nil)

	res, err := uc.Execute(context.Background(), dompay.PaymentCompletedEvent{ProductID: "P", Quantity: 3, TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, dompay.StatusFailed, res.Status)
	assert.Equal(t, dominv.FailureReasonInsufficientStock, res.FailureReason)

	require.Len(t, pub.events, 1)
	assert.Equal(t, dompay.StatusFailed, pub.events[0].(dompay.PaymentStatusEvent).PaymentStatus)
}

func TestDeductStockPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus down")}
	uc := NewDeductStockUseCase(memory.NewInventoryRepository(10), pub, nil)

	res, err := uc.Execute(context.Background(), dompay.PaymentCompletedEvent{ProductID: "P", Quantity: 1, TransactionID: "tx-1"})
	assert.ErrorContains(t, err, "bus down")
	require.NotNil(t, res)
	assert.Equal(t, dompay.StatusSuccess, res.Status)
}
